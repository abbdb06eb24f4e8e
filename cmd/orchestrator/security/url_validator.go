package security

import (
	"fmt"
	"net/url"
	"strings"
)

// pathBlocklist catches file-access and traversal attempts smuggled into a
// path or query value.
var pathBlocklist = []string{
	"file://",
	"../",
	"..\\",
	"/etc/",
	"/proc/",
	"/sys/",
	"%2e%2e/",
	"%2e%2e%2f",
	"..%2f",
	"%2e%2e%5c",
	"..%5c",
}

// URLValidator screens webhook destinations. Checks run in order: scheme,
// host (with DNS resolution), then path and query values.
type URLValidator struct {
	hostValidator *HostValidator
}

// NewURLValidator creates a URL validator. allowPrivate relaxes the
// private-network checks for development deployments.
func NewURLValidator(allowPrivate bool) *URLValidator {
	return &URLValidator{hostValidator: NewHostValidator(allowPrivate)}
}

// Validate performs the full screening for a webhook destination URL.
func (v *URLValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed, only http and https", parsed.Scheme)
	}

	if err := v.hostValidator.Validate(parsed.Hostname()); err != nil {
		return fmt.Errorf("host validation failed: %w", err)
	}

	if err := validatePathValue(parsed.Path); err != nil {
		return err
	}

	for key, values := range parsed.Query() {
		for _, value := range values {
			if err := validatePathValue(value); err != nil {
				return fmt.Errorf("query parameter %q: %w", key, err)
			}
		}
	}

	return nil
}

func validatePathValue(value string) error {
	if value == "" {
		return nil
	}
	normalized := strings.ToLower(value)
	for _, pattern := range pathBlocklist {
		if strings.Contains(normalized, pattern) {
			return fmt.Errorf("value contains blocked pattern %q", pattern)
		}
	}
	return nil
}
