package security

import (
	"fmt"
	"net"
	"strings"
)

// HostValidator screens hostnames before a webhook request is issued. Named
// hosts are resolved and every resolved address is checked, so a DNS record
// pointing at an internal range is caught before the dial.
type HostValidator struct {
	blockedHostnames map[string]bool
	ipValidator      *IPValidator
}

// NewHostValidator creates a new host validator
func NewHostValidator(allowPrivate bool) *HostValidator {
	blocked := map[string]bool{
		"localhost":                true,
		"127.0.0.1":                true,
		"0.0.0.0":                  true,
		"::1":                      true,
		"::":                       true,
		"::ffff:127.0.0.1":         true,
		"[::1]":                    true,
		"[::ffff:127.0.0.1]":       true,
		"metadata.google.internal": true,
	}
	return &HostValidator{
		blockedHostnames: blocked,
		ipValidator:      NewIPValidator(allowPrivate),
	}
}

// Validate checks whether the hostname is a safe webhook destination.
func (v *HostValidator) Validate(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}

	normalized := strings.ToLower(strings.TrimSpace(hostname))
	if v.blockedHostnames[normalized] {
		return fmt.Errorf("hostname %q is blocked", hostname)
	}

	// Literal IPs skip DNS
	if ip := net.ParseIP(normalized); ip != nil {
		return v.ipValidator.Validate(ip)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Resolution failure is not a security signal; the request itself
		// will fail with a clearer error
		return nil
	}

	return v.ipValidator.ValidateAll(ips)
}
