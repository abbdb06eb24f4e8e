package security

import (
	"fmt"
	"net"
)

// IPValidator rejects destination addresses that would let a workflow reach
// infrastructure the service itself can see. AllowPrivate relaxes the
// private-range checks for development against local endpoints; loopback and
// link-local stay blocked even then.
type IPValidator struct {
	allowPrivate bool
}

// NewIPValidator creates a new IP validator
func NewIPValidator(allowPrivate bool) *IPValidator {
	return &IPValidator{allowPrivate: allowPrivate}
}

// Validate checks whether an IP address is a safe webhook destination.
func (v *IPValidator) Validate(ip net.IP) error {
	if ip == nil {
		return fmt.Errorf("ip address is nil")
	}

	if ip.IsLoopback() {
		return fmt.Errorf("ip %s is blocked: loopback address", ip)
	}

	// 169.254.0.0/16 and fe80::/10 cover cloud metadata endpoints
	if ip.IsLinkLocalUnicast() {
		return fmt.Errorf("ip %s is blocked: link-local address", ip)
	}

	if ip.IsUnspecified() {
		return fmt.Errorf("ip %s is blocked: unspecified address", ip)
	}

	if ip.IsMulticast() {
		return fmt.Errorf("ip %s is blocked: multicast address", ip)
	}

	if !v.allowPrivate && ip.IsPrivate() {
		return fmt.Errorf("ip %s is blocked: private network", ip)
	}

	return nil
}

// ValidateAll checks every resolved address; one bad address fails the set.
func (v *IPValidator) ValidateAll(ips []net.IP) error {
	if len(ips) == 0 {
		return fmt.Errorf("no ip addresses to validate")
	}
	for _, ip := range ips {
		if err := v.Validate(ip); err != nil {
			return err
		}
	}
	return nil
}
