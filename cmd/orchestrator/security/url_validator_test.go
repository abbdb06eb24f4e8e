package security

import (
	"net"
	"testing"
)

func TestURLValidator(t *testing.T) {
	v := NewURLValidator(false)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https url", "https://api.example.com/hook", false},
		{"public http url", "http://api.example.com/hook?id=42", false},
		{"file scheme", "file:///etc/passwd", true},
		{"gopher scheme", "gopher://attacker.test/payload", true},
		{"localhost", "http://localhost:8080/hook", true},
		{"loopback ip", "http://127.0.0.1/hook", true},
		{"ipv6 loopback", "http://[::1]/hook", true},
		{"private ip", "http://10.0.0.5/hook", true},
		{"link local metadata ip", "http://169.254.169.254/latest/meta-data/", true},
		{"unspecified address", "http://0.0.0.0/hook", true},
		{"path traversal", "https://api.example.com/../../etc/passwd", true},
		{"encoded traversal", "https://api.example.com/%2e%2e%2fadmin", true},
		{"traversal in query value", "https://api.example.com/hook?file=../secrets", true},
		{"proc path", "https://api.example.com/proc/self/environ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestURLValidatorAllowPrivate(t *testing.T) {
	v := NewURLValidator(true)

	// Private ranges open up for development deployments
	if err := v.Validate("http://10.0.0.5/hook"); err != nil {
		t.Errorf("private ip rejected with allowPrivate: %v", err)
	}
	if err := v.Validate("http://192.168.1.20:9000/hook"); err != nil {
		t.Errorf("private ip rejected with allowPrivate: %v", err)
	}

	// Loopback and link-local stay closed regardless
	if err := v.Validate("http://127.0.0.1/hook"); err == nil {
		t.Error("loopback allowed with allowPrivate")
	}
	if err := v.Validate("http://169.254.169.254/"); err == nil {
		t.Error("link-local allowed with allowPrivate")
	}
}

func TestIPValidator(t *testing.T) {
	v := NewIPValidator(false)

	tests := []struct {
		name    string
		ip      string
		wantErr bool
	}{
		{"public ipv4", "93.184.216.34", false},
		{"public ipv6", "2606:2800:220:1:248:1893:25c8:1946", false},
		{"loopback", "127.0.0.1", true},
		{"private class a", "10.1.2.3", true},
		{"private class b", "172.16.5.5", true},
		{"private class c", "192.168.0.10", true},
		{"link local", "169.254.169.254", true},
		{"multicast", "224.0.0.1", true},
		{"unspecified", "0.0.0.0", true},
		{"ipv6 ula", "fd00::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(net.ParseIP(tt.ip))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.ip, err, tt.wantErr)
			}
		})
	}

	if err := v.Validate(nil); err == nil {
		t.Error("nil ip accepted")
	}
	if err := v.ValidateAll(nil); err == nil {
		t.Error("empty ip list accepted")
	}
}
