package security

import (
	"context"
	"errors"
	"net"
	"testing"
)

// staticResolver answers every lookup from a fixed table.
type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	addrs := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return addrs, nil
}

func testValidator() *TargetValidator {
	return NewTargetValidator(false, WithResolver(staticResolver{
		"shop.example.com":     {"93.184.216.34"},
		"xn--hg4bs57a.com":     {"93.184.216.35"},
		"internal.example.com": {"10.1.2.3"},
		"rebind.example.com":   {"93.184.216.34", "127.0.0.1"},
	}))
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr error
	}{
		{"plain https", "https://shop.example.com/products/1", "https://shop.example.com/products/1", nil},
		{"uppercase scheme and host", "HTTPS://Shop.Example.COM/p?id=1", "https://shop.example.com/p?id=1", nil},
		{"fragment dropped", "https://shop.example.com/p#reviews", "https://shop.example.com/p", nil},
		{"port kept", "http://shop.example.com:8080/p", "http://shop.example.com:8080/p", nil},
		{"idn host to punycode", "https://상품.com/list", "https://xn--hg4bs57a.com/list", nil},
		{"surrounding space", "  https://shop.example.com/  ", "https://shop.example.com/", nil},
		{"unresolvable host allowed", "https://nowhere.example.org/", "https://nowhere.example.org/", nil},

		{"file scheme", "file:///etc/passwd", "", ErrBlockedScheme},
		{"javascript scheme", "javascript:alert(1)", "", ErrBlockedScheme},
		{"no scheme", "shop.example.com/p", "", ErrBlockedScheme},
		{"no host", "https:///p", "", ErrMissingHost},
		{"credentials", "https://user:pw@shop.example.com/", "", ErrCredentialsInURL},
		{"bad port", "https://shop.example.com:99999/", "", ErrInvalidTarget},

		{"localhost", "http://localhost:3000/", "", ErrLocalhostBlocked},
		{"localhost subdomain", "http://api.localhost/", "", ErrLocalhostBlocked},
		{"loopback", "http://127.0.0.1/", "", ErrLocalhostBlocked},
		{"loopback range", "http://127.1.2.3/", "", ErrLocalhostBlocked},
		{"ipv6 loopback", "http://[::1]/", "", ErrLocalhostBlocked},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", "", ErrLocalhostBlocked},
		{"decimal loopback", "http://2130706433/", "", ErrLocalhostBlocked},
		{"hex loopback", "http://0x7f000001/", "", ErrLocalhostBlocked},
		{"octal loopback", "http://0177.0.0.1/", "", ErrLocalhostBlocked},
		{"short loopback", "http://127.1/", "", ErrLocalhostBlocked},
		{"private", "http://192.168.1.1/", "", ErrPrivateIPBlocked},
		{"unspecified", "http://0.0.0.0/", "", ErrPrivateIPBlocked},
		{"metadata ip", "http://169.254.169.254/latest/meta-data/", "", ErrMetadataBlocked},
		{"metadata host", "http://metadata.google.internal/", "", ErrLocalhostBlocked},
		{"resolves private", "https://internal.example.com/", "", ErrPrivateIPBlocked},
		{"one resolved address private", "https://rebind.example.com/", "", ErrLocalhostBlocked},
	}

	v := testValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(context.Background(), tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate(%q) error = %v, want %v", tt.url, err, tt.wantErr)
				}
				if !errors.Is(err, ErrInvalidTarget) {
					t.Errorf("Validate(%q) error %v does not wrap ErrInvalidTarget", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) unexpected error: %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestValidateTargetAllowPrivate(t *testing.T) {
	v := NewTargetValidator(true, WithResolver(staticResolver{}))

	for _, raw := range []string{"http://127.0.0.1:8080/p", "http://localhost/", "http://10.0.0.1/"} {
		if _, err := v.Validate(context.Background(), raw); err != nil {
			t.Errorf("Validate(%q) with private allowed: %v", raw, err)
		}
	}

	if _, err := v.Validate(context.Background(), "ftp://127.0.0.1/"); !errors.Is(err, ErrBlockedScheme) {
		t.Errorf("scheme check must still apply, got %v", err)
	}
}

func TestValidateProxyURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"", nil},
		{"http://proxy.example.com:8080", nil},
		{"socks5://127.0.0.1:1080", nil},
		{"ftp://proxy.example.com", ErrBlockedProxyScheme},
		{"http://", ErrInvalidProxyURL},
		{"://bad", ErrInvalidProxyURL},
	}
	for _, tt := range tests {
		if err := ValidateProxyURL(tt.url); !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateProxyURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}
