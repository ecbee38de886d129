// Package security validates crawl targets and scrubs secrets from log output.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// Target validation errors. All of them wrap ErrInvalidTarget.
var (
	ErrInvalidTarget      = errors.New("invalid target")
	ErrBlockedScheme      = fmt.Errorf("%w: URL scheme not allowed", ErrInvalidTarget)
	ErrMissingHost        = fmt.Errorf("%w: URL has no host", ErrInvalidTarget)
	ErrInvalidHost        = fmt.Errorf("%w: URL host is not a valid domain name", ErrInvalidTarget)
	ErrCredentialsInURL   = fmt.Errorf("%w: URL must not carry credentials", ErrInvalidTarget)
	ErrLocalhostBlocked   = fmt.Errorf("%w: localhost URLs are not allowed", ErrInvalidTarget)
	ErrPrivateIPBlocked   = fmt.Errorf("%w: private/internal IP addresses are not allowed", ErrInvalidTarget)
	ErrMetadataBlocked    = fmt.Errorf("%w: cloud metadata URLs are not allowed", ErrInvalidTarget)
	ErrBlockedProxyScheme = errors.New("proxy URL scheme not allowed (must be http, https, socks4, or socks5)")
	ErrInvalidProxyURL    = errors.New("invalid proxy URL")
)

// defaultLookupTimeout bounds the DNS lookup done for hostname targets.
const defaultLookupTimeout = 3 * time.Second

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

var allowedProxySchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks4": true,
	"socks5": true,
}

// blockedHosts are hostnames that resolve to the machine or its cloud
// metadata service on common platforms.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"local":                    true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
	"metadata":                 true,
	"metadata.google.internal": true,
	"instance-data":            true,
}

var cloudMetadataIPs = []net.IP{
	net.ParseIP("169.254.169.254"), // AWS, GCP, Azure, DigitalOcean, OpenStack
	net.ParseIP("169.254.170.2"),   // AWS ECS task metadata
	net.ParseIP("100.100.100.200"), // Alibaba Cloud
	net.ParseIP("192.0.0.192"),     // Oracle Cloud
	net.ParseIP("fd00:ec2::254"),   // AWS IPv6
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// TargetValidator normalizes crawl URLs and keeps the browser away from
// internal addresses.
type TargetValidator struct {
	allowPrivate  bool
	resolver      Resolver
	lookupTimeout time.Duration
}

// ValidatorOption configures a TargetValidator.
type ValidatorOption func(*TargetValidator)

// WithResolver replaces the DNS resolver.
func WithResolver(r Resolver) ValidatorOption {
	return func(v *TargetValidator) { v.resolver = r }
}

// NewTargetValidator returns a validator. With allowPrivate, loopback and
// private addresses are accepted; scheme and host checks still apply.
func NewTargetValidator(allowPrivate bool, opts ...ValidatorOption) *TargetValidator {
	v := &TargetValidator{
		allowPrivate:  allowPrivate,
		resolver:      net.DefaultResolver,
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks rawURL and returns it in normalized form: lowercase
// scheme, punycode host, no fragment.
//
// Hostnames are resolved and every address is checked. A failed lookup is
// not an error; the browser reports unreachable hosts on its own.
func (v *TargetValidator) Validate(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if !allowedSchemes[u.Scheme] {
		return "", ErrBlockedScheme
	}
	if u.User != nil {
		return "", ErrCredentialsInURL
	}
	if u.Hostname() == "" {
		return "", ErrMissingHost
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return "", err
	}
	if port := u.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("%w: bad port %q", ErrInvalidTarget, port)
		}
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""

	if !v.allowPrivate {
		if err := v.checkAddress(ctx, host); err != nil {
			return "", err
		}
	}
	return u.String(), nil
}

// normalizeHost lowercases host and converts internationalized names to
// their ASCII form. IP literals pass through.
func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", ErrMissingHost
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	return ascii, nil
}

func (v *TargetValidator) checkAddress(ctx context.Context, host string) error {
	if blockedHosts[host] || strings.HasSuffix(host, ".localhost") || strings.HasPrefix(host, "localhost.") {
		return ErrLocalhostBlocked
	}

	if ip := parseIPWithNormalization(host); ip != nil {
		return validateIP(ip)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()
	addrs, err := v.resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if err := validateIP(addr.IP); err != nil {
			return err
		}
	}
	return nil
}

// parseIPWithNormalization also accepts the numeric forms browsers accept
// for IPv4: a single decimal number, octal or hex octets, and the two part
// a.b form.
func parseIPWithNormalization(host string) net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}

	if num, err := parseIntWithBase(host); err == nil && num <= 0xFFFFFFFF {
		return net.IPv4(byte(num>>24), byte(num>>16), byte(num>>8), byte(num))
	}

	parts := strings.Split(host, ".")
	switch len(parts) {
	case 4:
		var octets [4]byte
		for i, part := range parts {
			val, err := parseIntWithBase(part)
			if err != nil || val > 255 {
				return nil
			}
			octets[i] = byte(val)
		}
		return net.IPv4(octets[0], octets[1], octets[2], octets[3])
	case 2:
		first, err1 := parseIntWithBase(parts[0])
		second, err2 := parseIntWithBase(parts[1])
		if err1 == nil && err2 == nil && first <= 255 && second <= 0xFFFFFF {
			return net.IPv4(byte(first), byte(second>>16), byte(second>>8), byte(second))
		}
	}
	return nil
}

// parseIntWithBase parses decimal, 0-prefixed octal or 0x-prefixed hex.
func parseIntWithBase(s string) (uint64, error) {
	switch {
	case s == "":
		return 0, errors.New("empty string")
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	case len(s) > 1 && s[0] == '0':
		return strconv.ParseUint(s[1:], 8, 64)
	default:
		return strconv.ParseUint(s, 10, 64)
	}
}

func validateIP(ip net.IP) error {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	switch {
	case ip.IsLoopback():
		return ErrLocalhostBlocked
	case isCloudMetadataIP(ip):
		return ErrMetadataBlocked
	case ip.IsPrivate(), ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(), ip.IsUnspecified():
		return ErrPrivateIPBlocked
	}
	return nil
}

func isCloudMetadataIP(ip net.IP) bool {
	for _, m := range cloudMetadataIPs {
		if ip.Equal(m) {
			return true
		}
	}
	return false
}

// ValidateProxyURL checks the shape of a proxy URL. Local proxies are a
// common setup, so private addresses are not rejected here.
func ValidateProxyURL(proxyURL string) error {
	if proxyURL == "" {
		return nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return ErrInvalidProxyURL
	}
	if !allowedProxySchemes[strings.ToLower(u.Scheme)] {
		return ErrBlockedProxyScheme
	}
	if u.Host == "" {
		return ErrInvalidProxyURL
	}
	return nil
}
