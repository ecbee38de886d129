package security

import (
	"net"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveParamPatterns are substrings of query parameter names that
// likely carry secrets. Shop URLs often hold session or tracking tokens.
var sensitiveParamPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"bearer",
	"credential",
	"session",
	"sessid",
	"signature",
	"private",
}

// sensitiveParamNames are matched whole; as substrings they would also hit
// "keyword" or "inside".
var sensitiveParamNames = map[string]bool{
	"key":  true,
	"sid":  true,
	"pwd":  true,
	"auth": true,
	"sig":  true,
}

// RedactURL returns rawURL with user credentials and secret-looking query
// values replaced, for logging.
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		query := u.Query()
		changed := false
		for name := range query {
			if isSensitiveParam(name) {
				query[name] = []string{redacted}
				changed = true
			}
		}
		if changed {
			u.RawQuery = query.Encode()
		}
	}
	return u.String()
}

func isSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	if sensitiveParamNames[lower] {
		return true
	}
	for _, pattern := range sensitiveParamPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// RedactProxyURL hides the password of a proxy URL but keeps the username,
// which is useful when several proxy accounts are in rotation.
func RedactProxyURL(proxyURL string) string {
	if proxyURL == "" {
		return ""
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return "[invalid-proxy-url]"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}

// MaskIP truncates a client address for logs: IPv4 to its /24, IPv6 to its
// /48. A port, if present, is dropped.
func MaskIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "[redacted]"
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.Mask(net.CIDRMask(24, 32)).String() + "/24"
	}
	return ip.Mask(net.CIDRMask(48, 128)).String() + "/48"
}
