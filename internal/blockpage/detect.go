// Package blockpage classifies responses a target site sends instead of
// the page that was asked for: rate limits, bot walls, CAPTCHAs and
// regional blocks.
package blockpage

import (
	"regexp"
	"time"
)

// maxTextLen bounds the text fed to the patterns.
const maxTextLen = 100 * 1024

// Category is the broad reason a response was refused.
type Category string

// Block categories.
const (
	CategoryRateLimit    Category = "rate_limit"
	CategoryAccessDenied Category = "access_denied"
	CategoryCaptcha      Category = "captcha"
	CategoryGeoBlocked   Category = "geo_blocked"
)

// Info describes a detected block.
type Info struct {
	Detected    bool
	Code        string
	Category    Category
	RetryAfter  time.Duration // Zero when waiting will not help
	Description string
}

type pattern struct {
	re          *regexp.Regexp
	code        string
	category    Category
	retryAfter  time.Duration
	description string
}

// patterns are ordered by specificity; the first match wins. They use
// [^<]{0,N} rather than .{0,N} to keep backtracking bounded.
var patterns = []pattern{
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1015`), "CF_1015", CategoryRateLimit, time.Minute, "Cloudflare rate limit exceeded"},
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1009`), "CF_1009", CategoryGeoBlocked, 0, "Cloudflare geo-restriction"},
	{regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}10(06|07|08|10|12|20)`), "CF_ACCESS", CategoryAccessDenied, 30 * time.Second, "Cloudflare access denied"},
	{regexp.MustCompile(`(?i)too\s{1,5}many\s{1,5}requests`), "TOO_MANY_REQUESTS", CategoryRateLimit, 10 * time.Second, "Too many requests"},
	{regexp.MustCompile(`(?i)rate\s{0,3}limit`), "RATE_LIMITED", CategoryRateLimit, 10 * time.Second, "Rate limited"},
	{regexp.MustCompile(`(?i)(h|re)?captcha|are\s{1,5}you\s{1,5}(a\s{1,5})?(human|robot)|verify\s{1,5}you\s{1,5}are\s{1,5}human`), "CAPTCHA", CategoryCaptcha, 0, "CAPTCHA required"},
	{regexp.MustCompile(`(?i)not\s{1,5}available\s{1,5}in\s{1,5}your\s{1,5}(country|region)`), "GEO_BLOCKED", CategoryGeoBlocked, 0, "Not available in this region"},
	{regexp.MustCompile(`(?i)you\s{1,5}(have\s{1,5}been\s{1,5})?blocked`), "BLOCKED", CategoryAccessDenied, 15 * time.Second, "Request blocked"},
	{regexp.MustCompile(`(?i)access\s{1,5}(is\s{1,5})?denied|접근이\s{0,3}(거부|차단)`), "ACCESS_DENIED", CategoryAccessDenied, 5 * time.Second, "Access denied"},
}

// Detect classifies a response from its HTTP status and visible text.
// A status of 0 means unknown. Text patterns override what the status
// alone suggests.
func Detect(status int, text string) Info {
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}

	var info Info
	switch status {
	case 429:
		info = Info{Detected: true, Code: "HTTP_429", Category: CategoryRateLimit, RetryAfter: time.Minute, Description: "HTTP 429 Too Many Requests"}
	case 503:
		info = Info{Detected: true, Code: "HTTP_503", Category: CategoryRateLimit, RetryAfter: 30 * time.Second, Description: "HTTP 503 Service Unavailable"}
	case 451:
		info = Info{Detected: true, Code: "HTTP_451", Category: CategoryGeoBlocked, Description: "HTTP 451 Unavailable For Legal Reasons"}
	case 401, 403:
		info = Info{Detected: true, Code: "HTTP_403", Category: CategoryAccessDenied, RetryAfter: 30 * time.Second, Description: "HTTP 403 Forbidden"}
	}

	for _, p := range patterns {
		if p.re.MatchString(text) {
			return Info{
				Detected:    true,
				Code:        p.code,
				Category:    p.category,
				RetryAfter:  p.retryAfter,
				Description: p.description,
			}
		}
	}
	return info
}
