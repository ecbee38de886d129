package types

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Request validation limits.
const (
	MaxURLLength     = 8192
	MaxKeywordLength = 200
	MaxTimeoutMs     = 600000 // 10 minutes in milliseconds
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CrawlRequest is the body of POST /v1/crawl.
type CrawlRequest struct {
	URL        string `json:"url"`
	MaxTimeout int    `json:"maxTimeout,omitempty"` // Milliseconds the caller is willing to wait, queue time included
}

// Validate checks the request shape. URL safety is checked separately
// by the security package.
func (r *CrawlRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if len(r.URL) > MaxURLLength {
		return fmt.Errorf("%w: url exceeds maximum length of %d", ErrInvalidRequest, MaxURLLength)
	}
	return validateTimeout(r.MaxTimeout)
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Keyword    string `json:"keyword"`
	MaxTimeout int    `json:"maxTimeout,omitempty"`
}

// Validate checks the request shape.
func (r *SearchRequest) Validate() error {
	kw := strings.TrimSpace(r.Keyword)
	if kw == "" {
		return fmt.Errorf("%w: keyword is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(kw) > MaxKeywordLength {
		return fmt.Errorf("%w: keyword exceeds maximum length of %d", ErrInvalidRequest, MaxKeywordLength)
	}
	if strings.ContainsAny(kw, "\x00\r\n") {
		return fmt.Errorf("%w: keyword contains control characters", ErrInvalidRequest)
	}
	return validateTimeout(r.MaxTimeout)
}

func validateTimeout(ms int) error {
	if ms < 0 {
		return fmt.Errorf("%w: maxTimeout cannot be negative", ErrInvalidRequest)
	}
	if ms > MaxTimeoutMs {
		return fmt.Errorf("%w: maxTimeout exceeds maximum of %d ms", ErrInvalidRequest, MaxTimeoutMs)
	}
	return nil
}

// Response is the envelope returned by every API endpoint.
type Response struct {
	Status    string           `json:"status"`
	Message   string           `json:"message"`
	ErrorKind string           `json:"errorKind,omitempty"`
	StartTime int64            `json:"startTimestamp"`
	EndTime   int64            `json:"endTimestamp"`
	Version   string           `json:"version"`
	Product   *ProductDetail   `json:"product,omitempty"`
	Results   []ProductSummary `json:"results,omitempty"`
	Pool      any              `json:"pool,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
