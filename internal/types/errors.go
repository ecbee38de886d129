// Package types provides shared types, schemas, and errors for the application.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is().
var (
	// Pool errors
	ErrSessionCreate   = errors.New("failed to create browser session")
	ErrPageCreate      = errors.New("failed to create page")
	ErrPoolClosed      = errors.New("page pool is closed")
	ErrRequestCanceled = errors.New("request canceled before dispatch")
	ErrJobPanicked     = errors.New("job panicked")

	// Crawl errors
	ErrAccessDenied  = errors.New("access denied by target site")
	ErrNavigation    = errors.New("navigation failed")
	ErrTimeout       = errors.New("operation timed out")
	ErrExtraction    = errors.New("extraction failed")
	ErrSchemaInvalid = errors.New("extracted data failed schema validation")
	ErrNoResults     = errors.New("no search results")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidTarget  = errors.New("invalid target")
	ErrInvalidURL     = errors.New("invalid URL")
)

// Crawl error kinds.
const (
	KindAccessDenied = "access_denied"
	KindTimeout      = "timeout"
	KindNavigation   = "navigation"
	KindExtraction   = "extraction"
	KindNoResults    = "no_results"
)

// CrawlError describes a failed detail crawl or search.
// It supports errors.Is/As through Unwrap.
type CrawlError struct {
	Kind       string        // One of the Kind* constants
	Target     string        // URL or keyword the job ran against
	Message    string        // Human-readable error message
	Reason     string        // Block classification code, when one was detected
	RetryAfter time.Duration // Suggested wait before retrying the target; 0 if unknown
	Err        error         // Underlying error
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CrawlError) Unwrap() error {
	return e.Err
}

// WithBlock records what kind of block page the site served. It returns e
// for chaining.
func (e *CrawlError) WithBlock(code, description string, retryAfter time.Duration) *CrawlError {
	e.Reason = code
	e.RetryAfter = retryAfter
	if description != "" {
		e.Message += " (" + description + ")"
	}
	return e
}

// NewAccessDeniedError creates an error for a blocked or non-2xx response.
// A status of 0 means the block was detected from page content.
func NewAccessDeniedError(url string, status int) *CrawlError {
	msg := "Access denied. The target site blocked this request."
	if status != 0 {
		msg = fmt.Sprintf("Access denied. The target site answered with HTTP %d.", status)
	}
	return &CrawlError{
		Kind:    KindAccessDenied,
		Target:  url,
		Message: msg,
		Err:     ErrAccessDenied,
	}
}

// NewTimeoutError creates an error for a navigation or wait that ran out of time.
func NewTimeoutError(target, stage string) *CrawlError {
	return &CrawlError{
		Kind:    KindTimeout,
		Target:  target,
		Message: "Timed out during " + stage,
		Err:     ErrTimeout,
	}
}

// NewNavigationError wraps a failed navigation.
func NewNavigationError(url string, err error) *CrawlError {
	return &CrawlError{
		Kind:    KindNavigation,
		Target:  url,
		Message: "Navigation failed: " + err.Error(),
		Err:     errors.Join(ErrNavigation, err),
	}
}

// NewExtractionError wraps a failure while reading fields from a loaded page.
func NewExtractionError(target string, err error) *CrawlError {
	return &CrawlError{
		Kind:    KindExtraction,
		Target:  target,
		Message: "Extraction failed: " + err.Error(),
		Err:     errors.Join(ErrExtraction, err),
	}
}

// NewNoResultsError creates an error for a search whose results never appeared.
func NewNoResultsError(keyword string) *CrawlError {
	return &CrawlError{
		Kind:    KindNoResults,
		Target:  keyword,
		Message: "No search results appeared for " + fmt.Sprintf("%q", keyword),
		Err:     errors.Join(ErrNoResults, ErrTimeout),
	}
}

// PoolError provides detailed information about page pool failures.
type PoolError struct {
	Operation string // The operation that failed
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewSessionCreateError creates an error for a failed session launch.
func NewSessionCreateError(err error) *PoolError {
	return &PoolError{
		Operation: "initialize",
		Message:   "Failed to create browser session: " + err.Error(),
		Err:       errors.Join(ErrSessionCreate, err),
	}
}

// NewPageCreateError creates an error for a failed page creation during initialize.
func NewPageCreateError(err error) *PoolError {
	return &PoolError{
		Operation: "initialize",
		Message:   "Failed to create pooled page: " + err.Error(),
		Err:       errors.Join(ErrSessionCreate, ErrPageCreate, err),
	}
}
