package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rorqualx/crawlpool/internal/security"
	"github.com/Rorqualx/crawlpool/internal/types"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready. Nobody reads it, but it keeps such
// requests out of the 5xx metrics.
const statusClientClosedRequest = 499

// Error kinds reported by the handlers in addition to the types.Kind* values.
const (
	kindInvalidRequest     = "invalid_request"
	kindInvalidTarget      = "invalid_target"
	kindSchemaInvalid      = "schema_invalid"
	kindPoolClosed         = "pool_closed"
	kindSessionUnavailable = "session_unavailable"
	kindCanceled           = "canceled"
	kindNotFound           = "not_found"
	kindMethodNotAllowed   = "method_not_allowed"
	kindInternal           = "internal"
)

// classifyError maps a pool or validation error to an HTTP status and an
// error kind for the response envelope.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest, kindInvalidRequest
	case errors.Is(err, types.ErrInvalidTarget), errors.Is(err, security.ErrInvalidTarget), errors.Is(err, types.ErrInvalidURL):
		return http.StatusBadRequest, kindInvalidTarget
	case errors.Is(err, types.ErrPoolClosed):
		return http.StatusServiceUnavailable, kindPoolClosed
	case errors.Is(err, types.ErrSessionCreate):
		return http.StatusServiceUnavailable, kindSessionUnavailable
	case errors.Is(err, types.ErrSchemaInvalid):
		return http.StatusBadGateway, kindSchemaInvalid
	case errors.Is(err, types.ErrJobPanicked):
		return http.StatusInternalServerError, kindInternal
	}

	var crawlErr *types.CrawlError
	if errors.As(err, &crawlErr) {
		switch crawlErr.Kind {
		case types.KindNoResults:
			return http.StatusNotFound, crawlErr.Kind
		case types.KindTimeout:
			return http.StatusGatewayTimeout, crawlErr.Kind
		default:
			// Blocked, unreachable or unparseable upstream pages.
			return http.StatusBadGateway, crawlErr.Kind
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, types.KindTimeout
	case errors.Is(err, types.ErrRequestCanceled), errors.Is(err, context.Canceled):
		return statusClientClosedRequest, kindCanceled
	}
	return http.StatusInternalServerError, kindInternal
}
