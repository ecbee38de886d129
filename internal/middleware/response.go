// Package middleware provides the HTTP middleware in front of the crawl API.
package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/types"
	"github.com/Rorqualx/crawlpool/pkg/version"
)

// Error kinds reported by middleware rejections.
const (
	kindRateLimited  = "rate_limited"
	kindUnauthorized = "unauthorized"
	kindInternal     = "internal"
)

// writeErrorResponse writes the API's error envelope. startTime should be
// when the request started processing.
func writeErrorResponse(w http.ResponseWriter, statusCode int, kind, message string, startTime time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := types.Response{
		Status:    types.StatusError,
		Message:   message,
		ErrorKind: kind,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
