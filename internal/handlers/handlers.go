// Package handlers provides the HTTP handlers for the crawl API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/pool"
	"github.com/Rorqualx/crawlpool/internal/security"
	"github.com/Rorqualx/crawlpool/internal/types"
	"github.com/Rorqualx/crawlpool/pkg/version"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// PoolAPI is the part of *pool.Pool the handlers use.
type PoolAPI interface {
	Crawl(ctx context.Context, url string) (*types.ProductDetail, error)
	Search(ctx context.Context, keyword string) ([]types.ProductSummary, error)
	Status() pool.Status
}

// TargetValidator normalizes crawl URLs and rejects unsafe ones.
// *security.TargetValidator satisfies it.
type TargetValidator interface {
	Validate(ctx context.Context, rawURL string) (string, error)
}

// Handler serves the crawl API.
type Handler struct {
	pool    PoolAPI
	targets TargetValidator
}

// New creates a new Handler.
func New(p PoolAPI, targets TargetValidator) *Handler {
	return &Handler{
		pool:    p,
		targets: targets,
	}
}

// HandleHealth reports liveness. It does not touch the pool, so it never
// launches a browser.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, types.HealthResponse{
		Status:  types.StatusOK,
		Version: version.Full(),
	})
}

// HandleStatus returns a pool snapshot.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	h.writeJSONResponse(w, http.StatusOK, types.Response{
		Status:    types.StatusOK,
		Message:   "Pool status",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Pool:      h.pool.Status(),
	})
}

// HandleCrawl runs a detail crawl.
func (h *Handler) HandleCrawl(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req types.CrawlRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		h.writeError(w, err, startTime)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, err, startTime)
		return
	}

	target, err := h.targets.Validate(r.Context(), req.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", security.RedactURL(req.URL)).Msg("Target validation failed")
		h.writeError(w, err, startTime)
		return
	}

	log.Info().
		Str("url", security.RedactURL(target)).
		Int("max_timeout_ms", req.MaxTimeout).
		Msg("Crawl request received")

	ctx, cancel := h.requestContext(r.Context(), req.MaxTimeout)
	defer cancel()

	product, err := h.pool.Crawl(ctx, target)
	if err != nil {
		h.logFailure(err, "Crawl failed", "url", security.RedactURL(target))
		h.writeError(w, err, startTime)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, types.Response{
		Status:    types.StatusOK,
		Message:   "Product crawled successfully",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Product:   product,
	})
}

// HandleSearch runs a keyword search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req types.SearchRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		h.writeError(w, err, startTime)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, err, startTime)
		return
	}

	log.Info().
		Str("keyword", req.Keyword).
		Int("max_timeout_ms", req.MaxTimeout).
		Msg("Search request received")

	ctx, cancel := h.requestContext(r.Context(), req.MaxTimeout)
	defer cancel()

	results, err := h.pool.Search(ctx, req.Keyword)
	if err != nil {
		h.logFailure(err, "Search failed", "keyword", req.Keyword)
		h.writeError(w, err, startTime)
		return
	}
	if results == nil {
		results = []types.ProductSummary{}
	}

	h.writeJSONResponse(w, http.StatusOK, types.Response{
		Status:    types.StatusOK,
		Message:   fmt.Sprintf("Found %d results", len(results)),
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Results:   results,
	})
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, kindMethodNotAllowed, "Method not allowed", time.Now())
}

// HandleNotFound handles requests to unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusNotFound, kindNotFound, "Not found", time.Now())
}

// decodeRequest reads a bounded JSON body into v through a pooled buffer.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", types.ErrInvalidRequest, maxErr.Limit)
		}
		log.Warn().Err(err).Msg("Failed to read request body")
		return fmt.Errorf("%w: failed to read body", types.ErrInvalidRequest)
	}

	if err := json.Unmarshal(buf.Bytes(), v); err != nil {
		log.Debug().Err(err).Msg("Failed to decode request")
		return fmt.Errorf("%w: invalid JSON", types.ErrInvalidRequest)
	}
	return nil
}

// requestContext applies the caller's maxTimeout. The bound covers time
// spent queued for a page as well as the job itself.
func (h *Handler) requestContext(parent context.Context, maxTimeoutMs int) (context.Context, context.CancelFunc) {
	if maxTimeoutMs <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(maxTimeoutMs)*time.Millisecond)
}

// logFailure logs expected upstream failures at warn and the rest at error.
func (h *Handler) logFailure(err error, msg, field, value string) {
	status, kind := classifyError(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		event = log.Error()
	}
	event.Err(err).Str(field, value).Str("error_kind", kind).Int("status", status).Msg(msg)
}

// writeError writes err as an error envelope with the matching status.
func (h *Handler) writeError(w http.ResponseWriter, err error, startTime time.Time) {
	status, kind := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal error"
	}

	var crawlErr *types.CrawlError
	if errors.As(err, &crawlErr) && crawlErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(crawlErr.RetryAfter.Seconds()))))
	}
	h.writeErrorWithStatus(w, status, kind, message, startTime)
}

// writeErrorWithStatus writes an error response with a specific HTTP status code.
func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, kind, message string, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusError,
		Message:   message,
		ErrorKind: kind,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse buffers JSON before writing so encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error","errorKind":"internal"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}
