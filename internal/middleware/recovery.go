package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Recovery returns middleware that recovers from panics and logs the error.
// http.ErrAbortHandler is re-raised so the server can abort the response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log.Error().
				Interface("error", rec).
				Str("stack", string(debug.Stack())).
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Panic recovered")

			writeErrorResponse(w, http.StatusInternalServerError, kindInternal, "Internal server error", startTime)
		}()
		next.ServeHTTP(w, r)
	})
}
