package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/wisepay/internal/logger"
)

// countResponses feeds the status and latency counters behind
// /api/v1/metrics. A zero slow threshold disables slow request counting.
func countResponses(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			switch {
			case status >= 500:
				logger.ErrorHttp5xx()
			case status >= 400:
				logger.WarnHttp4xx(status)
			}

			if elapsed := time.Since(start); slow > 0 && elapsed > slow {
				logger.WarnSlowRequest()
				logger.Warn("slow request", "method", r.Method, "path", r.URL.Path,
					"status", status, "duration", elapsed.String(),
					"requestId", middleware.GetReqID(r.Context()))
			}
		})
	}
}
