// Package middleware provides the HTTP gates and request logging used by the
// request pipeline.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/codec-agences/admin-backend/internal/httputil"
	"github.com/codec-agences/admin-backend/internal/logger"
)

// LoggingMiddleware writes one structured line per request
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware instance
func NewLoggingMiddleware(log *slog.Logger) *LoggingMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &LoggingMiddleware{logger: log}
}

// identity is filled in by Authenticate further down the chain
type identity struct {
	userID int64
	set    bool
}

// Handler logs the request once the downstream handlers have finished
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Request ID from chi middleware.RequestID
		requestID := middleware.GetReqID(r.Context())
		r = r.WithContext(logger.SetCorrelationID(r.Context(), requestID))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		who := &identity{}
		next.ServeHTTP(ww, r.WithContext(withIdentitySlot(r.Context(), who)))

		attrs := []any{
			slog.String("correlation_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", httputil.ClientIP(r)),
			slog.String("user_agent", r.UserAgent()),
		}
		if who.set {
			attrs = append(attrs, slog.Int64("user_id", who.userID))
		}

		switch {
		case ww.Status() >= 500:
			m.logger.Error("HTTP request completed with server error", attrs...)
		case ww.Status() >= 400:
			m.logger.Warn("HTTP request completed with client error", attrs...)
		default:
			m.logger.Info("HTTP request completed", attrs...)
		}
	})
}

// StructuredLogger returns a chi-compatible logger that uses slog
func StructuredLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return NewLoggingMiddleware(log).Handler
}

type identitySlotKey struct{}

func withIdentitySlot(ctx context.Context, slot *identity) context.Context {
	return context.WithValue(ctx, identitySlotKey{}, slot)
}

// noteIdentity lets the logging middleware report who made the request
func noteIdentity(ctx context.Context, userID int64) {
	if slot, ok := ctx.Value(identitySlotKey{}).(*identity); ok {
		slot.userID = userID
		slot.set = true
	}
}
