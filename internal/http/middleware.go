package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/picknpay/internal/realtime"
	"github.com/go-chi/chi/v5/middleware"
)

const identityHeader = "X-User-Email"

type ctxKey int

const callerKey ctxKey = iota

// CallerResolver reads the caller identity from the X-User-Email header, or the
// identity query parameter for clients that cannot set headers (websocket upgrades).
func CallerResolver(adminIdentity string) realtime.CallerFunc {
	return func(r *http.Request) (realtime.Caller, bool) {
		identity := strings.TrimSpace(r.Header.Get(identityHeader))
		if identity == "" {
			identity = strings.TrimSpace(r.URL.Query().Get("identity"))
		}
		if identity == "" {
			return realtime.Caller{}, false
		}
		return realtime.Caller{
			Identity: identity,
			Admin:    strings.EqualFold(identity, adminIdentity),
		}, true
	}
}

// IdentityMiddleware rejects anonymous requests and stores the caller in the context.
func IdentityMiddleware(resolve realtime.CallerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := resolve(r)
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFromContext(r.Context())
		if !ok || !caller.Admin {
			respondError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerFromContext(ctx context.Context) (realtime.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(realtime.Caller)
	return caller, ok
}

// RequestLogger writes one structured access log line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr)
		})
	}
}
