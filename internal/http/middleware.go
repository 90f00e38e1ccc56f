package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"sessiongate/internal/gate"
	"sessiongate/internal/identity"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// StatusRecorder counts responses by status code.
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

func newSlogMiddleware(logger *slog.Logger, statuses StatusRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", duration.String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
			if statuses != nil {
				statuses.RecordHTTPStatus(recorder.status)
			}
		})
	}
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey   contextKey = "user"
	clientContextKey contextKey = "client"
)

// UserFromContext extracts the user the gate authorized for this request.
// Returns nil outside the protected route group.
func UserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey).(*identity.User)
	return user
}

// ClientFromContext returns the browser client resolved by the client middleware.
func ClientFromContext(ctx context.Context) *Client {
	client, _ := ctx.Value(clientContextKey).(*Client)
	return client
}

// newClientMiddleware attaches the caller's Client, issuing a client cookie for new browsers.
func newClientMiddleware(registry *ClientRegistry, cookies cookieFactory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(clientCookieName); err == nil {
				id = cookie.Value
			}

			client, created := registry.Resolve(id)
			if created {
				http.SetCookie(w, cookies.client(client.ID))
			}

			ctx := context.WithValue(r.Context(), clientContextKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// newGateMiddleware mounts the client's gate for every protected navigation. The
// nested handler runs only for an authorized mount; everything else is redirected to
// the entry point with the requested path as the intent.
func newGateMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientFromContext(r.Context())
			if client == nil {
				logger.Error("gate mounted without a client")
				http.Redirect(w, r, gate.DefaultEntryPoint, http.StatusFound)
				return
			}

			decision := client.Gate().Guard(r.Context(), sessionToken(r), r.URL.RequestURI())
			w.Header().Set("Cache-Control", "no-store")

			if decision.State != gate.StateAuthorized || decision.User == nil {
				target := client.Gate().EntryPoint()
				if decision.Redirect != nil {
					target = decision.Redirect.Target
				}
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, decision.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
