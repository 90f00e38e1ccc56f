package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"sessiongate/internal/config"
	"sessiongate/internal/gate"
	"sessiongate/internal/identity"
	"sessiongate/internal/metrics"
)

// Metrics is the subset of metrics.Collector the router reports to.
type Metrics interface {
	StatusRecorder
	SignInRecorder
}

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Identity *identity.Service
	Clients  *ClientRegistry
	// Google is nil when federated sign-in is disabled.
	Google   GoogleFederation
	Metrics  Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, deps Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	var statuses StatusRecorder
	var signIns SignInRecorder
	if deps.Metrics != nil {
		statuses = deps.Metrics
		signIns = deps.Metrics
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger, statuses))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
			"clients":     deps.Clients.Len(),
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	cookies := newCookieFactory(cfg.Environment)
	views := NewViewHandler(deps.Identity, deps.Google != nil, logger)
	authHandler := NewAuthHandler(deps.Identity, cfg.SignInPerMin, signIns, cfg.Environment, logger)
	sessionHandler := NewSessionHandler(deps.Identity, cfg.Environment, logger)

	r.Group(func(r chi.Router) {
		r.Use(newClientMiddleware(deps.Clients, cookies))

		r.Get(gate.DefaultEntryPoint, views.Login)
		r.Get("/recover-password", views.RecoverPassword)

		r.Route("/api", func(r chi.Router) {
			r.Get("/session", sessionHandler.Status)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/sign-in", authHandler.SignIn)
				r.Post("/sign-up", authHandler.SignUp)
				r.Post("/sign-out", sessionHandler.SignOut)
				r.Post("/reset-password", authHandler.ResetPassword)
				r.Post("/recover", authHandler.Recover)
				r.Get("/email-exists", authHandler.EmailExists)

				if deps.Google != nil {
					oauthHandler := NewOAuthHandler(deps.Google, deps.Identity, signIns, cfg.FrontendURL, cfg.Environment, logger)
					r.Get("/google", oauthHandler.InitiateGoogle)
					r.Get("/google/callback", oauthHandler.CallbackGoogle)
				} else {
					logger.Info("google sign-in disabled")
				}
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(newGateMiddleware(logger))

			r.Get("/", views.Home)
			r.Get("/profile", views.Profile)
			r.Put("/profile", views.UpdateProfile)
			r.Put("/profile/password", views.UpdatePassword)
			r.Get("/settings", views.Settings)
			r.Get("/help", views.Help)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, gate.DefaultEntryPoint, http.StatusFound)
	})

	return r
}
