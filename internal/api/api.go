// Package api exposes the registry over HTTP: cookie based authentication and
// found-item form submission, listing and export.
package api

import (
	"context"
	"fmt"
	"net/http"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/foundreg/internal/forms"
	httpmiddleware "github.com/wolfeidau/foundreg/internal/http"
	"github.com/wolfeidau/foundreg/internal/logger"
	"github.com/wolfeidau/foundreg/internal/login"
)

// DefaultCORSOrigins are always allowed in addition to configured origins.
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// Config holds the HTTP API settings.
type Config struct {
	// CORSOrigins are allowed in addition to DefaultCORSOrigins. Cross-origin
	// state changing requests are only accepted from these origins.
	CORSOrigins []string

	// Ping reports whether the backing store is reachable, used by /healthz.
	// Optional.
	Ping func(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	login  *login.Service
	forms  *forms.Service
	logger zerolog.Logger
	cfg    Config
}

// NewServer creates an API server.
func NewServer(loginSvc *login.Service, formsSvc *forms.Service, logger zerolog.Logger, cfg Config) *Server {
	return &Server{
		login:  loginSvc,
		forms:  formsSvc,
		logger: logger,
		cfg:    cfg,
	}
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler() (http.Handler, error) {
	origins := s.origins()

	protection := csrf.New()
	for _, origin := range origins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true, // cookie authentication
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Requests(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.ClientIPMiddleware())
	r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })
	r.Use(corsHandler.Handler)
	r.Use(protection.Handler)

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.With(s.login.RequireAuth).Get("/me", s.handleMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.login.RequireAuth)

		r.Get("/protected", s.handleProtected)

		r.Route("/found-item-forms", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/my", s.handleListMine)
			r.Get("/export", s.handleExport)
			r.Get("/{id}", s.handleGet)
		})
	})

	return r, nil
}

func (s *Server) origins() []string {
	seen := make(map[string]struct{})
	var origins []string
	for _, origin := range append(append([]string{}, s.cfg.CORSOrigins...), DefaultCORSOrigins...) {
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ping != nil {
		if err := s.cfg.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
