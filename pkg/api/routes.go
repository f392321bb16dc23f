package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/qrdesk/qrdesk/pkg/directory"
	"github.com/qrdesk/qrdesk/pkg/ledger"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Auth,
				))
			}

			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.handleMe)
			})
		})

		// Ledger endpoints. Every role may read its own view; mutations
		// are gated by role level.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Authenticated,
				))
			}

			r.Get("/items", s.handleListItems)
			r.Get("/archive", s.handleListArchive)
			r.Get("/qr/{code}", s.handleFindByQRCode)

			r.With(s.requireRole(ledger.CreateRole)).
				Post("/items", s.handleCreateItem)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(ledger.MoveRole))
				r.Post("/items/{id}/issue", s.handleIssueItem)
				r.Post("/items/{id}/return", s.handleReturnItem)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireRole(directory.ManagerRole))

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Authenticated,
				))
			}

			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Post("/users/{phone}/block", s.handleToggleBlock)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
