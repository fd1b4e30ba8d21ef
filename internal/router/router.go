// Package router sets up the HTTP routes and middleware chain for the
// taxonomy API server.
package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taxo/internal/handlers"
	"taxo/internal/middleware"
	"taxo/internal/queue"
)

// New creates and returns the configured Chi router with all middleware
// and the category routes wired up. The returned stop function releases
// the rate limiter's background goroutine.
func New(categories *handlers.Categories, rebuilds *queue.Queue) (chi.Router, func()) {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	// Health check.
	r.Get("/health", healthHandler(rebuilds))

	// Tree mutations fan out into path rebuilds, so writes are limited
	// per client IP. Reads stay unthrottled.
	writeLimiter := middleware.NewRateLimiter(60, time.Minute)

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", categories.List)
		r.Get("/tree", categories.Tree)

		r.Group(func(r chi.Router) {
			r.Use(writeLimiter.Middleware)
			r.Post("/", categories.Create)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", categories.Show)
			r.Get("/ancestors", categories.Ancestors)
			r.Get("/descendants", categories.Descendants)
			r.Get("/breadcrumb", categories.Breadcrumb)

			r.Group(func(r chi.Router) {
				r.Use(writeLimiter.Middleware)
				r.Put("/", categories.Update)
				r.Delete("/", categories.Delete)
			})
		})
	})

	return r, writeLimiter.Stop
}

// healthHandler returns a JSON health check response. When a rebuild
// queue is attached, the response includes its backlog; a queue error
// does not fail the check, the server itself is still up.
func healthHandler(rebuilds *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if rebuilds != nil {
			if n, err := rebuilds.Pending(r.Context()); err == nil {
				fmt.Fprintf(w, `{"status":"ok","pending_rebuilds":%d}`, n)
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	}
}
