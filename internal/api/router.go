package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/reviewrelay/internal/api/middleware"
	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler       http.HandlerFunc
	AskHandler          http.HandlerFunc
	AnalyzeImageHandler http.HandlerFunc
	AddReviewHandler    http.HandlerFunc
	ListReviewsHandler  http.HandlerFunc
	DeleteReviewHandler http.HandlerFunc
	TagGraphHandler     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	// Public health check
	r.Get("/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/ask_ai", orNotImplemented(deps.AskHandler))
		r.Post("/analyze_image", orNotImplemented(deps.AnalyzeImageHandler))

		r.Route("/review", func(r chi.Router) {
			r.Post("/add", orNotImplemented(deps.AddReviewHandler))
			r.Get("/list", orNotImplemented(deps.ListReviewsHandler))
			r.Delete("/delete/{id}", orNotImplemented(deps.DeleteReviewHandler))
			r.Get("/graph", orNotImplemented(deps.TagGraphHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented")
	}
}
