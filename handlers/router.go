package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kevinaaaquil/grimoire/metrics"
	"github.com/kevinaaaquil/grimoire/middleware"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Books       *BooksHandler
	Auth        *AuthHandler
	Images      *ImagesHandler
	JWTSecret   string
	Metrics     *metrics.Metrics
	AuthLimiter *middleware.RateLimiter
	CORSOrigins []string
	Logger      *zap.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(d.CORSOrigins))
	r.Use(d.Metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/images/{name}", d.Images.Get)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if d.AuthLimiter != nil {
				r.Use(d.AuthLimiter.Middleware)
			}
			r.Post("/signup", d.Auth.Signup)
			r.Post("/login", d.Auth.Login)
		})
		r.Route("/books", func(r chi.Router) {
			r.Get("/", d.Books.List)
			r.Get("/bestrating", d.Books.BestRating)
			r.Get("/{id}", d.Books.Get)
			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(d.JWTSecret))
				r.Post("/", d.Books.Create)
				r.Put("/{id}", d.Books.Update)
				r.Delete("/{id}", d.Books.Delete)
				r.Post("/{id}/rating", d.Books.Rate)
			})
		})
	})
	return r
}
