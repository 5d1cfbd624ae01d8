package routes

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/bookswap/internal/auth"
	"github.com/BradenHooton/bookswap/internal/handlers"
	"github.com/BradenHooton/bookswap/internal/metrics"
	middlewareCustom "github.com/BradenHooton/bookswap/internal/middleware"
	"github.com/BradenHooton/bookswap/internal/policy"
	"github.com/BradenHooton/bookswap/internal/storage"
	pkghttp "github.com/BradenHooton/bookswap/pkg/http"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Books  *handlers.BookHandler
	Swaps  *handlers.SwapHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// Options configures the router's middleware stack.
type Options struct {
	Env            string
	AllowedOrigins []string
	TrustedProxies pkghttp.TrustedProxies
	AuthRateLimit  int
	WriteRateLimit int
	RequestTimeout time.Duration
	// UploadDir is served under /uploads/ when images are stored locally.
	UploadDir string

	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Authenticator *auth.Authenticator
	Users         auth.UserFetcher
	Policy        *policy.Policy
}

// NewRouter builds the application router with its global middleware.
func NewRouter(h Handlers, opts Options) chi.Router {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}
	router.Use(middlewareCustom.SecureLogger(opts.Logger, opts.TrustedProxies))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(opts.AllowedOrigins)))
	router.Use(middleware.Timeout(opts.RequestTimeout))

	router.Get("/health", h.Health.Health)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.UploadDir != "" {
		router.Handle(storage.UploadsPrefix+"*", uploadsHandler(opts.UploadDir))
	}

	router.Route("/api", func(r chi.Router) {
		RegisterRoutes(r, h, opts)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return router
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	authLimit := middlewareCustom.DefaultAuthRateLimit()
	if opts.AuthRateLimit > 0 {
		authLimit.RequestsPerMinute = opts.AuthRateLimit
	}
	authLimit.TrustedProxies = opts.TrustedProxies

	writeLimit := middlewareCustom.RateLimitConfig{RequestsPerMinute: opts.WriteRateLimit, TrustedProxies: opts.TrustedProxies}
	limitWrites := func(next http.Handler) http.Handler { return next }
	if writeLimit.RequestsPerMinute > 0 {
		limitWrites = middlewareCustom.RateLimitByUser(writeLimit)
	}

	csrf := middlewareCustom.CSRFProtection(opts.Logger)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middlewareCustom.RateLimitByIP(authLimit))
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)
	})
	router.Get("/books", h.Books.List)

	// Unapproved books are visible to their owner and admins
	router.With(opts.Authenticator.Optional).Get("/books/{id}", h.Books.Get)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(opts.Authenticator.Require)
		r.Use(csrf)

		r.Get("/auth/me", h.Auth.Me)
		r.Post("/auth/logout", h.Auth.Logout)

		r.Get("/books/mine", h.Books.Mine)
		r.Get("/swaps/mine", h.Swaps.Mine)
		r.Get("/swaps/incoming", h.Swaps.Incoming)

		// Writes share one per-user budget
		r.Group(func(r chi.Router) {
			r.Use(limitWrites)
			r.Post("/books", h.Books.Create)
			r.Put("/books/{id}", h.Books.Update)
			r.Delete("/books/{id}", h.Books.Delete)

			r.Post("/swaps/request", h.Swaps.Request)
			r.Post("/swaps/{id}/approve", h.Swaps.Approve)
			r.Post("/swaps/{id}/reject", h.Swaps.Reject)
			r.Post("/swaps/{id}/cancel", h.Swaps.Cancel)
			r.Patch("/swaps/{id}", h.Swaps.Resolve)
		})

		// Admin-only routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(opts.Users, opts.Policy))
			r.Get("/books", h.Admin.ListBooks)
			r.Patch("/books/{id}/approve", h.Admin.ApproveBook)
			r.Patch("/books/{id}/reject", h.Admin.RejectBook)
			r.Delete("/books/{id}", h.Admin.DeleteBook)
		})
	})
}

// uploadsHandler serves stored images without directory listings.
func uploadsHandler(dir string) http.Handler {
	files := http.StripPrefix(storage.UploadsPrefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			pkghttp.WriteNotFound(w, "Not found")
			return
		}
		files.ServeHTTP(w, r)
	})
}
