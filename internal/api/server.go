// Package api provides the HTTP API server and handlers for the tagyard server.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tagyard/tagyard-server/internal/auth"
	"github.com/tagyard/tagyard-server/internal/metrics"
	"github.com/tagyard/tagyard-server/internal/ratelimit"
	"github.com/tagyard/tagyard-server/internal/relationship"
	"github.com/tagyard/tagyard-server/internal/service"
	"github.com/tagyard/tagyard-server/internal/sse"
	"github.com/tagyard/tagyard-server/internal/validation"
)

// Services groups the business logic used by the API server.
type Services struct {
	Relationships *relationship.Engine
	Posts         *service.PostService
	// WriteLimiter throttles mutating requests per IP. Nil disables it.
	WriteLimiter *ratelimit.KeyedRateLimiter
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services   *Services
	tokens     *auth.TokenService
	sseManager *sse.Manager
	metrics    *metrics.Metrics
	db         Pinger
	validator  *validation.Validator
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
// sseManager, m and db may be nil; the matching routes and checks degrade.
func NewServer(services *Services, tokens *auth.TokenService, sseManager *sse.Manager, m *metrics.Metrics, db Pinger, logger *slog.Logger) *Server {
	s := &Server{
		services:   services,
		tokens:     tokens,
		sseManager: sseManager,
		metrics:    m,
		db:         db,
		validator:  validation.New(),
		router:     chi.NewRouter(),
		logger:     logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Tagyard API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerRelationshipRoutes()
	s.registerTagRoutes()
	s.registerPostRoutes()
	s.registerStreamRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(writeLimitMiddleware(s.services.WriteLimiter, s.logger))
	s.router.Use(authMiddleware(s.tokens))
}

// registerStreamRoutes mounts the plain http handlers that huma does not model.
func (s *Server) registerStreamRoutes() {
	if s.sseManager != nil {
		s.router.Get("/events", sse.NewHandler(s.sseManager, identify, s.logger).ServeHTTP)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// emit forwards an event to connected clients when streaming is enabled.
func (s *Server) emit(event sse.Event) {
	if s.sseManager != nil {
		s.sseManager.Emit(event)
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
