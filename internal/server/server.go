// Package server assembles the HTTP surface: the chi router, the ambient
// middleware stack and the operational endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config configures a Server.
type Config struct {
	ServiceName    string
	RequestTimeout time.Duration
	Logger         *slog.Logger

	// Pipeline wraps every application route. It runs inside the ambient
	// middleware and outside the request timeout.
	Pipeline func(http.Handler) http.Handler
}

type Server struct {
	// Router is the root router; operational endpoints mount here and
	// bypass the interception pipeline.
	Router *chi.Mux
	// App is the route group behind the interception pipeline.
	App    chi.Router
	Health *Health

	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "webapi-sample"
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	})

	// A known path with an unrouted method never reaches the App group, so
	// the 405 answer runs behind the pipeline itself.
	var methodNotAllowed http.Handler = http.HandlerFunc(MethodNotAllowed)
	if cfg.Pipeline != nil {
		methodNotAllowed = cfg.Pipeline(methodNotAllowed)
	}
	r.NotFound(NotFound)
	r.MethodNotAllowed(methodNotAllowed.ServeHTTP)

	health := &Health{}
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)

	app := r.Group(func(g chi.Router) {
		if cfg.Pipeline != nil {
			g.Use(cfg.Pipeline)
		}
		if cfg.RequestTimeout > 0 {
			g.Use(TimeoutMiddleware(cfg.RequestTimeout))
		}
	})

	return &Server{
		Router: r,
		App:    app,
		Health: health,
		logger: logger,
	}
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Serve serves on ln in the background. Serve errors are logged.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Health.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
