// Package runtime assembles the service from its configuration and manages
// its lifecycle: the interception pipeline, the HTTP server, the journal
// and the options monitor.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/constraint"
	"github.com/tjfontaine/webapi-sample/internal/httpclient"
	"github.com/tjfontaine/webapi-sample/internal/interceptor"
	"github.com/tjfontaine/webapi-sample/internal/pipeline"
	"github.com/tjfontaine/webapi-sample/internal/sample"
	"github.com/tjfontaine/webapi-sample/internal/server"
	"github.com/tjfontaine/webapi-sample/internal/storage"
	"github.com/tjfontaine/webapi-sample/internal/storage/memory"
	"github.com/tjfontaine/webapi-sample/internal/storage/sqlite"
	"github.com/tjfontaine/webapi-sample/internal/telemetry"
)

// App is the assembled service. It can be embedded in larger programs or
// run standalone by cmd/webapi.
type App struct {
	// Dependencies (injected via options)
	cfg        *config.Config
	configPath string
	overrides  []string
	logger     *slog.Logger
	registerer prometheus.Registerer
	registry   *interceptor.Registry
	journal    storage.Journal
	transport  http.RoundTripper
	listener   net.Listener

	// Assembled state
	ownsJournal  bool
	metrics      *telemetry.Metrics
	monitor      *config.Monitor
	server       *server.Server
	interceptors []string
	kinds        map[string]string

	// Lifecycle management
	mu      sync.Mutex
	cancel  context.CancelFunc
	addr    net.Addr
	started bool
}

// New loads the configuration (unless WithConfig supplied one) and
// assembles the service. Nothing listens until Start.
func New(opts ...Option) (*App, error) {
	a := &App{
		configPath: config.DefaultPath,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.cfg == nil {
		cfg, err := config.LoadFrom(a.configPath, a.overrides)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		a.cfg = cfg
	}
	if a.registerer == nil {
		a.registerer = prometheus.NewRegistry()
	}
	if a.registry == nil {
		a.registry = interceptor.NewDefaultRegistry()
	}

	if err := a.assemble(); err != nil {
		if a.ownsJournal {
			a.journal.Close()
		}
		return nil, err
	}
	return a, nil
}

func (a *App) assemble() error {
	cfg := a.cfg

	if a.journal == nil {
		journal, err := openJournal(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.journal = journal
		a.ownsJournal = journal != nil
	}

	a.metrics = telemetry.NewMetrics(a.registerer)
	a.monitor = config.NewMonitor(a.configPath, a.overrides, cfg.Options, a.logger)

	interceptors, err := a.registry.Build(cfg.Interceptors, interceptor.Deps{
		Logger:  a.logger,
		Metrics: a.metrics,
		Journal: a.journal,
	})
	if err != nil {
		return fmt.Errorf("build interceptors: %w", err)
	}
	a.kinds = make(map[string]string, len(cfg.Interceptors))
	for _, ic := range cfg.Interceptors {
		kind := ic.Kind
		if kind == "" {
			kind = interceptor.DefaultKind
		}
		a.kinds[ic.Name] = kind
	}
	for _, ic := range interceptors {
		a.interceptors = append(a.interceptors, ic.Label)
	}

	var chainOpts []pipeline.Option
	if cfg.Pipeline.Tracing {
		chainOpts = append(chainOpts, pipeline.WithTracer(telemetry.Tracer()))
	}
	if cfg.Pipeline.UnwindOnStop {
		chainOpts = append(chainOpts, pipeline.WithUnwindOnStop())
	}

	mw, err := pipeline.Middleware(interceptors, pipeline.HTTPConfig{
		RequestID: func(r *http.Request) string {
			return server.GetRequestID(r.Context())
		},
		OnError:      a.pipelineError,
		OnHalt:       a.pipelineHalt,
		CaptureLimit: cfg.Pipeline.CaptureLimit,
		Options:      chainOpts,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	a.server = server.New(server.Config{
		ServiceName:    cfg.App.Name,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         a.logger,
		Pipeline:       mw,
	})

	// Operational endpoints bypass the pipeline.
	a.server.Router.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	if a.journal != nil {
		a.server.Router.Get("/_journal", server.JournalHandler(a.journal))
	}

	var clientOpts []httpclient.FactoryOption
	if a.transport != nil {
		clientOpts = append(clientOpts, httpclient.WithTransport(a.transport))
	}
	clients := httpclient.NewFactory(cfg.Clients, clientOpts...)

	var github *httpclient.GitHub
	if c, err := clients.Named("github"); err == nil {
		github = httpclient.NewGitHub(c)
	} else {
		a.logger.Warn("github client not configured, /apisample/doc disabled")
	}

	handler := sample.NewHandler(sample.Deps{
		Logger:      a.logger,
		Options:     a.monitor,
		Clients:     clients,
		GitHub:      github,
		Rand:        sample.NewRand(cfg.Sample.Seed),
		Settings:    cfg.Sample,
		Development: cfg.IsDevelopment(),
	})
	if err := handler.Mount(a.server.App, constraint.Default()); err != nil {
		return fmt.Errorf("mount sample routes: %w", err)
	}

	return nil
}

func openJournal(cfg config.StorageConfig) (storage.Journal, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory.Capacity), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if !strings.HasPrefix(path, "file:") && path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
		store, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// pipelineError answers requests whose dispatch failed inside the pipeline.
func (a *App) pipelineError(w http.ResponseWriter, r *http.Request, err error, wroteHeader bool) {
	server.AddError(r.Context(), err)
	if wroteHeader {
		return
	}

	message := "An error occurred while processing the request."
	if a.cfg.IsDevelopment() {
		message = err.Error()
	}
	server.WriteError(w, http.StatusInternalServerError, server.ErrorTypeServer, message)
}

func (a *App) pipelineHalt(r *http.Request, h *pipeline.Halted) {
	ctx := r.Context()
	server.AddLogField(ctx, "halted_by", h.Interceptor)

	a.logger.InfoContext(ctx, "request stopped by interceptor",
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.String("interceptor", h.Interceptor),
		slog.Int("status", h.Status),
		slog.String("reason", h.Reason))

	if !a.cfg.Pipeline.UnwindOnStop {
		a.recordStop(r, h)
	}
}

// recordStop stands in for the post-hooks a short-circuit skips when the
// chain does not unwind: metrics and journal interceptors placed outside the
// stopping one record the stop as their post-hooks would have.
func (a *App) recordStop(r *http.Request, h *pipeline.Halted) {
	ctx := context.WithoutCancel(r.Context())
	for _, label := range a.interceptors {
		if label == h.Interceptor {
			return
		}
		switch a.kinds[label] {
		case interceptor.KindMetrics:
			a.metrics.InterceptorStops.WithLabelValues(h.Interceptor, strconv.Itoa(h.Status)).Inc()
			a.metrics.InterceptorRequests.WithLabelValues(label, "stopped").Inc()
		case interceptor.KindJournal:
			e := storage.Entry{
				RequestID:   server.GetRequestID(ctx),
				Interceptor: label,
				Method:      r.Method,
				Path:        r.URL.Path,
				Status:      h.Status,
				HaltedBy:    h.Interceptor,
			}
			if err := a.journal.Append(ctx, e); err != nil {
				a.logger.ErrorContext(ctx, "failed to append journal entry",
					slog.String("interceptor", label),
					slog.String("request_id", e.RequestID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Handler returns the root HTTP handler, operational endpoints included.
func (a *App) Handler() http.Handler {
	return a.server
}

// Config returns the configuration the app was assembled from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Options returns the hot-reloadable options source.
func (a *App) Options() *config.Monitor {
	return a.monitor
}

// Journal returns the request journal, or nil when storage.type is none.
func (a *App) Journal() storage.Journal {
	return a.journal
}

// Addr returns the bound address once Start has returned.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Start binds the listener, starts serving in the background, begins
// watching the configuration file and marks the service ready.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.New("app already started")
	}

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen on port %d: %w", a.cfg.Server.Port, err)
		}
	}
	if err := a.server.Serve(ln); err != nil {
		ln.Close()
		return fmt.Errorf("start server: %w", err)
	}
	a.addr = ln.Addr()

	watchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if _, err := os.Stat(a.configPath); err == nil {
		if err := a.monitor.Watch(watchCtx); err != nil {
			a.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		}
	}

	a.server.Health.SetReady(true)
	a.started = true

	a.logger.Info("application started",
		slog.String("addr", a.addr.String()),
		slog.String("environment", a.cfg.App.Environment),
		slog.String("environment_mode", a.cfg.EnvironmentMode()),
		slog.Any("interceptors", a.interceptors),
		slog.String("option1", a.monitor.Current().Option1),
		slog.Group("sample_setting",
			slog.String("key1", a.cfg.SampleSetting.Key1),
			slog.String("key2", a.cfg.SampleSetting.Key2)))

	return nil
}

// Shutdown drains in-flight requests until ctx is done, then releases the
// journal and the config watcher.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("application stopping")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}

	if err := a.monitor.Close(); err != nil {
		a.logger.Error("failed to close config watcher", slog.String("error", err.Error()))
	}

	if a.ownsJournal {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("failed to close journal", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}

	a.started = false
	a.logger.Info("application stopped")
	return errors.Join(errs...)
}
