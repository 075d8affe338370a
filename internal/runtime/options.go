package runtime

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/interceptor"
	"github.com/tjfontaine/webapi-sample/internal/storage"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithConfigFile reads configuration from path (default config.yaml) and
// watches it for options changes. overrides are key=value pairs applied on
// top of the file and the environment.
func WithConfigFile(path string, overrides ...string) Option {
	return func(a *App) error {
		a.configPath = path
		a.overrides = overrides
		return nil
	}
}

// WithConfig uses an already loaded configuration instead of reading one.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithRegisterer registers the pipeline metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) error {
		a.registerer = reg
		return nil
	}
}

// WithInterceptorRegistry builds the chain from a custom set of kinds.
func WithInterceptorRegistry(r *interceptor.Registry) Option {
	return func(a *App) error {
		a.registry = r
		return nil
	}
}

// WithJournal sets the request journal. The caller keeps ownership and
// closes it.
func WithJournal(j storage.Journal) Option {
	return func(a *App) error {
		a.journal = j
		return nil
	}
}

// WithTransport routes every outbound client through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *App) error {
		a.transport = rt
		return nil
	}
}

// WithListener serves on ln instead of listening on server.port.
func WithListener(ln net.Listener) Option {
	return func(a *App) error {
		a.listener = ln
		return nil
	}
}
