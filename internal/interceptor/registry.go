// Package interceptor turns the configured interceptor list into pipeline
// interceptors.
//
// Each entry names a kind; the kind's Factory builds the hooks. Factories
// receive their collaborators through Deps at build time and must not keep
// per-request state, since the resulting interceptor is shared by every
// request for the lifetime of the process.
//
// Registering a custom kind:
//
//	reg := interceptor.NewRegistry()
//	interceptor.RegisterBuiltins(reg)
//	reg.Register(interceptor.Factory{
//	    Kind:        "tenant-header",
//	    Description: "Rejects requests without X-Tenant",
//	    Create:      newTenantHeader,
//	})
package interceptor

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/pipeline"
	"github.com/tjfontaine/webapi-sample/internal/storage"
	"github.com/tjfontaine/webapi-sample/internal/telemetry"
)

// DefaultKind is used for entries that do not name a kind.
const DefaultKind = KindRequestURL

// Deps are the collaborators handed to factories.
type Deps struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Journal storage.Journal
}

// Factory builds interceptors of one kind.
type Factory struct {
	// Kind is the identifier used in configuration (e.g., "request-url").
	Kind string

	// Description is a human-readable summary, shown in startup logs.
	Description string

	// Create builds the interceptor for one configuration entry. The label
	// of the returned interceptor is always replaced by the entry name.
	Create func(cfg config.InterceptorConfig, deps Deps) (pipeline.Interceptor, error)
}

// Registry maps kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry holding the built-in kinds.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// Register adds a factory. Panics if the kind is empty, has no Create
// function or is already registered.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Kind == "" {
		panic("interceptor factory kind cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("interceptor factory %q must have a Create function", f.Kind))
	}
	if _, exists := r.factories[f.Kind]; exists {
		panic(fmt.Sprintf("interceptor factory %q already registered", f.Kind))
	}
	r.factories[f.Kind] = f
}

// Lookup returns the factory for kind, if registered.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates interceptors for the enabled entries, preserving order.
func (r *Registry) Build(entries []config.InterceptorConfig, deps Deps) ([]pipeline.Interceptor, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	out := make([]pipeline.Interceptor, 0, len(entries))
	for i, entry := range entries {
		if !entry.Enabled {
			deps.Logger.Debug("interceptor disabled", slog.String("name", entry.Name))
			continue
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("interceptor %d: name is required", i)
		}
		kind := entry.Kind
		if kind == "" {
			kind = DefaultKind
		}

		f, ok := r.Lookup(kind)
		if !ok {
			return nil, fmt.Errorf("interceptor %q: unknown kind %q", entry.Name, kind)
		}

		ic, err := f.Create(entry, deps)
		if err != nil {
			return nil, fmt.Errorf("interceptor %q: %w", entry.Name, err)
		}
		ic.Label = entry.Name
		out = append(out, ic)

		deps.Logger.Info("interceptor installed",
			slog.Int("position", len(out)),
			slog.String("name", entry.Name),
			slog.String("kind", kind))
	}

	if err := pipeline.Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}
