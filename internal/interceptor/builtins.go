package interceptor

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/pipeline"
	"github.com/tjfontaine/webapi-sample/internal/storage"
)

// Built-in kinds.
const (
	KindRequestURL   = "request-url"
	KindMetrics      = "metrics"
	KindAllowMethods = "allow-methods"
	KindAPIKey       = "api-key"
	KindJournal      = "journal"
)

// NoTitle is logged when a request-url entry has a blank title.
const NoTitle = "(no title)"

// RegisterBuiltins adds the built-in kinds to r.
func RegisterBuiltins(r *Registry) {
	r.Register(Factory{
		Kind:        KindRequestURL,
		Description: "Logs the request path before and after the inner stages",
		Create:      newRequestURL,
	})
	r.Register(Factory{
		Kind:        KindMetrics,
		Description: "Counts requests and records inner-stage latency",
		Create:      newMetrics,
	})
	r.Register(Factory{
		Kind:        KindAllowMethods,
		Description: "Stops requests whose method is not allowed with 405",
		Create:      newAllowMethods,
	})
	r.Register(Factory{
		Kind:        KindAPIKey,
		Description: "Stops requests without a known API key with 401",
		Create:      newAPIKey,
	})
	r.Register(Factory{
		Kind:        KindJournal,
		Description: "Appends completed requests to the request journal",
		Create:      newJournal,
	})
}

func newRequestURL(cfg config.InterceptorConfig, deps Deps) (pipeline.Interceptor, error) {
	title := cfg.Title
	if strings.TrimSpace(title) == "" {
		title = NoTitle
	}
	logger := deps.Logger.With(slog.String("interceptor", cfg.Name), slog.String("title", title))

	return pipeline.Interceptor{
		Pre: func(req *pipeline.Request) (pipeline.Decision, error) {
			if path := req.Path(); strings.TrimSpace(path) != "" {
				logger.InfoContext(req.Context(), "request started",
					slog.String("request_id", req.ID()),
					slog.String("path", path))
			}
			return pipeline.Continue, nil
		},
		Post: func(req *pipeline.Request, exit pipeline.Exit) {
			path := req.Path()
			if strings.TrimSpace(path) == "" {
				return
			}
			attrs := []any{
				slog.String("request_id", req.ID()),
				slog.String("path", path),
				slog.Duration("elapsed", exit.Elapsed),
			}
			switch {
			case exit.Err != nil:
				attrs = append(attrs, slog.String("error", exit.Err.Error()))
			case exit.Halt != nil:
				attrs = append(attrs, slog.String("halted_by", exit.Halt.Interceptor))
			case exit.Response != nil:
				attrs = append(attrs, slog.Int("status", exit.Response.Status()))
			}
			logger.InfoContext(req.Context(), "request finished", attrs...)
		},
	}, nil
}

func newMetrics(cfg config.InterceptorConfig, deps Deps) (pipeline.Interceptor, error) {
	if deps.Metrics == nil {
		return pipeline.Interceptor{}, errors.New("metrics kind requires a metrics registry")
	}
	m := deps.Metrics
	label := cfg.Name

	return pipeline.Interceptor{
		Post: func(_ *pipeline.Request, exit pipeline.Exit) {
			outcome := "ok"
			switch {
			case exit.Err != nil:
				outcome = "error"
			case exit.Halt != nil:
				outcome = "stopped"
				m.InterceptorStops.WithLabelValues(exit.Halt.Interceptor, strconv.Itoa(exit.Halt.Status)).Inc()
			case exit.Response != nil && exit.Response.Status() >= http.StatusInternalServerError:
				outcome = "server_error"
			}
			m.InterceptorRequests.WithLabelValues(label, outcome).Inc()
			m.InterceptorDuration.WithLabelValues(label).Observe(exit.Elapsed.Seconds())
		},
	}, nil
}

func newAllowMethods(cfg config.InterceptorConfig, _ Deps) (pipeline.Interceptor, error) {
	if len(cfg.Methods) == 0 {
		return pipeline.Interceptor{}, errors.New("allow-methods requires at least one method")
	}
	allowed := make(map[string]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		allowed[strings.ToUpper(strings.TrimSpace(m))] = true
	}

	return pipeline.Interceptor{
		Pre: func(req *pipeline.Request) (pipeline.Decision, error) {
			if allowed[req.Method()] {
				return pipeline.Continue, nil
			}
			return pipeline.Halt(http.StatusMethodNotAllowed, "method "+req.Method()+" is not allowed"), nil
		},
	}, nil
}

func newAPIKey(cfg config.InterceptorConfig, _ Deps) (pipeline.Interceptor, error) {
	if len(cfg.KeyHashes) == 0 {
		return pipeline.Interceptor{}, errors.New("api-key requires at least one key hash")
	}
	hashes := make([][]byte, 0, len(cfg.KeyHashes))
	for _, h := range cfg.KeyHashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, err := hex.DecodeString(h); err != nil || len(h) != sha256.Size*2 {
			return pipeline.Interceptor{}, errors.New("api-key hashes must be hex-encoded SHA-256")
		}
		hashes = append(hashes, []byte(h))
	}

	return pipeline.Interceptor{
		Pre: func(req *pipeline.Request) (pipeline.Decision, error) {
			key := ExtractAPIKey(req)
			if key == "" {
				return pipeline.Halt(http.StatusUnauthorized, "missing API key"), nil
			}
			candidate := []byte(HashAPIKey(key))
			match := 0
			// Constant-time comparison against every hash to prevent timing attacks
			for _, h := range hashes {
				match |= subtle.ConstantTimeCompare(candidate, h)
			}
			if match != 1 {
				return pipeline.Halt(http.StatusUnauthorized, "invalid API key"), nil
			}
			return pipeline.Continue, nil
		},
	}, nil
}

// ExtractAPIKey returns the key from "Authorization: Bearer <key>" or
// X-API-Key, or "" when neither carries one.
func ExtractAPIKey(req *pipeline.Request) string {
	if auth := req.Header("Authorization"); auth != "" {
		scheme, key, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(req.Header("X-API-Key"))
}

// HashAPIKey creates a SHA-256 hash of an API key for configuration.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

func newJournal(cfg config.InterceptorConfig, deps Deps) (pipeline.Interceptor, error) {
	if deps.Journal == nil {
		return pipeline.Interceptor{}, errors.New("journal kind requires a journal store")
	}
	journal := deps.Journal
	logger := deps.Logger
	label := cfg.Name

	return pipeline.Interceptor{
		Post: func(req *pipeline.Request, exit pipeline.Exit) {
			e := storage.Entry{
				RequestID:   req.ID(),
				Interceptor: label,
				Method:      req.Method(),
				Path:        req.Path(),
				Duration:    exit.Elapsed,
			}
			switch {
			case exit.Err != nil:
				e.Error = exit.Err.Error()
			case exit.Halt != nil:
				e.HaltedBy = exit.Halt.Interceptor
				e.Status = exit.Halt.Status
			case exit.Response != nil:
				e.Status = exit.Response.Status()
				e.Size = exit.Response.Size()
			}

			// The entry outlives a client that hung up.
			ctx := context.WithoutCancel(req.Context())
			if err := journal.Append(ctx, e); err != nil {
				logger.ErrorContext(ctx, "failed to append journal entry",
					slog.String("interceptor", label),
					slog.String("request_id", req.ID()),
					slog.String("error", err.Error()))
			}
		},
	}, nil
}
