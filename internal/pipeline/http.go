package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
)

// DefaultCaptureLimit bounds the body bytes kept for post-hooks.
const DefaultCaptureLimit = 64 << 10

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	// RequestID extracts the correlation ID. Defaults to the X-Request-ID
	// request header.
	RequestID func(r *http.Request) string

	// OnError answers requests whose dispatch failed. Defaults to a 500
	// JSON error when nothing was written yet.
	OnError func(w http.ResponseWriter, r *http.Request, err error, wroteHeader bool)

	// OnHalt is notified of every short-circuit before the stop is written.
	OnHalt func(r *http.Request, h *Halted)

	// CaptureLimit bounds Response.Body. Zero means DefaultCaptureLimit;
	// negative disables body capture.
	CaptureLimit int

	// Options are passed to New for every chain the adapter builds.
	Options []Option
}

// Middleware returns a chi-compatible middleware running the interceptors
// around the downstream handler. Labels are validated and the chain is built
// once up front; every handler the middleware wraps shares that chain, so a
// chi group mounting many routes still runs a single chain.
func Middleware(interceptors []Interceptor, cfg HTTPConfig) (func(http.Handler) http.Handler, error) {
	if cfg.RequestID == nil {
		cfg.RequestID = func(r *http.Request) string { return r.Header.Get("X-Request-ID") }
	}
	if cfg.OnError == nil {
		cfg.OnError = defaultOnError
	}
	limit := cfg.CaptureLimit
	if limit == 0 {
		limit = DefaultCaptureLimit
	}

	terminal := func(req *Request) (*Response, error) {
		var failure error
		ctx := context.WithValue(req.Context(), failureKey{}, &failure)
		cw := &captureWriter{ResponseWriter: req.sink, limit: limit}
		req.next.ServeHTTP(cw, req.raw.WithContext(ctx))
		if failure != nil {
			return nil, failure
		}
		return cw.response(), nil
	}
	chain, err := New(terminal, interceptors, cfg.Options...)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			req := NewRequest(r.Context(), cfg.RequestID(r), r.Method, r.URL.Path, r.Header)
			req.raw = r
			req.sink = tw
			req.next = next

			out, err := chain.Dispatch(req)
			switch {
			case err != nil:
				cfg.OnError(tw, r, err, tw.wroteHeader)
			case out.Halt != nil:
				if cfg.OnHalt != nil {
					cfg.OnHalt(r, out.Halt)
				}
				if tw.wroteHeader {
					return
				}
				writeHalt(tw, out.Halt)
			}
		})
	}, nil
}

type failureKey struct{}

// Fail reports err as the failure of the handler serving r. Once the handler
// returns, the pipeline hands err to the post-hooks and to HTTPConfig.OnError
// instead of a response, so the handler must not write one. Fail reports
// false when r is not being served behind Middleware.
func Fail(r *http.Request, err error) bool {
	slot, ok := r.Context().Value(failureKey{}).(*error)
	if !ok || err == nil {
		return false
	}
	*slot = err
	return true
}

func writeHalt(w http.ResponseWriter, h *Halted) {
	status := h.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	reason := h.Reason
	if reason == "" {
		reason = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":        "interceptor_stop",
			"interceptor": h.Interceptor,
			"message":     reason,
		},
	})
}

func defaultOnError(w http.ResponseWriter, _ *http.Request, _ error, wroteHeader bool) {
	if wroteHeader {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":    "server_error",
			"message": "An error occurred while processing the request.",
		},
	})
}

// trackingWriter records whether anything was written to the client.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.wroteHeader = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) Flush() {
	if f, ok := tw.ResponseWriter.(http.Flusher); ok {
		tw.wroteHeader = true
		f.Flush()
	}
}

// captureWriter passes writes through unchanged while recording what the
// handler produced.
type captureWriter struct {
	http.ResponseWriter
	limit       int
	status      int
	header      http.Header
	body        []byte
	size        int
	wroteHeader bool
}

func (cw *captureWriter) WriteHeader(code int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.status = code
	cw.header = cw.ResponseWriter.Header().Clone()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	n, err := cw.ResponseWriter.Write(b)
	cw.size += n
	if room := cw.limit - len(cw.body); room > 0 {
		if n < room {
			room = n
		}
		cw.body = append(cw.body, b[:room]...)
	}
	return n, err
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher,
// preserving streaming support (e.g., for SSE).
func (cw *captureWriter) Flush() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *captureWriter) response() *Response {
	header := cw.header
	if header == nil {
		header = cw.ResponseWriter.Header().Clone()
	}
	resp := NewResponse(cw.status, header, cw.body)
	resp.size = cw.size
	return resp
}
