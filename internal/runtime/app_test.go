package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/webapi-sample/internal/interceptor"
	"github.com/tjfontaine/webapi-sample/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newApp(t *testing.T, content string, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{
		WithConfigFile(writeConfig(t, content)),
		WithLogger(discardLogger()),
	}, opts...)
	a, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Shutdown(ctx)
	})
	return a
}

func serve(h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const chainConfig = `
sample:
  seed: 1
interceptors:
  - name: before
    kind: request-url
    enabled: true
    title: before
  - name: metrics
    kind: metrics
    enabled: true
  - name: methods
    kind: allow-methods
    enabled: true
    methods: [GET]
  - name: journal
    kind: journal
    enabled: true
  - name: disabled
    kind: api-key
    enabled: false
`

func TestApp_DefaultsAssemble(t *testing.T) {
	a := newApp(t, "")

	if got := a.Config().Server.Port; got != 8080 {
		t.Errorf("port = %d, want 8080", got)
	}
	if a.Journal() == nil {
		t.Error("memory journal expected by default")
	}

	rec := serve(a.Handler(), http.MethodGet, "/weatherforecast", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestApp_PipelineWrapsApplicationRoutes(t *testing.T) {
	a := newApp(t, chainConfig)
	h := a.Handler()

	for _, path := range []string{"/weatherforecast", "/apisample/random/3", "/apisample/gender/male"} {
		rec := serve(h, http.MethodGet, path, map[string]string{"X-Request-ID": "8f14e45f-ceea-467a-9575-6a7e1f3b2c10"})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}

	entries, err := a.Journal().Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("journal has %d entries, want 3", len(entries))
	}
	if entries[0].Path != "/apisample/gender/male" || entries[0].Interceptor != "journal" {
		t.Errorf("newest entry = %+v", entries[0])
	}

	metrics := serve(h, http.MethodGet, "/metrics", nil).Body.String()
	if !strings.Contains(metrics, `webapi_interceptor_requests_total{interceptor="metrics",outcome="ok"} 3`) {
		t.Errorf("metrics missing request count:\n%s", metrics)
	}
}

func TestApp_OperationalEndpointsBypassPipeline(t *testing.T) {
	a := newApp(t, chainConfig)
	h := a.Handler()

	for _, path := range []string{"/healthz", "/metrics", "/_journal"} {
		if rec := serve(h, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}

	entries, _ := a.Journal().Recent(context.Background(), 10)
	if len(entries) != 0 {
		t.Errorf("operational requests were journaled: %+v", entries)
	}
}

func TestApp_APIKeyHalts(t *testing.T) {
	cfg := fmt.Sprintf(`
interceptors:
  - name: auth
    kind: api-key
    enabled: true
    key_hashes: [%s]
  - name: journal
    kind: journal
    enabled: true
`, interceptor.HashAPIKey("sk-test"))
	a := newApp(t, cfg)
	h := a.Handler()

	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer key", map[string]string{"Authorization": "Bearer sk-test"}, http.StatusOK},
		{"header key", map[string]string{"X-API-Key": "sk-test"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, "/apisample/random", tt.header)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusUnauthorized {
				return
			}
			var body struct {
				Error struct {
					Type        string `json:"type"`
					Interceptor string `json:"interceptor"`
				} `json:"error"`
			}
			json.NewDecoder(rec.Body).Decode(&body)
			if body.Error.Type != "interceptor_stop" || body.Error.Interceptor != "auth" {
				t.Errorf("body = %+v", body)
			}
		})
	}

	// Only the two authorized requests reached the journal.
	entries, _ := a.Journal().Recent(context.Background(), 10)
	if len(entries) != 2 {
		t.Errorf("journal has %d entries, want 2", len(entries))
	}

	if rec := serve(h, http.MethodGet, "/readyz", nil); rec.Code == http.StatusUnauthorized {
		t.Error("readiness check must not require an API key")
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown kind",
			content: "interceptors:\n  - name: x\n    kind: nope\n    enabled: true\n",
			wantErr: `unknown kind "nope"`,
		},
		{
			name:    "journal without storage",
			content: "storage:\n  type: none\ninterceptors:\n  - name: j\n    kind: journal\n    enabled: true\n",
			wantErr: `interceptor "j"`,
		},
		{
			name:    "duplicate names",
			content: "interceptors:\n  - name: a\n    enabled: true\n  - name: a\n    enabled: true\n",
			wantErr: "duplicate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithConfigFile(writeConfig(t, tt.content)), WithLogger(discardLogger()))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestApp_WithJournalIsNotClosed(t *testing.T) {
	j := &closeTracker{}
	a, err := New(
		WithConfigFile(writeConfig(t, chainConfig)),
		WithLogger(discardLogger()),
		WithJournal(j),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	serve(a.Handler(), http.MethodGet, "/weatherforecast", nil)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if j.appended != 1 {
		t.Errorf("appended = %d, want 1", j.appended)
	}
	if j.closed {
		t.Error("caller-owned journal was closed")
	}
}

func TestApp_StartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a := newApp(t, "options:\n  option1: hello\n", WithListener(ln))

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	base := "http://" + a.Addr().String()
	resp, err := http.Get(base + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", resp.StatusCode)
	}
	if got := a.Options().Current().Option1; got != "hello" {
		t.Errorf("Option1 = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := http.Get(base + "/healthz"); err == nil {
		t.Error("server still accepting connections after Shutdown")
	}
}

type closeTracker struct {
	appended int
	closed   bool
}

func (c *closeTracker) Append(context.Context, storage.Entry) error {
	c.appended++
	return nil
}

func (c *closeTracker) Recent(context.Context, int) ([]storage.Entry, error) { return nil, nil }

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestApp_SQLiteJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "journal.db")
	a := newApp(t, fmt.Sprintf(`
storage:
  type: sqlite
  sqlite:
    path: %s
interceptors:
  - name: journal
    kind: journal
    enabled: true
`, dbPath))

	if rec := serve(a.Handler(), http.MethodGet, "/apisample/tel/06-1234-5678", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec := serve(a.Handler(), http.MethodGet, "/_journal?limit=5", nil)
	var body struct {
		Entries []storage.Entry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Path != "/apisample/tel/06-1234-5678" {
		t.Errorf("entries = %+v", body.Entries)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestApp_StopsObserved(t *testing.T) {
	const stopConfig = `
pipeline:
  unwind_on_stop: %t
interceptors:
  - name: metrics
    kind: metrics
    enabled: true
  - name: journal
    kind: journal
    enabled: true
  - name: methods
    kind: allow-methods
    enabled: true
    methods: [GET]
  - name: inner
    kind: metrics
    enabled: true
`
	for _, unwind := range []bool{false, true} {
		t.Run(fmt.Sprintf("unwind=%t", unwind), func(t *testing.T) {
			a := newApp(t, fmt.Sprintf(stopConfig, unwind))
			h := a.Handler()

			rec := serve(h, http.MethodPost, "/weatherforecast", nil)
			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("status = %d, want 405", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"interceptor":"methods"`) {
				t.Errorf("body = %s", rec.Body.String())
			}

			metrics := serve(h, http.MethodGet, "/metrics", nil).Body.String()
			for _, want := range []string{
				`webapi_interceptor_stops_total{interceptor="methods",status="405"} 1`,
				`webapi_interceptor_requests_total{interceptor="metrics",outcome="stopped"} 1`,
			} {
				if !strings.Contains(metrics, want) {
					t.Errorf("metrics missing %s:\n%s", want, metrics)
				}
			}
			if strings.Contains(metrics, `interceptor="inner"`) {
				t.Error("interceptor inside the stop observed it")
			}

			entries, err := a.Journal().Recent(context.Background(), 10)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("journal has %d entries, want 1", len(entries))
			}
			e := entries[0]
			if e.HaltedBy != "methods" || e.Interceptor != "journal" || e.Status != http.StatusMethodNotAllowed || e.Method != http.MethodPost {
				t.Errorf("entry = %+v", e)
			}
		})
	}
}

func TestApp_HandlerFailureReachesPipeline(t *testing.T) {
	tests := []struct {
		environment string
		wantDetail  bool
	}{
		{"Production", false},
		{"Development", true},
	}
	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			a := newApp(t, "app:\n  environment: "+tt.environment+chainConfig)
			h := a.Handler()

			rec := serve(h, http.MethodGet, "/apisample/exception", nil)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if got := strings.Contains(rec.Body.String(), "an application error occurred"); got != tt.wantDetail {
				t.Errorf("detail shown = %v, body %s", got, rec.Body.String())
			}

			metrics := serve(h, http.MethodGet, "/metrics", nil).Body.String()
			if !strings.Contains(metrics, `webapi_interceptor_requests_total{interceptor="metrics",outcome="error"} 1`) {
				t.Errorf("metrics missing error outcome:\n%s", metrics)
			}

			entries, _ := a.Journal().Recent(context.Background(), 10)
			if len(entries) != 1 || entries[0].Error == "" {
				t.Errorf("journal entries = %+v", entries)
			}
		})
	}
}
