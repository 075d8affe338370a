package sample

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/constraint"
	"github.com/tjfontaine/webapi-sample/internal/httpclient"
	"github.com/tjfontaine/webapi-sample/internal/server"
)

type staticOptions config.Options

func (o staticOptions) Current() config.Options { return config.Options(o) }

func newRouter(t *testing.T, mutate func(*Deps)) http.Handler {
	t.Helper()
	deps := Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options:  staticOptions{Option1: "hello"},
		Clients:  httpclient.NewFactory(nil),
		Rand:     NewRand(99),
		Now:      func() time.Time { return time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC) },
		Settings: config.SampleConfig{GitHubOwner: "aspnet", GitHubRepo: "AspNetCore.Docs"},
	}
	if mutate != nil {
		mutate(&deps)
	}

	r := chi.NewRouter()
	r.NotFound(server.NotFound)
	if err := NewHandler(deps).Mount(r, constraint.Default()); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestForecastRoutes(t *testing.T) {
	h := newRouter(t, nil)

	for _, path := range []string{"/weatherforecast", "/apisample"} {
		t.Run(path, func(t *testing.T) {
			rec := get(h, path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var got []WeatherForecast
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != ForecastDays {
				t.Errorf("got %d forecasts", len(got))
			}
		})
	}
}

func TestForecastJSONFields(t *testing.T) {
	rec := get(newRouter(t, nil), "/weatherforecast")
	var raw []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"date", "temperatureC", "temperatureF", "summary"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("missing field %q in %v", key, raw[0])
		}
	}
}

func TestRandom(t *testing.T) {
	h := newRouter(t, nil)

	tests := []struct {
		path       string
		wantStatus int
		wantCount  int
	}{
		{"/apisample/random", http.StatusOK, 1},
		{"/apisample/random/3", http.StatusOK, 3},
		{"/apisample/random/10", http.StatusOK, 10},
		{"/apisample/random/50", http.StatusOK, 10},
		{"/apisample/random/0", http.StatusOK, 1},
		{"/apisample/random/-4", http.StatusOK, 1},
		{"/apisample/random/abc", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(h, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			parts := strings.Split(rec.Body.String(), ", ")
			if len(parts) != tt.wantCount {
				t.Fatalf("got %d values in %q, want %d", len(parts), rec.Body.String(), tt.wantCount)
			}
			for _, p := range parts {
				if n, err := strconv.Atoi(p); err != nil || n < 0 {
					t.Errorf("value %q is not a non-negative int", p)
				}
			}
		})
	}
}

func TestTel(t *testing.T) {
	h := newRouter(t, nil)

	rec := get(h, "/apisample/tel/06-1234-5678")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["telNo"] != "06-1234-5678" {
		t.Errorf("body = %v", body)
	}

	if rec := get(h, "/apisample/tel/0612345678"); rec.Code != http.StatusNotFound {
		t.Errorf("unhyphenated number status = %d, want 404", rec.Code)
	}
}

func TestGender(t *testing.T) {
	h := newRouter(t, nil)

	tests := []struct {
		value      string
		wantStatus int
		wantBody   string
	}{
		{"male", http.StatusOK, "男性"},
		{"female", http.StatusOK, "女性"},
		{"unknown", http.StatusNotFound, ""},
		{"Male", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			rec := get(h, "/apisample/gender/"+tt.value)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestException(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		wantDetail  bool
	}{
		{"production hides detail", false, false},
		{"development shows detail", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(t, func(d *Deps) { d.Development = tt.development })
			rec := get(h, "/apisample/exception")
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if got := strings.Contains(rec.Body.String(), ErrApplication.Error()); got != tt.wantDetail {
				t.Errorf("detail shown = %v, body %s", got, rec.Body.String())
			}
		})
	}
}

func TestWeather(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1":
			w.Write([]byte(`{"title":"大阪府 大阪 の天気"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer upstream.Close()

	h := newRouter(t, func(d *Deps) {
		d.Settings.WeatherURL = upstream.URL + "/v1?city=270000"
		d.Clients = httpclient.NewFactory(map[string]config.ClientConfig{
			"weather": {BaseURL: upstream.URL + "/v1?city=270000"},
		})
	})

	for _, path := range []string{"/apisample/weather1", "/apisample/weather2"} {
		t.Run(path, func(t *testing.T) {
			rec := get(h, path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), "大阪") {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}

	t.Run("upstream failure", func(t *testing.T) {
		h := newRouter(t, func(d *Deps) { d.Settings.WeatherURL = upstream.URL + "/broken" })
		rec := get(h, "/apisample/weather1")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})

	t.Run("named client missing", func(t *testing.T) {
		rec := get(newRouter(t, nil), "/apisample/weather2")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestDoc(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"html_url":"https://github.com/x/y/issues/1","title":"one","created_at":"2020-01-01T00:00:00Z"}]`))
	}))
	defer upstream.Close()

	h := newRouter(t, func(d *Deps) {
		f := httpclient.NewFactory(map[string]config.ClientConfig{"github": {BaseURL: upstream.URL}})
		c, _ := f.Named("github")
		d.GitHub = httpclient.NewGitHub(c)
	})

	rec := get(h, "/apisample/doc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotPath != "/repos/aspnet/AspNetCore.Docs/issues" {
		t.Errorf("upstream path = %q", gotPath)
	}
	var issues []httpclient.Issue
	if err := json.NewDecoder(rec.Body).Decode(&issues); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(issues) != 1 || issues[0].Title != "one" {
		t.Errorf("issues = %+v", issues)
	}
}
