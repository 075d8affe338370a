// Package sample serves the sample JSON endpoints: weather forecasts,
// random numbers, constrained route parameters, a failing endpoint and
// outbound client demos.
package sample

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/constraint"
	"github.com/tjfontaine/webapi-sample/internal/httpclient"
	"github.com/tjfontaine/webapi-sample/internal/pipeline"
	"github.com/tjfontaine/webapi-sample/internal/server"
)

// Random count bounds for /apisample/random.
const (
	MinRandomCount = 1
	MaxRandomCount = 10
)

// ErrApplication is raised by the exception endpoint.
var ErrApplication = errors.New("an application error occurred")

// OptionsSource yields the current options for each request.
type OptionsSource interface {
	Current() config.Options
}

// Deps are the handler's collaborators.
type Deps struct {
	Logger      *slog.Logger
	Options     OptionsSource
	Clients     *httpclient.Factory
	GitHub      *httpclient.GitHub
	Rand        *Rand
	Now         func() time.Time
	Settings    config.SampleConfig
	Development bool
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Rand == nil {
		deps.Rand = NewRand(0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps}
}

// Mount registers the sample routes on r. Parameters that fail their
// constraint answer 404.
func (h *Handler) Mount(r chi.Router, constraints constraint.Map) error {
	gender, err := constraints.Get("myGender")
	if err != nil {
		return err
	}
	tel, err := constraints.Get("tel")
	if err != nil {
		return err
	}
	integer, err := constraints.Get("int")
	if err != nil {
		return err
	}
	param := func(name string, c constraint.Constraint) func(http.Handler) http.Handler {
		return constraint.ParamOr(name, c, http.HandlerFunc(server.NotFound))
	}

	r.Get("/weatherforecast", h.WeatherForecast)

	r.Route("/apisample", func(r chi.Router) {
		r.Get("/", h.APISample)
		r.Get("/random", h.Random)
		r.With(param("count", integer)).Get("/random/{count}", h.Random)
		r.With(param("telNo", tel)).Get("/tel/{telNo}", h.Tel)
		r.With(param("gender", gender)).Get("/gender/{gender}", h.Gender)
		r.Get("/exception", h.Exception)
		r.Get("/weather1", h.Weather1)
		r.Get("/weather2", h.Weather2)
		r.Get("/doc", h.Doc)
	})
	return nil
}

func (h *Handler) options() config.Options {
	if h.deps.Options == nil {
		return config.Options{}
	}
	return h.deps.Options.Current()
}

// WeatherForecast handles GET /weatherforecast.
func (h *Handler) WeatherForecast(w http.ResponseWriter, r *http.Request) {
	h.deps.Logger.DebugContext(r.Context(), "options snapshot", slog.String("option1", h.options().Option1))
	server.WriteJSON(w, http.StatusOK, Forecasts(h.deps.Rand, h.deps.Now()))
}

// APISample handles GET /apisample.
func (h *Handler) APISample(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.deps.Logger.With(slog.String("request_id", server.GetRequestID(ctx)))

	logger.InfoContext(ctx, "weather forecast started", slog.String("option1", h.options().Option1))
	defer logger.InfoContext(ctx, "weather forecast finished")

	forecasts := Forecasts(h.deps.Rand, h.deps.Now())
	logger.DebugContext(ctx, "weather forecast created", slog.Int("count", len(forecasts)))

	server.WriteJSON(w, http.StatusOK, forecasts)
}

// Random handles GET /apisample/random and /apisample/random/{count}.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	count := 1
	if s := chi.URLParam(r, "count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			server.NotFound(w, r)
			return
		}
		count = n
	}
	count = min(max(count, MinRandomCount), MaxRandomCount)

	values := make([]string, count)
	for i := range values {
		values[i] = strconv.Itoa(h.deps.Rand.NonNegative())
	}
	server.WriteText(w, http.StatusOK, strings.Join(values, ", "))
}

// Tel handles GET /apisample/tel/{telNo}.
func (h *Handler) Tel(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]string{"telNo": chi.URLParam(r, "telNo")})
}

// Gender handles GET /apisample/gender/{gender}.
func (h *Handler) Gender(w http.ResponseWriter, r *http.Request) {
	name := "女性"
	if chi.URLParam(r, "gender") == "male" {
		name = "男性"
	}
	server.WriteText(w, http.StatusOK, name)
}

// Exception handles GET /apisample/exception. It always fails. Behind the
// interception pipeline the failure is handed to the pipeline, which answers
// it; otherwise the cause is only shown to clients in Development.
func (h *Handler) Exception(w http.ResponseWriter, r *http.Request) {
	err := ErrApplication
	if pipeline.Fail(r, err) {
		return
	}
	server.AddError(r.Context(), err)

	message := "An error occurred while processing the request."
	if h.deps.Development {
		message = err.Error()
	}
	server.WriteError(w, http.StatusInternalServerError, server.ErrorTypeServer, message)
}

// Weather1 fetches the configured weather URL with the default client.
func (h *Handler) Weather1(w http.ResponseWriter, r *http.Request) {
	h.deps.Logger.InfoContext(r.Context(), "fetching weather", slog.String("url", h.deps.Settings.WeatherURL))
	body, err := h.deps.Clients.Default().GetString(r.Context(), h.deps.Settings.WeatherURL)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	server.WriteText(w, http.StatusOK, body)
}

// Weather2 fetches the base URL of the named weather client.
func (h *Handler) Weather2(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Clients.Named("weather")
	if err != nil {
		server.AddError(r.Context(), err)
		server.WriteError(w, http.StatusInternalServerError, server.ErrorTypeServer, "weather client is not configured")
		return
	}
	body, err := c.GetString(r.Context(), "")
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	server.WriteText(w, http.StatusOK, body)
}

// Doc lists open documentation issues through the GitHub typed client.
func (h *Handler) Doc(w http.ResponseWriter, r *http.Request) {
	if h.deps.GitHub == nil {
		server.WriteError(w, http.StatusInternalServerError, server.ErrorTypeServer, "github client is not configured")
		return
	}
	issues, err := h.deps.GitHub.ListIssues(r.Context(), h.deps.Settings.GitHubOwner, h.deps.Settings.GitHubRepo)
	if err != nil {
		h.upstreamError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, issues)
}

func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var se *httpclient.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		server.WriteError(w, http.StatusGatewayTimeout, server.ErrorTypeUpstream, "upstream request timed out")
	case errors.As(err, &se):
		server.WriteError(w, http.StatusBadGateway, server.ErrorTypeUpstream,
			"upstream answered "+strconv.Itoa(se.Status))
	default:
		server.WriteError(w, http.StatusBadGateway, server.ErrorTypeUpstream, "upstream request failed")
	}
}
