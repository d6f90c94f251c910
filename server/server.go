// Package server serves the recipe's charts, tables and the dataset
// overview over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/julienschmidt/httprouter"

	"github.com/spektr-org/vaxprogress/analysis"
	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/logging"
	"github.com/spektr-org/vaxprogress/recipe"
	"github.com/spektr-org/vaxprogress/render"
	"github.com/spektr-org/vaxprogress/report"
)

// debugRows caps the rows dumped by the debug page.
const debugRows = 50

// Server answers requests from one loaded table and one recipe. Every
// response is computed on request; nothing is cached between requests.
type Server struct {
	table   *dataset.Table
	recipe  recipe.Recipe
	sources map[string]*dataset.Table
	opts    []engine.Option
	logger  *slog.Logger
}

// New builds a Server. A nil logger means slog.Default().
func New(table *dataset.Table, rc recipe.Recipe, logger *slog.Logger, opts ...engine.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		table:   table,
		recipe:  rc,
		sources: recipe.Sources(table),
		opts:    append([]engine.Option{engine.WithLogger(logger)}, opts...),
		logger:  logger,
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/", s.indexHandler)
	router.HandlerFunc(http.MethodGet, "/overview", s.overviewHandler)
	router.HandlerFunc(http.MethodGet, "/charts/:name", s.chartHandler)
	router.HandlerFunc(http.MethodGet, "/tables/:name", s.tableHandler)
	router.HandlerFunc(http.MethodGet, "/distribution/:country", s.distributionHandler)
	router.HandlerFunc(http.MethodGet, "/debug/:view", s.debugHandler)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, http.StatusNotFound, "not found: "+r.URL.Path)
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		s.logger.Error("panic serving request", slog.String("path", r.URL.Path), slog.Any("panic", v))
		s.errorResponse(w, http.StatusInternalServerError, "internal server error")
	}
	return s.logRequests(router)
}

// ListenAndServe serves Routes on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", addr), slog.String("recipe", s.recipe.Name))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

type stepLink struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	Visualize string `json:"visualize"`
	URL       string `json:"url"`
}

type index struct {
	Recipe string     `json:"recipe"`
	Rows   int        `json:"rows"`
	Steps  []stepLink `json:"steps"`
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	idx := index{Recipe: s.recipe.Name, Rows: s.table.Len(), Steps: []stepLink{}}
	for _, step := range s.recipe.Steps {
		link := stepLink{Name: step.Name, Title: step.Title, Visualize: step.Query.Visualize}
		switch {
		case step.Query.Intent == "chart" && !render.IsGeo(step.Query.Visualize):
			link.URL = "/charts/" + step.Name + "." + render.FormatPNG
		case step.Query.Intent == "chart":
			link.URL = "/charts/" + step.Name
		default:
			link.URL = "/tables/" + step.Name
		}
		idx.Steps = append(idx.Steps, link)
	}
	s.sendJSON(w, http.StatusOK, idx)
}

func (s *Server) overviewHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, analysis.Overview(s.table))
}

// chartHandler serves /charts/<step>.png or .svg as an image and map views
// (or a bare step name) as JSON.
func (s *Server) chartHandler(w http.ResponseWriter, r *http.Request) {
	name := httprouter.ParamsFromContext(r.Context()).ByName("name")
	format := ""
	for _, f := range []string{render.FormatPNG, render.FormatSVG} {
		if strings.HasSuffix(name, "."+f) {
			name, format = strings.TrimSuffix(name, "."+f), f
		}
	}
	name = strings.TrimSuffix(name, ".json")

	result, ok := s.runStep(w, name)
	if !ok {
		return
	}
	if result.ChartConfig == nil {
		s.errorResponse(w, http.StatusNotFound, "step "+name+" has no chart: "+result.Reply)
		return
	}

	if render.IsGeo(result.ChartConfig.ChartType) {
		geo, err := render.BuildGeo(result.ChartConfig)
		if err != nil {
			s.renderError(w, err)
			return
		}
		s.sendJSON(w, http.StatusOK, geo)
		return
	}
	if format == "" {
		s.sendJSON(w, http.StatusOK, result.ChartConfig)
		return
	}

	var image bytes.Buffer
	if err := render.Render(result.ChartConfig, format, &image); err != nil {
		s.renderError(w, err)
		return
	}
	contentType := "image/png"
	if format == render.FormatSVG {
		contentType = "image/svg+xml"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := image.WriteTo(w); err != nil {
		logging.LogError(s.logger, "failed to write chart", err, slog.String("step", name))
	}
}

// tableHandler serves the step result as JSON, or as CSV with ?format=csv.
func (s *Server) tableHandler(w http.ResponseWriter, r *http.Request) {
	name := httprouter.ParamsFromContext(r.Context()).ByName("name")
	name = strings.TrimSuffix(name, ".json")

	result, ok := s.runStep(w, name)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == report.FormatCSV {
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, result); err != nil {
			s.serverError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		buf.WriteTo(w) // nolint:errcheck
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) distributionHandler(w http.ResponseWriter, r *http.Request) {
	country := httprouter.ParamsFromContext(r.Context()).ByName("country")
	dist, err := analysis.DailyDistribution(s.table, country)
	if errors.Is(err, analysis.ErrNoSamples) {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, dist)
}

var debugPage = template.Must(template.New("debug").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<pre>{{.Pre}}</pre>
</body>
</html>
`))

type debugData struct {
	Title string
	Pre   string
}

// debugHandler dumps a source table, the recipe or the overview with spew.
func (s *Server) debugHandler(w http.ResponseWriter, r *http.Request) {
	view := httprouter.ParamsFromContext(r.Context()).ByName("view")

	var data interface{}
	switch view {
	case "recipe":
		data = s.recipe
	case "overview":
		data = analysis.Overview(s.table)
	default:
		t, ok := s.sources[view]
		if !ok {
			names := []string{"recipe", "overview"}
			for name := range s.sources {
				names = append(names, name)
			}
			sort.Strings(names)
			s.errorResponse(w, http.StatusNotFound, "unknown view "+view+"; use one of: "+strings.Join(names, ", "))
			return
		}
		data = t.Head(debugRows).Records()
	}

	var page bytes.Buffer
	if err := debugPage.Execute(&page, debugData{Title: "vaxprogress - " + view, Pre: spew.Sdump(data)}); err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	page.WriteTo(w) // nolint:errcheck
}

// runStep executes a recipe step, writing a 404 or 500 itself when it cannot.
func (s *Server) runStep(w http.ResponseWriter, name string) (*engine.Result, bool) {
	step, ok := s.recipe.Step(name)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "unknown step "+name)
		return nil, false
	}
	result, err := report.RunStep(step, s.sources, s.opts...)
	if err != nil {
		s.serverError(w, err)
		return nil, false
	}
	return result, true
}

// ============================================================================
// RESPONSES
// ============================================================================

type errorBody struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logging.LogError(s.logger, "failed to write response", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, text string) {
	s.sendJSON(w, status, errorBody{Code: status, Text: text})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	logging.LogError(s.logger, "request failed", err)
	s.errorResponse(w, http.StatusInternalServerError, "internal server error")
}

// renderError maps chart failures to 422; the step exists but cannot be drawn.
func (s *Server) renderError(w http.ResponseWriter, err error) {
	if errors.Is(err, render.ErrEmptyChart) || errors.Is(err, render.ErrUnsupportedChart) {
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.serverError(w, err)
}

// ============================================================================
// REQUEST LOGGING
// ============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logging.WithLogger(r.Context(), s.logger)))
		logging.LogHTTPRequest(s.logger, r.Method, r.URL.Path, rec.status,
			float64(time.Since(start).Microseconds())/1000)
	})
}
