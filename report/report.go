// Package report runs a recipe against the vaccination table and writes
// every step's result, chart image or map config, and table CSV to an
// output directory, together with a manifest describing the run.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spektr-org/vaxprogress/analysis"
	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/logging"
	"github.com/spektr-org/vaxprogress/recipe"
	"github.com/spektr-org/vaxprogress/render"
)

// ManifestFile is the name of the run manifest inside the output directory.
const ManifestFile = "manifest.json"

// Runner writes recipe results to OutDir.
type Runner struct {
	OutDir      string
	ImageFormat string // render.FormatPNG (default) or render.FormatSVG
	Logger      *slog.Logger
	Options     []engine.Option
}

// Manifest describes one report run.
type Manifest struct {
	RunID     string           `json:"runId"`
	CreatedAt time.Time        `json:"createdAt"`
	Recipe    string           `json:"recipe"`
	Overview  analysis.Summary `json:"overview"`
	Steps     []StepResult     `json:"steps"`
}

// Failed returns the steps that recorded an error.
func (m *Manifest) Failed() []StepResult {
	var failed []StepResult
	for _, s := range m.Steps {
		if s.Error != "" {
			failed = append(failed, s)
		}
	}
	return failed
}

// StepResult lists what one step produced. Artifacts are file names
// relative to the output directory.
type StepResult struct {
	Name      string   `json:"name"`
	Title     string   `json:"title"`
	Type      string   `json:"type,omitempty"`
	Reply     string   `json:"reply,omitempty"`
	Artifacts []string `json:"artifacts"`
	Error     string   `json:"error,omitempty"`
}

// RunStep resolves the step's source table and executes its query.
func RunStep(step recipe.Step, sources map[string]*dataset.Table, opts ...engine.Option) (*engine.Result, error) {
	view, err := step.Resolve(sources)
	if err != nil {
		return nil, err
	}
	if err := view.Err(); err != nil {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}
	result, err := engine.Execute(step.Query, view, opts...)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}
	if step.Title != "" && result.Title == "" {
		result.Title = step.Title
	}
	return result, nil
}

// Run executes every step of r. A step whose query or chart fails is
// recorded in the manifest and the run continues; failing to write a file
// or a cancelled ctx stops the run.
func (r *Runner) Run(ctx context.Context, t *dataset.Table, rc recipe.Recipe) (*Manifest, error) {
	logger := r.logger()
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	switch r.imageFormat() {
	case render.FormatPNG, render.FormatSVG:
	default:
		return nil, fmt.Errorf("unknown image format %q", r.ImageFormat)
	}
	if err := os.MkdirAll(r.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manifest := &Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Recipe:    rc.Name,
		Overview:  analysis.Overview(t),
	}
	sources := recipe.Sources(t)
	opts := append([]engine.Option{engine.WithLogger(logger)}, r.Options...)

	for _, step := range rc.Steps {
		if err := ctx.Err(); err != nil {
			return manifest, err
		}

		start := time.Now()
		sr, err := r.runStep(step, sources, opts)
		if err != nil {
			return manifest, err
		}
		manifest.Steps = append(manifest.Steps, sr)

		if sr.Error != "" {
			logger.Warn("step failed",
				slog.String("run_id", manifest.RunID),
				slog.String("step", step.Name),
				slog.String("error", sr.Error))
			continue
		}
		logging.LogOperation(logger, "step_completed",
			slog.String("run_id", manifest.RunID),
			slog.String("step", step.Name),
			slog.String("type", sr.Type),
			slog.Int("artifacts", len(sr.Artifacts)),
			slog.Duration("duration", time.Since(start)))
	}

	if err := r.writeFile(ManifestFile, func(w io.Writer) error {
		return WriteJSON(w, manifest, FormatPretty)
	}); err != nil {
		return manifest, err
	}

	logging.LogOperation(logger, "report_written",
		slog.String("run_id", manifest.RunID),
		slog.String("dir", r.OutDir),
		slog.Int("steps", len(manifest.Steps)),
		slog.Int("failed", len(manifest.Failed())))
	return manifest, nil
}

// runStep returns an error only for IO failures. Query and render
// failures are carried in StepResult.Error.
func (r *Runner) runStep(step recipe.Step, sources map[string]*dataset.Table, opts []engine.Option) (StepResult, error) {
	sr := StepResult{Name: step.Name, Title: step.Title, Artifacts: []string{}}

	result, err := RunStep(step, sources, opts...)
	if err != nil {
		sr.Error = err.Error()
		return sr, nil
	}
	sr.Type = result.Type
	sr.Reply = result.Reply
	if sr.Title == "" {
		sr.Title = result.Title
	}

	name := step.Name + ".json"
	if err := r.writeFile(name, func(w io.Writer) error {
		return WriteJSON(w, result, FormatPretty)
	}); err != nil {
		return sr, err
	}
	sr.Artifacts = append(sr.Artifacts, name)

	switch {
	case result.ChartConfig != nil && render.IsGeo(result.ChartConfig.ChartType):
		geo, err := render.BuildGeo(result.ChartConfig)
		if err != nil {
			sr.Error = err.Error()
			return sr, nil
		}
		name = step.Name + ".geo.json"
		if err := r.writeFile(name, func(w io.Writer) error {
			return render.WriteGeo(geo, w)
		}); err != nil {
			return sr, err
		}
		sr.Artifacts = append(sr.Artifacts, name)

	case result.ChartConfig != nil:
		var image bytes.Buffer
		if err := render.Render(result.ChartConfig, r.imageFormat(), &image); err != nil {
			sr.Error = err.Error()
			return sr, nil
		}
		name = step.Name + "." + r.imageFormat()
		if err := r.writeFile(name, func(w io.Writer) error {
			_, err := image.WriteTo(w)
			return err
		}); err != nil {
			return sr, err
		}
		sr.Artifacts = append(sr.Artifacts, name)
		// chart data as CSV alongside the image
		name = step.Name + ".csv"
		if err := r.writeFile(name, func(w io.Writer) error { return WriteCSV(w, result) }); err != nil {
			return sr, err
		}
		sr.Artifacts = append(sr.Artifacts, name)

	case result.TableData != nil:
		name = step.Name + ".csv"
		if err := r.writeFile(name, func(w io.Writer) error { return WriteCSV(w, result) }); err != nil {
			return sr, err
		}
		sr.Artifacts = append(sr.Artifacts, name)
	}
	return sr, nil
}

// writeFile creates name in OutDir and fills it with fn.
func (r *Runner) writeFile(name string, fn func(io.Writer) error) error {
	path := filepath.Join(r.OutDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer logging.SafeCloseWithLogging(f, r.logger(), "write "+name)

	if err := fn(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (r *Runner) imageFormat() string {
	if r.ImageFormat == "" {
		return render.FormatPNG
	}
	return r.ImageFormat
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
