package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/recipe"
	"github.com/spektr-org/vaxprogress/render"
	"github.com/spektr-org/vaxprogress/schema"
	"github.com/spektr-org/vaxprogress/testutil"
)

func loadFixture(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.Load(testutil.Reader(), schema.Vaccinations())
	require.NoError(t, err)
	return table
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func stepByName(t *testing.T, m *Manifest, name string) StepResult {
	t.Helper()
	for _, s := range m.Steps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("step %s not in manifest", name)
	return StepResult{}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	runner := &Runner{
		OutDir:  dir,
		Logger:  quietLogger(),
		Options: []engine.Option{engine.WithUnits(schema.Vaccinations().Units())},
	}
	rc := recipe.Default([]string{"Canada", "Israel"}, 4)

	manifest, err := runner.Run(context.Background(), loadFixture(t), rc)
	require.NoError(t, err)

	assert.NotEmpty(t, manifest.RunID)
	assert.Equal(t, rc.Name, manifest.Recipe)
	assert.Equal(t, 26, manifest.Overview.Rows)
	assert.Len(t, manifest.Steps, len(rc.Steps))

	t.Run("line chart", func(t *testing.T) {
		step := stepByName(t, manifest, "daily_rate_canada")
		assert.Empty(t, step.Error)
		assert.Equal(t, "chart", step.Type)
		assert.Equal(t, []string{"daily_rate_canada.json", "daily_rate_canada.png", "daily_rate_canada.csv"}, step.Artifacts)

		png, err := os.ReadFile(filepath.Join(dir, "daily_rate_canada.png"))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

		csv, err := os.ReadFile(filepath.Join(dir, "daily_rate_canada.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(csv), "2020-12-17,2425")
	})

	t.Run("map view", func(t *testing.T) {
		step := stepByName(t, manifest, "choropleth_total")
		assert.Empty(t, step.Error)
		assert.Contains(t, step.Artifacts, "choropleth_total.geo.json")

		data, err := os.ReadFile(filepath.Join(dir, "choropleth_total.geo.json"))
		require.NoError(t, err)
		var geo render.GeoConfig
		require.NoError(t, json.Unmarshal(data, &geo))
		assert.Equal(t, "choropleth", geo.Kind)
		assert.NotEmpty(t, geo.Locations)
	})

	t.Run("table", func(t *testing.T) {
		step := stepByName(t, manifest, "vaccine_by_country")
		assert.Empty(t, step.Error)
		assert.Equal(t, "table", step.Type)
		assert.Equal(t, []string{"vaccine_by_country.json", "vaccine_by_country.csv"}, step.Artifacts)
	})

	t.Run("result json", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "vaccine_pie.json"))
		require.NoError(t, err)
		var result engine.Result
		require.NoError(t, json.Unmarshal(data, &result))
		assert.True(t, result.Success)
		require.NotNil(t, result.ChartConfig)
		assert.Equal(t, "pie", result.ChartConfig.ChartType)
	})

	t.Run("manifest", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
		require.NoError(t, err)
		var written Manifest
		require.NoError(t, json.Unmarshal(data, &written))
		assert.Equal(t, manifest.RunID, written.RunID)
		assert.Len(t, written.Steps, len(rc.Steps))
	})
}

func TestRunRankingKeepsEveryVaccineRow(t *testing.T) {
	csvText := testutil.Header() +
		testutil.Row("A", "Pfizer/BioNTech", 10) +
		testutil.Row("A", "Moderna, Pfizer/BioNTech", 500) +
		testutil.Row("B", "Pfizer/BioNTech", 100)
	table, err := dataset.Load(strings.NewReader(csvText), schema.Vaccinations())
	require.NoError(t, err)

	dir := t.TempDir()
	runner := &Runner{OutDir: dir, Logger: quietLogger()}
	manifest, err := runner.Run(context.Background(), table, recipe.Default([]string{"A", "B"}, 9))
	require.NoError(t, err)

	step := stepByName(t, manifest, "lowest_total")
	require.Empty(t, step.Error)
	f, err := os.Open(filepath.Join(dir, "lowest_total.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"A", "10", "Pfizer/BioNTech"},
		{"B", "100", "Pfizer/BioNTech"},
		{"A", "500", "Moderna, Pfizer/BioNTech"},
	}, rows[1:])

	totals, err := os.ReadFile(filepath.Join(dir, "vaccine_totals.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(totals), "Moderna, Pfizer/BioNTech")
}

func TestRunSVG(t *testing.T) {
	dir := t.TempDir()
	runner := &Runner{OutDir: dir, ImageFormat: render.FormatSVG, Logger: quietLogger()}
	rc := recipe.Recipe{Name: "one", Steps: []recipe.Step{{
		Name:  "canada",
		Query: recipe.Default([]string{"Canada"}, 0).Steps[0].Query,
	}}}

	manifest, err := runner.Run(context.Background(), loadFixture(t), rc)
	require.NoError(t, err)
	assert.Contains(t, manifest.Steps[0].Artifacts, "canada.svg")

	svg, err := os.ReadFile(filepath.Join(dir, "canada.svg"))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
}

func TestRunRecordsStepFailures(t *testing.T) {
	dir := t.TempDir()
	runner := &Runner{OutDir: dir, Logger: quietLogger()}
	rc := recipe.Recipe{Name: "failing", Steps: []recipe.Step{
		{Name: "empty_pie", Query: engine.QuerySpec{
			Intent: "chart", Visualize: "pie", Aggregation: "sum",
			Measure: schema.TotalVaccinations, GroupBy: []string{schema.Country},
			Filters: engine.Filters{Dimensions: map[string][]string{schema.Country: {"Wales"}}},
		}},
		{Name: "canada", Query: recipe.Default([]string{"Canada"}, 0).Steps[0].Query},
	}}

	manifest, err := runner.Run(context.Background(), loadFixture(t), rc)
	require.NoError(t, err)
	require.Len(t, manifest.Steps, 2)

	failed := manifest.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "empty_pie", failed[0].Name)
	assert.NoFileExists(t, filepath.Join(dir, "empty_pie.png"))
	assert.Empty(t, manifest.Steps[1].Error, "later steps still run")
}

func TestRunErrors(t *testing.T) {
	table := loadFixture(t)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner := &Runner{OutDir: t.TempDir(), Logger: quietLogger()}
		_, err := runner.Run(ctx, table, recipe.Default(nil, 0))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid recipe", func(t *testing.T) {
		runner := &Runner{OutDir: t.TempDir(), Logger: quietLogger()}
		_, err := runner.Run(context.Background(), table, recipe.Recipe{Steps: []recipe.Step{{Name: ""}}})
		assert.Error(t, err)
	})

	t.Run("image format", func(t *testing.T) {
		runner := &Runner{OutDir: t.TempDir(), ImageFormat: "gif", Logger: quietLogger()}
		_, err := runner.Run(context.Background(), table, recipe.Default(nil, 0))
		assert.ErrorContains(t, err, "gif")
	})
}

func TestRunStep(t *testing.T) {
	sources := recipe.Sources(loadFixture(t))
	rc := recipe.Default(nil, 3)

	step, ok := rc.Step("highest_total")
	require.True(t, ok)
	result, err := RunStep(step, sources)
	require.NoError(t, err)
	require.NotNil(t, result.ChartConfig)
	require.Len(t, result.ChartConfig.Series, 1)
	assert.Len(t, result.ChartConfig.Series[0].Data, 3)
	assert.Equal(t, "England", result.ChartConfig.Series[0].Data[0].Label)

	step.Source = "nowhere"
	_, err = RunStep(step, sources)
	assert.ErrorIs(t, err, recipe.ErrUnknownSource)
}
