package render

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vaxprogress/engine"
)

var pngMagic = []byte("\x89PNG")

func lineConfig() *engine.ChartConfig {
	return &engine.ChartConfig{
		ChartType: "line",
		Title:     "Daily Vaccination Rate in Canada",
		XAxis:     "Date",
		YAxis:     "Daily Vaccination",
		Series: []engine.ChartSeries{{
			Name: "Canada",
			Data: []engine.ChartPoint{
				{Label: "2020-12-14", Value: 0},
				{Label: "2020-12-15", Value: 718},
				{Label: "2020-12-16", Value: 1509},
				{Label: "2020-12-17", Value: 2425},
			},
		}},
		Colors: []string{"#4F46E5"},
	}
}

func TestRender(t *testing.T) {
	bar := &engine.ChartConfig{
		ChartType: "bar",
		Title:     "Countries with Low Total Vaccination",
		Series: []engine.ChartSeries{{
			Name: "Value",
			Data: []engine.ChartPoint{
				{Label: "Albania", Value: 128, Color: "#4F46E5"},
				{Label: "Denmark", Value: 2190, Color: "#4F46E5"},
				{Label: "Canada", Value: 7279, Color: "#10B981"},
			},
		}},
	}
	pie := &engine.ChartConfig{
		ChartType: "pie",
		Title:     "Total vaccines",
		Series: []engine.ChartSeries{{
			Name: "Value",
			Data: []engine.ChartPoint{
				{Label: "Moderna, Pfizer/BioNTech", Value: 2224799},
				{Label: "Oxford/AstraZeneca, Pfizer/BioNTech", Value: 11665624},
				{Label: "Pfizer/BioNTech", Value: 168825},
			},
		}},
	}
	treemap := &engine.ChartConfig{
		ChartType: "treemap",
		Title:     "Tree Map based on Total Vaccination",
		Series: []engine.ChartSeries{
			{Name: "Pfizer/BioNTech", Color: "#4F46E5", Data: []engine.ChartPoint{
				{Label: "Germany", Value: 92391}, {Label: "Chile", Value: 5198}, {Label: "Albania", Value: 128},
			}},
			{Name: "Oxford/AstraZeneca, Pfizer/BioNTech", Color: "#10B981", Data: []engine.ChartPoint{
				{Label: "England", Value: 3857266}, {Label: "United Kingdom", Value: 2843815},
			}},
		},
	}

	for _, cfg := range []*engine.ChartConfig{lineConfig(), bar, pie, treemap} {
		t.Run(cfg.ChartType, func(t *testing.T) {
			var png bytes.Buffer
			require.NoError(t, Render(cfg, FormatPNG, &png))
			assert.True(t, bytes.HasPrefix(png.Bytes(), pngMagic))

			var svg bytes.Buffer
			require.NoError(t, Render(cfg, FormatSVG, &svg))
			assert.Contains(t, svg.String(), "<svg")
		})
	}
}

func TestRenderLineEdgeCases(t *testing.T) {
	t.Run("single date", func(t *testing.T) {
		cfg := lineConfig()
		cfg.Series[0].Data = cfg.Series[0].Data[1:2]
		assert.NoError(t, Render(cfg, FormatPNG, &bytes.Buffer{}))
	})

	t.Run("categorical labels", func(t *testing.T) {
		cfg := lineConfig()
		cfg.Series[0].Data = []engine.ChartPoint{{Label: "Canada", Value: 3}, {Label: "Chile", Value: 5}}
		assert.NoError(t, Render(cfg, FormatPNG, &bytes.Buffer{}))
	})

	t.Run("several series", func(t *testing.T) {
		cfg := lineConfig()
		cfg.Series = append(cfg.Series, engine.ChartSeries{
			Name: "Israel",
			Data: []engine.ChartPoint{{Label: "2020-12-20", Value: 7004}, {Label: "2020-12-21", Value: 14208}},
		})
		assert.NoError(t, Render(cfg, FormatSVG, &bytes.Buffer{}))
	})
}

func TestRenderErrors(t *testing.T) {
	assert.ErrorIs(t, Render(nil, FormatPNG, &bytes.Buffer{}), ErrEmptyChart)
	assert.ErrorIs(t, Render(&engine.ChartConfig{ChartType: "bar"}, FormatPNG, &bytes.Buffer{}), ErrEmptyChart)

	geo := lineConfig()
	geo.ChartType = "choropleth"
	assert.ErrorIs(t, Render(geo, FormatPNG, &bytes.Buffer{}), ErrUnsupportedChart)

	assert.Error(t, Render(lineConfig(), "gif", &bytes.Buffer{}))

	zero := &engine.ChartConfig{ChartType: "pie", Series: []engine.ChartSeries{{Data: []engine.ChartPoint{{Label: "a", Value: 0}}}}}
	assert.ErrorIs(t, Render(zero, FormatPNG, &bytes.Buffer{}), ErrEmptyChart)
}

func TestSquarify(t *testing.T) {
	bounds := Rect{X: 10, Y: 20, W: 600, H: 400}
	values := []float64{6, 6, 4, 3, 2, 2, 1}
	rects := Squarify(values, bounds)
	require.Len(t, rects, len(values))

	total := 0.0
	for _, v := range values {
		total += v
	}
	covered := 0.0
	for i, r := range rects {
		want := values[i] / total * bounds.Area()
		assert.InDelta(t, want, r.Area(), 1e-6, "area of %d", i)
		covered += r.Area()

		assert.GreaterOrEqual(t, r.X, bounds.X-1e-9)
		assert.GreaterOrEqual(t, r.Y, bounds.Y-1e-9)
		assert.LessOrEqual(t, r.X+r.W, bounds.X+bounds.W+1e-6)
		assert.LessOrEqual(t, r.Y+r.H, bounds.Y+bounds.H+1e-6)
	}
	assert.InDelta(t, bounds.Area(), covered, 1e-6)

	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			assert.InDelta(t, 0, overlap(rects[i], rects[j]), 1e-6, "%d overlaps %d", i, j)
		}
	}
}

func TestSquarifySkipsEmptyValues(t *testing.T) {
	rects := Squarify([]float64{0, 5, math.NaN(), -2, 5}, Rect{W: 100, H: 100})
	assert.Equal(t, Rect{}, rects[0])
	assert.Equal(t, Rect{}, rects[2])
	assert.Equal(t, Rect{}, rects[3])
	assert.InDelta(t, 5000, rects[1].Area(), 1e-6)
	assert.InDelta(t, 5000, rects[4].Area(), 1e-6)

	assert.Equal(t, []Rect{{}, {}}, Squarify([]float64{0, 0}, Rect{W: 10, H: 10}))
}

func overlap(a, b Rect) float64 {
	w := math.Min(a.X+a.W, b.X+b.W) - math.Max(a.X, b.X)
	h := math.Min(a.Y+a.H, b.Y+b.H) - math.Max(a.Y, b.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func TestBuildGeo(t *testing.T) {
	t.Run("quantile bins", func(t *testing.T) {
		cfg := &engine.ChartConfig{ChartType: "choropleth", Title: "Total Vaccinations by Country", Measure: "total_vaccinations"}
		var points []engine.ChartPoint
		for i := 1; i <= 10; i++ {
			points = append(points, engine.ChartPoint{Label: string(rune('A' + i - 1)), Value: float64(i)})
		}
		cfg.Series = []engine.ChartSeries{{Name: "Value", Data: points}}

		geo, err := BuildGeo(cfg)
		require.NoError(t, err)
		assert.Equal(t, "country names", geo.LocationMode)
		require.Len(t, geo.Locations, 10)
		require.Len(t, geo.Legend, 5)

		assert.Equal(t, quantileColors[0], geo.Locations[0].Color)
		assert.Equal(t, quantileColors[0], geo.Locations[1].Color)
		assert.Equal(t, quantileColors[1], geo.Locations[2].Color)
		assert.Equal(t, quantileColors[4], geo.Locations[9].Color)
		assert.Equal(t, "1 – 2", geo.Legend[0].Label)
		assert.Equal(t, "8 – 10", geo.Legend[4].Label)
		assert.Zero(t, geo.Locations[0].Radius, "only scatter maps have markers")
	})

	t.Run("categories", func(t *testing.T) {
		cfg := &engine.ChartConfig{ChartType: "scatter_geo", ColorBy: "vaccines", Series: []engine.ChartSeries{{
			Data: []engine.ChartPoint{
				{Label: "Canada", Value: 7279, Category: "Moderna, Pfizer/BioNTech", Color: "#4F46E5"},
				{Label: "Chile", Value: 5198, Category: "Pfizer/BioNTech", Color: "#10B981"},
				{Label: "Israel", Value: 28415, Category: "Moderna, Pfizer/BioNTech", Color: "#4F46E5"},
			},
		}}}

		geo, err := BuildGeo(cfg)
		require.NoError(t, err)
		assert.Equal(t, []LegendEntry{
			{Label: "Moderna, Pfizer/BioNTech", Color: "#4F46E5"},
			{Label: "Pfizer/BioNTech", Color: "#10B981"},
		}, geo.Legend)
		assert.Equal(t, 40.0, geo.Locations[2].Radius)
		assert.Less(t, geo.Locations[1].Radius, geo.Locations[0].Radius)

		var buf bytes.Buffer
		require.NoError(t, WriteGeo(geo, &buf))
		assert.Contains(t, buf.String(), `"kind": "scatter_geo"`)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := BuildGeo(nil)
		assert.ErrorIs(t, err, ErrEmptyChart)
		_, err = BuildGeo(lineConfig())
		assert.ErrorIs(t, err, ErrUnsupportedChart)
	})
}

func TestQuantileBreaks(t *testing.T) {
	assert.Equal(t, []float64{2, 4, 6, 8}, QuantileBreaks([]float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 5))
	assert.Equal(t, []float64{7, 7, 7, 7}, QuantileBreaks([]float64{7}, 5))
	assert.Nil(t, QuantileBreaks(nil, 5))
}
