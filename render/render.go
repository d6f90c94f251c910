// Package render turns engine chart configs into PNG or SVG images with
// go-chart. Map views have no raster form; BuildGeo describes them instead.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/spektr-org/vaxprogress/engine"
)

// Image formats.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

var (
	// ErrEmptyChart is returned when a chart has no point to draw.
	ErrEmptyChart = errors.New("chart has no data points")
	// ErrUnsupportedChart is returned for chart types without an image form.
	ErrUnsupportedChart = errors.New("unsupported chart type")
)

// Default image size in pixels.
const (
	DefaultWidth  = 1024
	DefaultHeight = 576
)

// IsGeo reports whether a chart type is a map view.
func IsGeo(chartType string) bool {
	return chartType == "choropleth" || chartType == "scatter_geo"
}

// Render draws cfg in the given format ("png" or "svg") to w.
func Render(cfg *engine.ChartConfig, format string, w io.Writer) error {
	if cfg == nil || pointCount(cfg) == 0 {
		return ErrEmptyChart
	}

	provider, err := rendererFor(format)
	if err != nil {
		return err
	}

	switch cfg.ChartType {
	case "line":
		return renderLine(cfg, provider, w)
	case "bar":
		return renderBar(cfg, provider, w)
	case "pie":
		return renderPie(cfg, provider, w)
	case "treemap":
		return renderTreemap(cfg, provider, w)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChart, cfg.ChartType)
	}
}

func rendererFor(format string) (chart.RendererProvider, error) {
	switch strings.ToLower(format) {
	case FormatPNG, "":
		return chart.PNG, nil
	case FormatSVG:
		return chart.SVG, nil
	}
	return nil, fmt.Errorf("unsupported image format %q", format)
}

func pointCount(cfg *engine.ChartConfig) int {
	n := 0
	for _, s := range cfg.Series {
		n += len(s.Data)
	}
	return n
}

// ============================================================================
// LINE
// ============================================================================

func renderLine(cfg *engine.ChartConfig, provider chart.RendererProvider, w io.Writer) error {
	labels, dates := xLabels(cfg.Series)
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	graph := chart.Chart{
		Title:  cfg.Title,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{Name: cfg.XAxis},
		YAxis: chart.YAxis{
			Name:           cfg.YAxis,
			ValueFormatter: numberFormatter,
			Range:          valueRange(cfg.Series),
		},
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	for i, s := range cfg.Series {
		style := chart.Style{
			StrokeColor: seriesColor(cfg, i),
			StrokeWidth: 2,
			DotColor:    seriesColor(cfg, i),
			DotWidth:    3,
		}
		ys := make([]float64, len(s.Data))
		for j, p := range s.Data {
			ys[j] = p.Value
		}

		if dates != nil {
			xs := make([]time.Time, len(s.Data))
			for j, p := range s.Data {
				xs[j] = dates[p.Label]
				minX = math.Min(minX, chart.TimeToFloat64(xs[j]))
				maxX = math.Max(maxX, chart.TimeToFloat64(xs[j]))
			}
			graph.Series = append(graph.Series, chart.TimeSeries{Name: s.Name, Style: style, XValues: xs, YValues: ys})
			continue
		}

		xs := make([]float64, len(s.Data))
		for j, p := range s.Data {
			xs[j] = float64(index[p.Label])
		}
		graph.Series = append(graph.Series, chart.ContinuousSeries{Name: s.Name, Style: style, XValues: xs, YValues: ys})
	}

	if dates != nil {
		graph.XAxis.ValueFormatter = chart.TimeValueFormatter
		if minX == maxX {
			day := float64(24 * time.Hour)
			graph.XAxis.Range = &chart.ContinuousRange{Min: minX - day, Max: maxX + day}
		}
	} else {
		for i, l := range labels {
			graph.XAxis.Ticks = append(graph.XAxis.Ticks, chart.Tick{Value: float64(i), Label: l})
		}
		if len(labels) == 1 {
			graph.XAxis.Ticks = append(graph.XAxis.Ticks, chart.Tick{Value: 1})
		}
	}

	if len(cfg.Series) > 1 {
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	}
	return graph.Render(provider, w)
}

// xLabels returns every point label in first-seen order. When all of them
// are dates the parsed times are returned too.
func xLabels(series []engine.ChartSeries) ([]string, map[string]time.Time) {
	var labels []string
	seen := make(map[string]bool)
	dates := make(map[string]time.Time)
	for _, s := range series {
		for _, p := range s.Data {
			if seen[p.Label] {
				continue
			}
			seen[p.Label] = true
			labels = append(labels, p.Label)
			if dates == nil {
				continue
			}
			t, ok := parseDate(p.Label)
			if !ok {
				dates = nil
				continue
			}
			dates[p.Label] = t
		}
	}
	return labels, dates
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{engine.DateLayout, "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ============================================================================
// BAR
// ============================================================================

func renderBar(cfg *engine.ChartConfig, provider chart.RendererProvider, w io.Writer) error {
	var bars []chart.Value
	for i, s := range cfg.Series {
		for _, p := range s.Data {
			label := p.Label
			if len(cfg.Series) > 1 {
				label = s.Name + " " + p.Label
			}
			color := seriesColor(cfg, i)
			if p.Color != "" {
				color = drawing.ColorFromHex(p.Color)
			}
			bars = append(bars, chart.Value{
				Label: label,
				Value: p.Value,
				Style: chart.Style{FillColor: color, StrokeColor: color, StrokeWidth: 1},
			})
		}
	}

	graph := chart.BarChart{
		Title:  cfg.Title,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		YAxis: chart.YAxis{
			Name:           cfg.YAxis,
			ValueFormatter: numberFormatter,
			Range:          valueRange(cfg.Series),
		},
		BarWidth: barWidth(len(bars)),
		Bars:     bars,
	}
	return graph.Render(provider, w)
}

func barWidth(n int) int {
	width := (DefaultWidth - 120) / (n + 1)
	return max(8, min(width, 60))
}

// ============================================================================
// PIE
// ============================================================================

func renderPie(cfg *engine.ChartConfig, provider chart.RendererProvider, w io.Writer) error {
	var values []chart.Value
	total := 0.0
	palette := 0
	for _, s := range cfg.Series {
		for _, p := range s.Data {
			if p.Value <= 0 {
				continue
			}
			total += p.Value
			color := engineColor(p.Color, palette)
			palette++
			values = append(values, chart.Value{
				Label: p.Label,
				Value: p.Value,
				Style: chart.Style{FillColor: color, StrokeColor: drawing.ColorWhite, StrokeWidth: 1},
			})
		}
	}
	if total == 0 {
		return ErrEmptyChart
	}

	graph := chart.PieChart{
		Title:  cfg.Title,
		Width:  DefaultHeight,
		Height: DefaultHeight,
		Values: values,
	}
	return graph.Render(provider, w)
}

// ============================================================================
// SHARED
// ============================================================================

// valueRange spans zero and every plotted value so bars and lines start at
// a common baseline and never produce an empty range.
func valueRange(series []engine.ChartSeries) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, s := range series {
		for _, p := range s.Data {
			lo = math.Min(lo, p.Value)
			hi = math.Max(hi, p.Value)
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi * 1.05}
}

func numberFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	if math.Abs(f) >= 1e6 {
		return humanize.SIWithDigits(f, 1, "")
	}
	return humanize.Comma(int64(math.Round(f)))
}

func seriesColor(cfg *engine.ChartConfig, i int) drawing.Color {
	if i < len(cfg.Series) && cfg.Series[i].Color != "" {
		return drawing.ColorFromHex(cfg.Series[i].Color)
	}
	if i < len(cfg.Colors) {
		return drawing.ColorFromHex(cfg.Colors[i])
	}
	return engineColor("", i)
}

// engineColor parses hex, falling back to the palette entry at i.
func engineColor(hex string, i int) drawing.Color {
	if hex == "" {
		hex = Palette[i%len(Palette)]
	}
	return drawing.ColorFromHex(hex)
}

// Palette is the categorical color cycle, shared with engine chart configs.
var Palette = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}
