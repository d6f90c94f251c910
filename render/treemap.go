package render

import (
	"io"
	"math"
	"sort"

	"github.com/golang/freetype/truetype"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/spektr-org/vaxprogress/engine"
)

// ============================================================================
// TREEMAP: Squarified layout drawn on a go-chart renderer
// ============================================================================
// go-chart has no treemap, so the layout is computed here and each cell is
// drawn with the library's Box and TextWithin primitives. Every series is a
// parent (a vaccine combination) and its points are the leaves (countries).
// ============================================================================

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X, Y, W, H float64
}

// Area returns W*H.
func (r Rect) Area() float64 { return r.W * r.H }

func (r Rect) box() chart.Box {
	return chart.Box{
		Left:   int(math.Round(r.X)),
		Top:    int(math.Round(r.Y)),
		Right:  int(math.Round(r.X + r.W)),
		Bottom: int(math.Round(r.Y + r.H)),
		IsSet:  true,
	}
}

// Squarify lays values out inside bounds so that each rectangle's area is
// proportional to its value and aspect ratios stay close to 1. The result
// is index-aligned with values; values that are not positive get a zero
// rectangle.
func Squarify(values []float64, bounds Rect) []Rect {
	out := make([]Rect, len(values))

	total := 0.0
	order := make([]int, 0, len(values))
	for i, v := range values {
		if v > 0 && !math.IsInf(v, 0) {
			total += v
			order = append(order, i)
		}
	}
	if total == 0 || bounds.Area() <= 0 {
		return out
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	scale := bounds.Area() / total
	area := func(i int) float64 { return values[i] * scale }

	free := bounds
	for start := 0; start < len(order); {
		side := math.Min(free.W, free.H)
		if side <= 0 {
			break
		}

		end := start + 1
		sum := area(order[start])
		for end < len(order) {
			next := area(order[end])
			if worst(order[start:end+1], sum+next, side, area) > worst(order[start:end], sum, side, area) {
				break
			}
			sum += next
			end++
		}

		thickness := sum / side
		if free.W >= free.H {
			y := free.Y
			for _, i := range order[start:end] {
				h := area(i) / thickness
				out[i] = Rect{X: free.X, Y: y, W: thickness, H: h}
				y += h
			}
			free.X += thickness
			free.W -= thickness
		} else {
			x := free.X
			for _, i := range order[start:end] {
				w := area(i) / thickness
				out[i] = Rect{X: x, Y: free.Y, W: w, H: thickness}
				x += w
			}
			free.Y += thickness
			free.H -= thickness
		}
		start = end
	}
	return out
}

// worst is the largest aspect ratio in a row laid along side.
func worst(row []int, sum, side float64, area func(int) float64) float64 {
	lo, hi := math.Inf(1), 0.0
	for _, i := range row {
		a := area(i)
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	s2, w2 := sum*sum, side*side
	return math.Max(w2*hi/s2, s2/(w2*lo))
}

const (
	treemapTitleHeight = 40
	treemapPadding     = 10
)

func renderTreemap(cfg *engine.ChartConfig, provider chart.RendererProvider, w io.Writer) error {
	font, err := chart.GetDefaultFont()
	if err != nil {
		return err
	}
	r, err := provider(DefaultWidth, DefaultHeight)
	if err != nil {
		return err
	}
	r.SetDPI(chart.DefaultDPI)

	chart.Draw.Box(r, chart.Box{Right: DefaultWidth, Bottom: DefaultHeight, IsSet: true}, chart.Style{
		FillColor:   drawing.ColorWhite,
		StrokeColor: drawing.ColorWhite,
		StrokeWidth: 1,
	})
	chart.Draw.TextWithin(r, cfg.Title, chart.Box{Left: treemapPadding, Top: 5, Right: DefaultWidth - treemapPadding, Bottom: treemapTitleHeight, IsSet: true}, chart.Style{
		Font:                font,
		FontSize:            14,
		FontColor:           drawing.ColorBlack,
		TextHorizontalAlign: chart.TextHorizontalAlignCenter,
		TextVerticalAlign:   chart.TextVerticalAlignMiddle,
	})

	canvas := Rect{
		X: treemapPadding,
		Y: treemapTitleHeight,
		W: DefaultWidth - 2*treemapPadding,
		H: DefaultHeight - treemapTitleHeight - treemapPadding,
	}

	parents := make([]float64, len(cfg.Series))
	for i, s := range cfg.Series {
		for _, p := range s.Data {
			if p.Value > 0 {
				parents[i] += p.Value
			}
		}
	}

	for i, parent := range Squarify(parents, canvas) {
		if parent.Area() == 0 {
			continue
		}
		s := cfg.Series[i]
		values := make([]float64, len(s.Data))
		for j, p := range s.Data {
			values[j] = p.Value
		}

		inner := parent
		if len(cfg.Series) > 1 && parent.H > 30 {
			drawLabel(r, labelStyle(font, 9), s.Name, Rect{X: parent.X, Y: parent.Y, W: parent.W, H: 16})
			inner = Rect{X: parent.X, Y: parent.Y + 16, W: parent.W, H: parent.H - 16}
		}

		for j, leaf := range Squarify(values, inner) {
			if leaf.Area() == 0 {
				continue
			}
			color := seriesColor(cfg, i)
			if s.Data[j].Color != "" {
				color = drawing.ColorFromHex(s.Data[j].Color)
			}
			chart.Draw.Box(r, leaf.box(), chart.Style{
				FillColor:   color,
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
			})
			if leaf.W > 60 && leaf.H > 24 {
				drawLabel(r, labelStyle(font, 10), s.Data[j].Label+"\n"+engine.FormatNumber(s.Data[j].Value), leaf)
			}
		}
	}
	return r.Save(w)
}

func drawLabel(r chart.Renderer, style chart.Style, text string, cell Rect) {
	chart.Draw.TextWithin(r, text, cell.box(), style)
}

func labelStyle(font *truetype.Font, size float64) chart.Style {
	return chart.Style{
		Font:                font,
		FontSize:            size,
		FontColor:           drawing.ColorWhite,
		TextHorizontalAlign: chart.TextHorizontalAlignCenter,
		TextVerticalAlign:   chart.TextVerticalAlignMiddle,
		TextWrap:            chart.TextWrapWord,
	}
}
