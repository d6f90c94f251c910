package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/spektr-org/vaxprogress/engine"
)

// Sequential fill colors for value maps, light to dark.
var quantileColors = []string{"#DBEAFE", "#93C5FD", "#3B82F6", "#1D4ED8", "#1E3A8A"}

// maxMarkerRadius is the radius of the largest scatter_geo marker.
const maxMarkerRadius = 40.0

// GeoConfig describes a map view: one entry per country, with the fill
// color a choropleth paints it or the marker a scatter map places on it.
type GeoConfig struct {
	Kind         string        `json:"kind"` // "choropleth" or "scatter_geo"
	Title        string        `json:"title"`
	Measure      string        `json:"measure,omitempty"`
	LocationMode string        `json:"locationMode"`
	ColorBy      string        `json:"colorBy,omitempty"`
	Legend       []LegendEntry `json:"legend"`
	Locations    []GeoLocation `json:"locations"`
}

// GeoLocation is one country on the map.
type GeoLocation struct {
	Location string  `json:"location"`
	Value    float64 `json:"value"`
	Category string  `json:"category,omitempty"`
	Color    string  `json:"color"`
	Radius   float64 `json:"radius,omitempty"`
}

// LegendEntry maps a color to what it stands for.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// BuildGeo converts a choropleth or scatter_geo chart config into a
// GeoConfig. Points with a category are colored by category; otherwise
// values are split into five quantile bins.
func BuildGeo(cfg *engine.ChartConfig) (*GeoConfig, error) {
	if cfg == nil || pointCount(cfg) == 0 {
		return nil, ErrEmptyChart
	}
	if !IsGeo(cfg.ChartType) {
		return nil, fmt.Errorf("%w: %q is not a map", ErrUnsupportedChart, cfg.ChartType)
	}

	geo := &GeoConfig{
		Kind:         cfg.ChartType,
		Title:        cfg.Title,
		Measure:      cfg.Measure,
		LocationMode: "country names",
		ColorBy:      cfg.ColorBy,
	}

	categorical := false
	maxValue := 0.0
	for _, s := range cfg.Series {
		for _, p := range s.Data {
			geo.Locations = append(geo.Locations, GeoLocation{
				Location: p.Label,
				Value:    p.Value,
				Category: p.Category,
				Color:    p.Color,
			})
			categorical = categorical || p.Category != ""
			maxValue = math.Max(maxValue, p.Value)
		}
	}

	if categorical {
		geo.Legend = categoryLegend(geo.Locations)
	} else {
		geo.Legend = quantileLegend(geo.Locations)
	}

	if geo.Kind == "scatter_geo" && maxValue > 0 {
		for i := range geo.Locations {
			v := math.Max(geo.Locations[i].Value, 0)
			geo.Locations[i].Radius = engine.RoundTo2(maxMarkerRadius * math.Sqrt(v/maxValue))
		}
	}
	return geo, nil
}

func categoryLegend(locations []GeoLocation) []LegendEntry {
	var legend []LegendEntry
	index := make(map[string]int)
	for i := range locations {
		cat := locations[i].Category
		if cat == "" {
			cat = "Other"
		}
		k, ok := index[cat]
		if !ok {
			k = len(legend)
			index[cat] = k
			color := locations[i].Color
			if color == "" {
				color = Palette[k%len(Palette)]
			}
			legend = append(legend, LegendEntry{Label: cat, Color: color})
		}
		locations[i].Color = legend[k].Color
	}
	return legend
}

// QuantileBreaks returns the upper bounds of the first bins-1 quantile bins
// of values, using the nearest-rank method.
func QuantileBreaks(values []float64, bins int) []float64 {
	if len(values) == 0 || bins < 2 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	breaks := make([]float64, bins-1)
	for k := 1; k < bins; k++ {
		rank := int(math.Ceil(float64(k*n)/float64(bins))) - 1
		breaks[k-1] = sorted[max(rank, 0)]
	}
	return breaks
}

// binOf returns the first bin whose upper bound is at least v.
func binOf(v float64, breaks []float64) int {
	for k, b := range breaks {
		if v <= b {
			return k
		}
	}
	return len(breaks)
}

func quantileLegend(locations []GeoLocation) []LegendEntry {
	values := make([]float64, len(locations))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, l := range locations {
		values[i] = l.Value
		lo = math.Min(lo, l.Value)
		hi = math.Max(hi, l.Value)
	}
	breaks := QuantileBreaks(values, len(quantileColors))

	for i := range locations {
		locations[i].Color = quantileColors[binOf(locations[i].Value, breaks)]
	}

	legend := make([]LegendEntry, 0, len(quantileColors))
	from := lo
	for k, color := range quantileColors {
		to := hi
		if k < len(breaks) {
			to = breaks[k]
		}
		legend = append(legend, LegendEntry{
			Label: engine.FormatNumber(from) + " – " + engine.FormatNumber(to),
			Color: color,
		})
		from = to
	}
	return legend
}

// WriteGeo writes geo as indented JSON.
func WriteGeo(geo *GeoConfig, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(geo); err != nil {
		return fmt.Errorf("failed to encode map view: %w", err)
	}
	return nil
}
