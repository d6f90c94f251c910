package engine

import "errors"

// ============================================================================
// ENGINE TYPES — Vaccination Analytics
// ============================================================================
// Records are generic dimension/measure rows. The vaccination table is read
// through RecordView, so the engine never copies the loaded dataset.
//
// Null measures are carried as NaN. Every aggregation skips them.
// ============================================================================

// ErrInvalidQuery is returned when a QuerySpec names an unknown aggregation,
// intent or visualization.
var ErrInvalidQuery = errors.New("invalid query spec")

// ============================================================================
// RECORD — Generic data row
// ============================================================================

// Record is a single data row with string dimensions and numeric measures.
//
// Record{Dimensions["country"]="Canada", Measures["daily_vaccinations"]=41250}
type Record struct {
	Dimensions map[string]string  `json:"dimensions"`
	Measures   map[string]float64 `json:"measures"`
}

// ============================================================================
// QUERYSPEC — Contract between a recipe step and the Engine
// ============================================================================

// QuerySpec defines what the engine should compute.
type QuerySpec struct {
	Intent      string   `json:"intent" yaml:"intent"`                             // "text", "table", "chart"
	Source      string   `json:"source,omitempty" yaml:"source,omitempty"`         // named view the step reads; empty = raw rows
	Filters     Filters  `json:"filters" yaml:"filters"`                           // Which records to include
	Aggregation string   `json:"aggregation" yaml:"aggregation"`                   // "sum", "count", "avg", "max", "min", "first", "list", "growth", "none"
	Measure     string   `json:"measure" yaml:"measure"`                           // Which measure to aggregate (empty → use default)
	GroupBy     []string `json:"groupBy" yaml:"groupBy"`                           // Dimension keys: ["date"], ["vaccines", "country"]
	ColorBy     string   `json:"colorBy,omitempty" yaml:"colorBy,omitempty"`       // Dimension used to color points
	SortBy      string   `json:"sortBy" yaml:"sortBy"`                             // "value_desc", "value_asc", "date_asc", "date_desc", "label_asc", "label_desc"
	Limit       int      `json:"limit" yaml:"limit"`                               // 0 = all
	Columns     []string `json:"columns,omitempty" yaml:"columns,omitempty"`       // list tables: columns to show; empty = dimensions + measure
	Visualize   string   `json:"visualize" yaml:"visualize"`                       // "line", "bar", "pie", "treemap", "choropleth", "scatter_geo", "table", "text"
	Title       string   `json:"title" yaml:"title"`                               // Chart/table title
	XAxisTitle  string   `json:"xAxisTitle,omitempty" yaml:"xAxisTitle,omitempty"` // overrides the derived x-axis label
	YAxisTitle  string   `json:"yAxisTitle,omitempty" yaml:"yAxisTitle,omitempty"` // overrides the derived y-axis label
	Reply       string   `json:"reply" yaml:"reply"`                               // Template: "{count} rows for {period}."
}

// Filters define which records to include.
// Keys are dimension names. Values are allowed values.
// OR within a dimension, AND across dimensions. Empty = all.
//
// Filters{Dimensions: {"country": ["United States", "Canada"]}}
type Filters struct {
	Dimensions map[string][]string `json:"dimensions" yaml:"dimensions"`
}

// HasFilter returns true if a specific dimension filter is set.
func (f Filters) HasFilter(dimension string) bool {
	if f.Dimensions == nil {
		return false
	}
	vals, ok := f.Dimensions[dimension]
	return ok && len(vals) > 0
}

// IsEmpty returns true if no filters are set.
func (f Filters) IsEmpty() bool {
	if f.Dimensions == nil {
		return true
	}
	for _, vals := range f.Dimensions {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

// ============================================================================
// RESULT — Render-ready output
// ============================================================================

// Result is the engine's render-ready output.
type Result struct {
	Success bool   `json:"success"`
	Type    string `json:"type"` // "chart", "table", "text"
	Reply   string `json:"reply"`
	Title   string `json:"title"`

	// Exactly one of these is populated based on Type:
	ChartConfig *ChartConfig `json:"chartConfig,omitempty"`
	TableData   *TableData   `json:"tableData,omitempty"`
	Data        *TextData    `json:"data,omitempty"`

	DisplayUnit string   `json:"displayUnit,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	QuerySpec *QuerySpec `json:"querySpec,omitempty"`
}

// ============================================================================
// GROUP — Intermediate computation result
// ============================================================================

// Group represents a grouped/aggregated result.
// Builders convert these into ChartConfig, TableData, or TextData.
type Group struct {
	Key       string             `json:"key"`
	Label     string             `json:"label"`
	Value     float64            `json:"value"`
	Count     int                `json:"count"`
	Category  string             `json:"category,omitempty"`
	Keys      []string           `json:"keys,omitempty"`     // one value per groupBy dimension
	Measures  map[string]float64 `json:"measures,omitempty"` // populated by AggregateMeasures
	SubGroups []Group            `json:"subGroups,omitempty"`
	View      RecordView         `json:"-"` // Sub-view for records in this group (zero-copy)
}

// ============================================================================
// CHART TYPES
// ============================================================================

// ChartConfig defines how to render a chart.
type ChartConfig struct {
	ChartType  string        `json:"chartType"`
	Title      string        `json:"title"`
	XAxis      string        `json:"xAxis,omitempty"`
	YAxis      string        `json:"yAxis,omitempty"`
	Measure    string        `json:"measure,omitempty"`
	ColorBy    string        `json:"colorBy,omitempty"`
	Series     []ChartSeries `json:"series"`
	Colors     []string      `json:"colors,omitempty"`
	ShowLegend bool          `json:"showLegend"`
	ShowGrid   bool          `json:"showGrid"`
}

// ChartSeries represents a data series in a chart.
type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color,omitempty"`
}

// ChartPoint represents a single data point. Groups whose value is null
// (NaN) never become points.
type ChartPoint struct {
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Category string  `json:"category,omitempty"`
	Color    string  `json:"color,omitempty"`
}

// ============================================================================
// TABLE TYPES
// ============================================================================

// TableData defines how to render a table.
type TableData struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Headers returns the column labels in order.
func (t *TableData) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Label
	}
	return headers
}

// Column defines a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`  // "text", "number"
	Align string `json:"align"` // "left", "center", "right"
}

// Summary provides totals or aggregations for a table.
type Summary struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// ============================================================================
// TEXT TYPES
// ============================================================================

// TextData is structured data for simple query answers (type="text").
type TextData struct {
	Value    string      `json:"value"`
	RawValue float64     `json:"rawValue"`
	Unit     string      `json:"unit"`
	Period   string      `json:"period"`
	Count    int         `json:"count"`
	Growth   *GrowthData `json:"growth,omitempty"`
}

// GrowthData contains change-over-time metrics.
type GrowthData struct {
	EarliestValue  float64 `json:"earliestValue"`
	LatestValue    float64 `json:"latestValue"`
	EarliestPeriod string  `json:"earliestPeriod"`
	LatestPeriod   string  `json:"latestPeriod"`
	ChangeAmount   float64 `json:"changeAmount"`
	ChangePercent  float64 `json:"changePercent"`
	Direction      string  `json:"direction"` // "increased", "decreased", "unchanged", "insufficient data"
}
