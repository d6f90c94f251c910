package engine

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
)

// ============================================================================
// EXECUTOR — Dispatcher + Placeholder Resolution
// ============================================================================
// Entry point: Execute(spec, view, opts...)
//
// Pipeline:
//   1. Validate the QuerySpec
//   2. Apply filters from QuerySpec → SubView
//   3. Group and aggregate
//   4. Dispatch to builder (chart / table / text)
//   5. Resolve reply template placeholders
//   6. Return Result
//
// Zero data copy — the engine reads the loaded table through RecordView.
// ============================================================================

var (
	validAggregations = map[string]bool{
		"sum": true, "max": true, "min": true, "avg": true, "count": true,
		"first": true, "list": true, "none": true, "growth": true,
	}
	validIntents = map[string]bool{"chart": true, "table": true, "text": true}
	validVisuals = map[string]bool{
		"line": true, "bar": true, "pie": true, "treemap": true,
		"choropleth": true, "scatter_geo": true, "table": true, "text": true,
	}
	validSorts = map[string]bool{
		"value_desc": true, "value_asc": true, "date_asc": true, "date_desc": true,
		"chronological": true, "reverse_chronological": true,
		"label_asc": true, "label_desc": true, "alpha_asc": true,
	}
)

// Validate reports whether spec only names known intents, aggregations,
// visualizations and sort modes. Empty fields are allowed.
func Validate(spec QuerySpec) error {
	if spec.Intent != "" && !validIntents[spec.Intent] {
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidQuery, spec.Intent)
	}
	if spec.Aggregation != "" && !validAggregations[spec.Aggregation] {
		return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidQuery, spec.Aggregation)
	}
	if spec.Visualize != "" && !validVisuals[spec.Visualize] {
		return fmt.Errorf("%w: unknown visualization %q", ErrInvalidQuery, spec.Visualize)
	}
	if spec.SortBy != "" && !validSorts[spec.SortBy] {
		return fmt.Errorf("%w: unknown sort %q", ErrInvalidQuery, spec.SortBy)
	}
	if spec.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, spec.Limit)
	}
	return nil
}

// Execute runs a QuerySpec against a RecordView and returns a render-ready Result.
//
// Options:
//   - WithDefaultMeasure(key) — sets the measure when QuerySpec.Measure is empty
//   - WithDateDimension(key) — the ISO date dimension used for periods and growth
//   - WithUnits(map) — display units per measure
//   - WithLogger(logger)
func Execute(spec QuerySpec, view RecordView, opts ...Option) (*Result, error) {
	cfg := applyOptions(opts)
	logger := cfg.Logger

	if err := Validate(spec); err != nil {
		return nil, err
	}

	// Resolve which measure to aggregate
	measure := spec.Measure
	if measure == "" {
		measure = cfg.DefaultMeasure
	}

	if view.Len() == 0 {
		return &Result{
			Success:   true,
			Type:      "text",
			Reply:     "No data available to analyze.",
			QuerySpec: &spec,
		}, nil
	}

	logger.Debug("executing query",
		slog.Int("records", view.Len()),
		slog.String("intent", spec.Intent),
		slog.String("visualize", spec.Visualize),
		slog.String("aggregation", spec.Aggregation),
		slog.String("measure", measure))

	// 1. Apply filters → SubView (zero-copy)
	filtered := ApplyFilters(view, spec.Filters)

	if filtered.Len() == 0 {
		return &Result{
			Success:   true,
			Type:      "text",
			Reply:     "No records match the query filters.",
			QuerySpec: &spec,
		}, nil
	}

	logger.Debug("filters applied",
		slog.Int("before", view.Len()),
		slog.Int("after", filtered.Len()))

	displayUnit := cfg.unitFor(measure)

	// 2. Group and aggregate
	groups := GroupAndAggregate(filtered, spec.GroupBy, measure, spec.Aggregation, spec.SortBy, spec.Limit)
	if spec.ColorBy != "" {
		for i := range groups {
			groups[i].Category = FirstDimension(groups[i].View, spec.ColorBy)
		}
	}

	// 3. Dispatch to builder
	result := &Result{
		Success:     true,
		Title:       spec.Title,
		DisplayUnit: displayUnit,
		QuerySpec:   &spec,
	}

	switch spec.Intent {
	case "chart":
		result.Type = "chart"
		result.ChartConfig = BuildChart(spec, groups)
		if result.ChartConfig == nil {
			result.Type = "text"
			result.Reply = "Not enough data to generate a chart."
			return result, nil
		}

	case "table":
		result.Type = "table"
		result.TableData = BuildTable(spec, groups, filtered, measure, displayUnit)

	default:
		result.Type = "text"
		result.Data = BuildText(spec, filtered, measure, displayUnit, cfg.DateDimension)
		if spec.Aggregation == "growth" && result.Data.Growth != nil && result.Data.Growth.Direction == "insufficient data" {
			result.Reply = fmt.Sprintf("The data shows %s for %s. At least 2 months are needed to show a trend.",
				result.Data.Value, result.Data.Period)
			return result, nil
		}
	}

	// 4. Resolve reply template placeholders
	result.Reply = ResolvePlaceholders(spec.Reply, groups, filtered, measure, displayUnit, cfg.DateDimension)

	return result, nil
}

// ============================================================================
// PLACEHOLDER RESOLUTION
// ============================================================================

// ResolvePlaceholders substitutes computed values into the reply template.
//
// Supported: {total} {count} {period} {unit} {avg} {max} {min} {top_label}
// {top_value} {growth_percent} {change_amount} {earliest_value}
// {latest_value} {earliest_period} {latest_period} {direction}.
func ResolvePlaceholders(template string, groups []Group, view RecordView, measure, unit, dateDim string) string {
	if template == "" {
		return buildDefaultReply(view, measure, unit)
	}

	count := view.Len()
	replacements := map[string]string{
		"{total}":  FormatWithUnit(SumMeasure(view, measure), unit),
		"{count}":  FormatInt(count),
		"{period}": DerivePeriod(view, dateDim),
		"{unit}":   unit,
	}

	// Top group (highest non-null value)
	var top *Group
	for i := range groups {
		if math.IsNaN(groups[i].Value) {
			continue
		}
		if top == nil || groups[i].Value > top.Value {
			top = &groups[i]
		}
	}
	if top != nil {
		replacements["{top_label}"] = top.Label
		replacements["{top_value}"] = FormatWithUnit(top.Value, unit)
	}

	if count > 0 {
		replacements["{avg}"] = FormatWithUnit(AvgMeasure(view, measure), unit)
		replacements["{max}"] = FormatWithUnit(MaxMeasure(view, measure), unit)
		replacements["{min}"] = FormatWithUnit(MinMeasure(view, measure), unit)
	}

	if strings.Contains(template, "{growth_percent}") || strings.Contains(template, "{direction}") ||
		strings.Contains(template, "_period}") || strings.Contains(template, "_value}") ||
		strings.Contains(template, "{change_amount}") {
		growthData := BuildGrowthText(view, measure, unit, dateDim)
		if g := growthData.Growth; g != nil {
			replacements["{growth_percent}"] = fmt.Sprintf("%.1f%%", g.ChangePercent)
			replacements["{change_amount}"] = FormatWithUnit(g.ChangeAmount, unit)
			replacements["{earliest_value}"] = FormatWithUnit(g.EarliestValue, unit)
			replacements["{latest_value}"] = FormatWithUnit(g.LatestValue, unit)
			replacements["{earliest_period}"] = g.EarliestPeriod
			replacements["{latest_period}"] = g.LatestPeriod
			replacements["{direction}"] = g.Direction
		}
	}

	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Safety net: strip unresolved placeholders
	return stripUnresolvedPlaceholders(result)
}

// ============================================================================
// QUERYSPEC NORMALIZATION
// ============================================================================

// NormalizeQuerySpec applies deterministic clean-up rules so hand-written
// recipe steps need not spell out every field.
func NormalizeQuerySpec(spec QuerySpec) QuerySpec {
	changed := false

	// Rule 0: intent follows the visualization when missing
	if spec.Intent == "" {
		switch spec.Visualize {
		case "table":
			spec.Intent = "table"
		case "text", "":
			spec.Intent = "text"
		default:
			spec.Intent = "chart"
		}
		changed = true
	}
	if spec.Aggregation == "" {
		spec.Aggregation = "sum"
		changed = true
	}

	// Rule 1: "list" aggregation must be a table
	if spec.Aggregation == "list" && spec.Intent != "table" {
		spec.Intent = "table"
		spec.Visualize = "table"
		changed = true
	}

	// Rule 2: Charts must have a groupBy dimension
	if spec.Intent == "chart" && len(spec.GroupBy) == 0 {
		spec.Intent = "text"
		spec.Visualize = "text"
		changed = true
	}

	// Rule 3: max/min with no groupBy → text
	if (spec.Aggregation == "max" || spec.Aggregation == "min") && len(spec.GroupBy) == 0 && spec.Intent != "table" {
		spec.Intent = "text"
		spec.Visualize = "text"
		changed = true
	}

	if changed {
		slog.Debug("query spec normalized",
			slog.String("intent", spec.Intent),
			slog.Any("groupBy", spec.GroupBy),
			slog.String("aggregation", spec.Aggregation))
	}

	return spec
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func buildDefaultReply(view RecordView, measure string, unit string) string {
	if view.Len() == 0 {
		return "No matching records found."
	}
	return fmt.Sprintf("Found %s records totalling %s.",
		FormatInt(view.Len()), FormatWithUnit(SumMeasure(view, measure), unit))
}

var placeholderRegex = regexp.MustCompile(`\{[a-z_]+\}`)

func stripUnresolvedPlaceholders(text string) string {
	cleaned := placeholderRegex.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, " .—-–")
	if cleaned == "" {
		return text
	}
	return cleaned
}
