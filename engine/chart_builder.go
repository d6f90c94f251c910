package engine

import "math"

// ============================================================================
// CHART BUILDER — Produces ChartConfig from QuerySpec + Groups
// ============================================================================
// Groups with a null value are dropped here, so every ChartPoint carries a
// finite number and the config always encodes as JSON.
// ============================================================================

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// BuildChart produces a ChartConfig from a QuerySpec and aggregated groups.
// Returns nil when no group has a value to plot.
func BuildChart(spec QuerySpec, groups []Group) *ChartConfig {
	if len(groups) == 0 {
		return nil
	}

	chartType := spec.Visualize
	if chartType == "" {
		chartType = "bar"
	}

	config := &ChartConfig{
		ChartType:  chartType,
		Title:      spec.Title,
		Measure:    spec.Measure,
		ColorBy:    spec.ColorBy,
		ShowLegend: true,
		ShowGrid:   chartType != "pie" && chartType != "treemap",
	}

	if len(spec.GroupBy) > 0 {
		config.XAxis = LabelForDimension(spec.GroupBy[0])
	}
	config.YAxis = LabelForAggregation(spec.Aggregation)
	if spec.Measure != "" {
		config.YAxis += " " + LabelForDimension(spec.Measure)
	}
	if spec.XAxisTitle != "" {
		config.XAxis = spec.XAxisTitle
	}
	if spec.YAxisTitle != "" {
		config.YAxis = spec.YAxisTitle
	}

	switch {
	case len(spec.GroupBy) >= 2 && hasSubGroups(groups) && chartType == "treemap":
		config.Series = buildHierarchySeries(groups)
	case len(spec.GroupBy) >= 2 && hasSubGroups(groups):
		config.Series = buildMultiSeries(groups)
	default:
		config.Series = buildSingleSeries(groups, spec.Title)
	}

	if countPoints(config.Series) == 0 {
		return nil
	}

	config.Colors = assignColors(len(config.Series))
	if spec.ColorBy != "" {
		colorByCategory(config.Series)
	}
	return config
}

// ============================================================================
// SERIES BUILDERS
// ============================================================================

func buildSingleSeries(groups []Group, seriesName string) []ChartSeries {
	if seriesName == "" {
		seriesName = "Value"
	}

	points := make([]ChartPoint, 0, len(groups))
	for _, g := range groups {
		if math.IsNaN(g.Value) {
			continue
		}
		points = append(points, ChartPoint{
			Label:    g.Label,
			Value:    RoundTo2(g.Value),
			Category: g.Category,
		})
	}

	return []ChartSeries{{
		Name: seriesName,
		Data: points,
	}}
}

// buildMultiSeries creates one series per sub-group key. Series appear in the
// order their keys are first seen; a group missing a sub-key has no point.
func buildMultiSeries(groups []Group) []ChartSeries {
	var subKeys []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			if !seen[sg.Key] {
				seen[sg.Key] = true
				subKeys = append(subKeys, sg.Key)
			}
		}
	}

	seriesMap := make(map[string][]ChartPoint)
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			if math.IsNaN(sg.Value) {
				continue
			}
			seriesMap[sg.Key] = append(seriesMap[sg.Key], ChartPoint{
				Label: g.Label,
				Value: RoundTo2(sg.Value),
			})
		}
	}

	series := make([]ChartSeries, 0, len(subKeys))
	for i, key := range subKeys {
		series = append(series, ChartSeries{
			Name:  key,
			Data:  seriesMap[key],
			Color: defaultColors[i%len(defaultColors)],
		})
	}

	return series
}

// buildHierarchySeries creates one series per parent group for treemaps.
// Each point is a leaf; the series name is its parent.
func buildHierarchySeries(groups []Group) []ChartSeries {
	series := make([]ChartSeries, 0, len(groups))
	for i, g := range groups {
		points := make([]ChartPoint, 0, len(g.SubGroups))
		for _, sg := range g.SubGroups {
			if math.IsNaN(sg.Value) || sg.Value <= 0 {
				continue
			}
			points = append(points, ChartPoint{
				Label:    sg.Label,
				Value:    RoundTo2(sg.Value),
				Category: g.Label,
			})
		}
		if len(points) == 0 {
			continue
		}
		series = append(series, ChartSeries{
			Name:  g.Label,
			Data:  points,
			Color: defaultColors[i%len(defaultColors)],
		})
	}
	return series
}

// colorByCategory gives every point the palette color of its category.
func colorByCategory(series []ChartSeries) {
	index := make(map[string]int)
	for s := range series {
		for p := range series[s].Data {
			cat := series[s].Data[p].Category
			if cat == "" {
				continue
			}
			if _, ok := index[cat]; !ok {
				index[cat] = len(index)
			}
			series[s].Data[p].Color = defaultColors[index[cat]%len(defaultColors)]
		}
	}
}

func hasSubGroups(groups []Group) bool {
	for _, g := range groups {
		if len(g.SubGroups) > 0 {
			return true
		}
	}
	return false
}

func countPoints(series []ChartSeries) int {
	n := 0
	for _, s := range series {
		n += len(s.Data)
	}
	return n
}

func assignColors(count int) []string {
	colors := make([]string, count)
	for i := 0; i < count; i++ {
		colors[i] = defaultColors[i%len(defaultColors)]
	}
	return colors
}
