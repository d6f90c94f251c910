package engine

import (
	"math"
	"strconv"
)

// ============================================================================
// TABLE BUILDER — Produces TableData from QuerySpec + Groups
// ============================================================================
// All functions operate on RecordView — zero-copy access to any data source.
// Column discovery uses view.DimensionKeys() instead of inspecting Record maps.
// Null cells render as "".
// ============================================================================

// BuildTable produces a TableData from a QuerySpec, groups, filtered view, and display unit.
func BuildTable(spec QuerySpec, groups []Group, view RecordView, measure string, unit string) *TableData {
	if spec.Aggregation == "list" || spec.Aggregation == "none" {
		return buildListTable(spec, view, measure, unit)
	}
	return buildAggregatedTable(spec, groups, measure, unit)
}

// FormatCell renders a measure value for a table cell: plain digits, at most
// two decimals, "" for null. Cells stay machine-readable for CSV output.
func FormatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(RoundTo2(v), 'f', -1, 64)
}

// ============================================================================
// LIST TABLE — Row per record
// ============================================================================

func buildListTable(spec QuerySpec, view RecordView, measure string, unit string) *TableData {
	if view.Len() == 0 {
		return &TableData{
			Title:   spec.Title,
			Columns: []Column{},
			Rows:    [][]string{},
		}
	}

	isMeasure := make(map[string]bool)
	for _, k := range view.MeasureKeys() {
		isMeasure[k] = true
	}

	keys := spec.Columns
	if len(keys) == 0 {
		keys = append(append([]string{}, view.DimensionKeys()...), measure)
	}

	columns := make([]Column, 0, len(keys))
	for _, key := range keys {
		if isMeasure[key] || key == measure {
			columns = append(columns, Column{Key: key, Label: LabelForDimension(key), Type: "number", Align: "right"})
			continue
		}
		columns = append(columns, Column{Key: key, Label: LabelForDimension(key), Type: "text", Align: "left"})
	}

	limit := view.Len()
	if spec.Limit > 0 && spec.Limit < limit {
		limit = spec.Limit
	}

	rows := make([][]string, 0, limit)
	for i := 0; i < limit; i++ {
		row := make([]string, 0, len(columns))
		for _, c := range columns {
			if c.Type == "number" {
				row = append(row, FormatCell(view.Measure(i, c.Key)))
			} else {
				row = append(row, getDimensionValue(view, i, c.Key))
			}
		}
		rows = append(rows, row)
	}

	return &TableData{
		Title:   spec.Title,
		Columns: columns,
		Rows:    rows,
		Summary: &Summary{
			Label: "Total (" + FormatInt(limit) + " records)",
			Values: map[string]string{
				measure: FormatWithUnit(SumMeasure(NewSubView(view, firstN(limit)), measure), unit),
			},
		},
	}
}

func firstN(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// ============================================================================
// AGGREGATED TABLE — Summary rows
// ============================================================================

func buildAggregatedTable(spec QuerySpec, groups []Group, measure string, unit string) *TableData {
	if len(groups) == 0 {
		return &TableData{
			Title:   spec.Title,
			Columns: []Column{},
			Rows:    [][]string{},
		}
	}

	groupLabel := "Group"
	if len(spec.GroupBy) > 0 {
		groupLabel = LabelForDimension(spec.GroupBy[0])
	}
	valueLabel := LabelForAggregation(spec.Aggregation)

	columns := []Column{
		{Key: "group", Label: groupLabel, Type: "text", Align: "left"},
		{Key: "value", Label: valueLabel, Type: "number", Align: "right"},
		{Key: "count", Label: "Count", Type: "number", Align: "center"},
	}

	rows := make([][]string, 0, len(groups))
	var totalValue float64
	var totalCount int

	for _, g := range groups {
		rows = append(rows, []string{
			g.Label,
			FormatCell(g.Value),
			strconv.Itoa(g.Count),
		})
		if !math.IsNaN(g.Value) {
			totalValue += g.Value
		}
		totalCount += g.Count
	}

	return &TableData{
		Title:   spec.Title,
		Columns: columns,
		Rows:    rows,
		Summary: &Summary{
			Label: "Total",
			Values: map[string]string{
				"value": FormatWithUnit(totalValue, unit),
				"count": FormatInt(totalCount),
			},
		},
	}
}
