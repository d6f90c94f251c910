package engine

import (
	"fmt"
	"math"
	"sort"
)

// ============================================================================
// TEXT BUILDER — Produces TextData for simple queries
// ============================================================================
// All functions operate on RecordView — zero-copy access to any data source.
// RawValue is 0 when the aggregate is null; Value then reads "n/a".
// ============================================================================

// BuildText produces text response data from filtered records.
func BuildText(spec QuerySpec, view RecordView, measure, unit, dateDim string) *TextData {
	if view.Len() == 0 {
		return &TextData{
			Value:  "0",
			Unit:   unit,
			Period: DerivePeriod(view, dateDim),
		}
	}

	if spec.Aggregation == "growth" {
		return BuildGrowthText(view, measure, unit, dateDim)
	}

	value := reduce(view, measure, spec.Aggregation)

	var formatted string
	if spec.Aggregation == "count" {
		formatted = FormatInt(int(value))
	} else {
		formatted = FormatWithUnit(value, unit)
	}

	return &TextData{
		Value:    formatted,
		RawValue: finite(value),
		Unit:     unit,
		Period:   DerivePeriod(view, dateDim),
		Count:    view.Len(),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ============================================================================
// GROWTH BUILDER
// ============================================================================

// BuildGrowthText compares the monthly totals of a measure between the
// earliest and the latest month in the view.
func BuildGrowthText(view RecordView, measure, unit, dateDim string) *TextData {
	if view.Len() == 0 {
		return &TextData{
			Value:  "No data",
			Unit:   unit,
			Period: "No data",
		}
	}

	monthTotals := make(map[string]float64)
	for i := 0; i < view.Len(); i++ {
		date := view.Dimension(i, dateDim)
		if len(date) < 7 {
			continue
		}
		v := view.Measure(i, measure)
		if math.IsNaN(v) {
			continue
		}
		monthTotals[date[:7]] += v
	}

	// Need at least 2 distinct months
	if len(monthTotals) < 2 {
		total := SumMeasure(view, measure)
		period := DerivePeriod(view, dateDim)
		return &TextData{
			Value:    FormatWithUnit(total, unit),
			RawValue: total,
			Unit:     unit,
			Period:   period,
			Count:    view.Len(),
			Growth: &GrowthData{
				EarliestValue:  total,
				LatestValue:    total,
				EarliestPeriod: period,
				LatestPeriod:   period,
				Direction:      "insufficient data",
			},
		}
	}

	months := make([]string, 0, len(monthTotals))
	for m := range monthTotals {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool {
		return ParseDateOrder(months[i]) < ParseDateOrder(months[j])
	})

	earliest, latest := months[0], months[len(months)-1]
	earliestTotal, latestTotal := monthTotals[earliest], monthTotals[latest]

	changeAmount := latestTotal - earliestTotal
	var changePercent float64
	if earliestTotal != 0 {
		changePercent = (changeAmount / earliestTotal) * 100
	}

	direction := "unchanged"
	if changePercent > 0.5 {
		direction = "increased"
	} else if changePercent < -0.5 {
		direction = "decreased"
	}

	var displayValue string
	switch direction {
	case "increased":
		displayValue = fmt.Sprintf("↑ %.1f%%", math.Abs(changePercent))
	case "decreased":
		displayValue = fmt.Sprintf("↓ %.1f%%", math.Abs(changePercent))
	default:
		displayValue = "→ No change"
	}

	return &TextData{
		Value:    displayValue,
		RawValue: changePercent,
		Unit:     unit,
		Period:   fmt.Sprintf("%s – %s", earliest, latest),
		Count:    view.Len(),
		Growth: &GrowthData{
			EarliestValue:  earliestTotal,
			LatestValue:    latestTotal,
			EarliestPeriod: earliest,
			LatestPeriod:   latest,
			ChangeAmount:   changeAmount,
			ChangePercent:  changePercent,
			Direction:      direction,
		},
	}
}

// ============================================================================
// PERIOD HELPER
// ============================================================================

// DerivePeriod builds a human-readable date range from a view:
// "2021-01-01 – 2021-03-01", a single date, "All time" when the view has no
// dates, or "No data" when it is empty.
func DerivePeriod(view RecordView, dateDim string) string {
	if view.Len() == 0 {
		return "No data"
	}

	var earliest, latest string
	for i := 0; i < view.Len(); i++ {
		d := view.Dimension(i, dateDim)
		if d == "" {
			continue
		}
		// ISO dates order lexically.
		if earliest == "" || d < earliest {
			earliest = d
		}
		if latest == "" || d > latest {
			latest = d
		}
	}

	switch {
	case earliest == "":
		return "All time"
	case earliest == latest:
		return earliest
	default:
		return fmt.Sprintf("%s – %s", earliest, latest)
	}
}
