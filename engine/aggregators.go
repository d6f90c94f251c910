package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ============================================================================
// AGGREGATORS — Grouping, Aggregation, and Sorting via RecordView
// ============================================================================
// All functions operate on RecordView — zero-copy access to any data source.
// Grouping produces SubViews (index lists into parent view).
// Null (NaN) measures are skipped by every aggregation.
// ============================================================================

// keySep joins compound group keys. It never appears in CSV text.
const keySep = "\x1f"

// GroupAndAggregate is the main entry point for the aggregation pipeline.
// Pipeline: group → aggregate → sort → limit.
//
// With two or more groupBy dimensions the first dimension forms the groups and
// the second forms SubGroups (multi-series charts, treemaps). Aggregation
// "none" over a single dimension keeps one group per record, so two records
// sharing a label stay two points.
func GroupAndAggregate(
	view RecordView,
	groupBy []string,
	measure string,
	aggregation string,
	sortBy string,
	limit int,
) []Group {
	if view.Len() == 0 {
		return nil
	}

	// 1. Group
	var groups []Group
	if len(groupBy) == 0 {
		groups = []Group{{
			Key:   "all",
			Label: "Total",
			View:  view,
		}}
	} else if len(groupBy) == 1 && aggregation == "none" {
		groups = groupByRecord(view, groupBy[0])
	} else if len(groupBy) == 1 {
		groups = groupBySingle(view, groupBy[0])
	} else {
		groups = groupByMulti(view, groupBy)
	}

	// 2. Aggregate
	for i := range groups {
		aggregateGroup(&groups[i], measure, aggregation)
		for j := range groups[i].SubGroups {
			aggregateGroup(&groups[i].SubGroups[j], measure, aggregation)
		}
	}

	// 3. Sort
	SortGroups(groups, sortBy)
	for i := range groups {
		SortGroups(groups[i].SubGroups, sortBy)
	}

	// 4. Limit
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	return groups
}

// AggregateMeasures groups by every dimension in groupBy at once (a flat,
// compound key) and reduces each measure with the same aggregation.
// Groups come back sorted by their key values, matching a pandas
// groupby([...]).agg().reset_index().
func AggregateMeasures(view RecordView, groupBy []string, measures []string, aggregation string) []Group {
	if view.Len() == 0 {
		return nil
	}

	groups := groupByFlat(view, groupBy)
	for i := range groups {
		g := &groups[i]
		g.Count = g.View.Len()
		g.Measures = make(map[string]float64, len(measures))
		for _, m := range measures {
			g.Measures[m] = reduce(g.View, m, aggregation)
		}
		if len(measures) > 0 {
			g.Value = g.Measures[measures[0]]
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Keys, groups[j].Keys
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return groups
}

// ============================================================================
// GROUPING
// ============================================================================

func groupBySingle(view RecordView, dimension string) []Group {
	grouped := make(map[string][]int)
	order := make([]string, 0)

	for i := 0; i < view.Len(); i++ {
		key := getDimensionValue(view, i, dimension)
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], i)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{
			Key:   key,
			Label: key,
			Keys:  []string{key},
			View:  newSubView(view, grouped[key]),
		})
	}
	return groups
}

func groupByRecord(view RecordView, dimension string) []Group {
	groups := make([]Group, view.Len())
	for i := range groups {
		key := getDimensionValue(view, i, dimension)
		groups[i] = Group{
			Key:   key,
			Label: key,
			Keys:  []string{key},
			View:  newSubView(view, []int{i}),
		}
	}
	return groups
}

func groupByMulti(view RecordView, dimensions []string) []Group {
	if len(dimensions) < 2 {
		return groupBySingle(view, dimensions[0])
	}

	primaryGroups := groupBySingle(view, dimensions[0])
	for i := range primaryGroups {
		primaryGroups[i].SubGroups = groupBySingle(primaryGroups[i].View, dimensions[1])
	}
	return primaryGroups
}

func groupByFlat(view RecordView, dimensions []string) []Group {
	if len(dimensions) == 0 {
		return []Group{{Key: "all", Label: "Total", View: view}}
	}

	grouped := make(map[string][]int)
	keys := make(map[string][]string)
	order := make([]string, 0)

	for i := 0; i < view.Len(); i++ {
		parts := make([]string, len(dimensions))
		for d, dim := range dimensions {
			parts[d] = getDimensionValue(view, i, dim)
		}
		key := strings.Join(parts, keySep)
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
			keys[key] = parts
		}
		grouped[key] = append(grouped[key], i)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{
			Key:   key,
			Label: strings.Join(keys[key], " / "),
			Keys:  keys[key],
			View:  newSubView(view, grouped[key]),
		})
	}
	return groups
}

// getDimensionValue extracts a dimension value from a view at index.
// "month" (2021-01) and "year" (2021) are virtual dimensions derived from
// "date" when the view does not carry them itself.
func getDimensionValue(view RecordView, i int, dimension string) string {
	val := view.Dimension(i, dimension)
	if val != "" {
		return val
	}

	switch dimension {
	case "month", "year":
		t, err := time.Parse(DateLayout, view.Dimension(i, "date"))
		if err != nil {
			return ""
		}
		if dimension == "month" {
			return t.Format("2006-01")
		}
		return t.Format("2006")
	}
	return val
}

// ============================================================================
// AGGREGATION
// ============================================================================

func aggregateGroup(group *Group, measure string, aggregation string) {
	group.Count = group.View.Len()
	if group.Count == 0 {
		return
	}
	group.Value = reduce(group.View, measure, aggregation)
}

// reduce applies one aggregation to a measure over a view.
func reduce(view RecordView, measure string, aggregation string) float64 {
	switch aggregation {
	case "sum", "list", "growth":
		return SumMeasure(view, measure)
	case "count":
		return float64(view.Len())
	case "avg":
		return AvgMeasure(view, measure)
	case "max":
		return MaxMeasure(view, measure)
	case "min":
		return MinMeasure(view, measure)
	case "first", "none":
		return FirstMeasure(view, measure)
	default:
		return SumMeasure(view, measure)
	}
}

// SumMeasure sums a named measure across a view. Nulls are skipped, so an
// all-null view sums to 0.
func SumMeasure(view RecordView, measure string) float64 {
	var total float64
	for i := 0; i < view.Len(); i++ {
		v := view.Measure(i, measure)
		if math.IsNaN(v) {
			continue
		}
		total += v
	}
	return total
}

// CountMeasure counts the non-null values of a measure.
func CountMeasure(view RecordView, measure string) int {
	n := 0
	for i := 0; i < view.Len(); i++ {
		if !math.IsNaN(view.Measure(i, measure)) {
			n++
		}
	}
	return n
}

// AvgMeasure computes the mean of the non-null values of a measure.
// Returns NaN when every value is null.
func AvgMeasure(view RecordView, measure string) float64 {
	n := CountMeasure(view, measure)
	if n == 0 {
		return math.NaN()
	}
	return SumMeasure(view, measure) / float64(n)
}

// MaxMeasure returns the largest non-null value of a named measure, or NaN.
func MaxMeasure(view RecordView, measure string) float64 {
	m := math.NaN()
	for i := 0; i < view.Len(); i++ {
		v := view.Measure(i, measure)
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}

// MinMeasure returns the smallest non-null value of a named measure, or NaN.
func MinMeasure(view RecordView, measure string) float64 {
	m := math.NaN()
	for i := 0; i < view.Len(); i++ {
		v := view.Measure(i, measure)
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v < m {
			m = v
		}
	}
	return m
}

// FirstMeasure returns the first non-null value of a measure, or NaN.
func FirstMeasure(view RecordView, measure string) float64 {
	for i := 0; i < view.Len(); i++ {
		if v := view.Measure(i, measure); !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}

// FirstDimension returns the first non-empty value of a dimension.
func FirstDimension(view RecordView, dimension string) string {
	for i := 0; i < view.Len(); i++ {
		if v := getDimensionValue(view, i, dimension); v != "" {
			return v
		}
	}
	return ""
}

// ============================================================================
// SORTING
// ============================================================================

// SortGroups sorts aggregate groups by the specified sort mode.
// The sort is stable and null values go last in both value directions.
func SortGroups(groups []Group, sortBy string) {
	switch sortBy {
	case "value_desc":
		sort.SliceStable(groups, func(i, j int) bool { return valueBefore(groups[i].Value, groups[j].Value, true) })
	case "value_asc":
		sort.SliceStable(groups, func(i, j int) bool { return valueBefore(groups[i].Value, groups[j].Value, false) })
	case "chronological", "date_asc":
		sort.SliceStable(groups, func(i, j int) bool { return parseSortableDate(groups[i].Key) < parseSortableDate(groups[j].Key) })
	case "reverse_chronological", "date_desc":
		sort.SliceStable(groups, func(i, j int) bool { return parseSortableDate(groups[i].Key) > parseSortableDate(groups[j].Key) })
	case "label_asc", "alpha_asc":
		sort.SliceStable(groups, func(i, j int) bool { return strings.ToLower(groups[i].Key) < strings.ToLower(groups[j].Key) })
	case "label_desc":
		sort.SliceStable(groups, func(i, j int) bool { return strings.ToLower(groups[i].Key) > strings.ToLower(groups[j].Key) })
	default:
		// preserve grouping order
	}
}

// valueBefore reports whether a sorts before b. Null values sort last in both
// directions.
func valueBefore(a, b float64, desc bool) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN:
		return false
	case bNaN:
		return true
	case desc:
		return a > b
	default:
		return a < b
	}
}

// ============================================================================
// DATE UTILITIES
// ============================================================================

// DateLayout is the layout of the dataset's date column.
const DateLayout = "2006-01-02"

// ParseDateOrder converts a date, month or year key to a sortable int:
// "2021-01-15" → 20210115, "2021-01" → 20210100, "2021" → 20210000.
func ParseDateOrder(key string) int {
	for _, layout := range []string{DateLayout, "2006-01", "Jan-2006", "2006"} {
		t, err := time.Parse(layout, key)
		if err != nil {
			continue
		}
		order := t.Year() * 10000
		if layout != "2006" {
			order += int(t.Month()) * 100
		}
		if layout == DateLayout {
			order += t.Day()
		}
		return order
	}
	return 0
}

func parseSortableDate(key string) int {
	return ParseDateOrder(key)
}

// ============================================================================
// FORMATTING UTILITIES
// ============================================================================

// FormatNumber formats a value with comma separators. Whole numbers have no
// decimals, fractions keep two. Null formats as "n/a".
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	if math.IsInf(v, 0) {
		return "∞"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return humanize.Comma(int64(v))
	}
	return humanize.CommafWithDigits(v, 2)
}

// FormatWithUnit formats a value followed by its unit, if any.
func FormatWithUnit(v float64, unit string) string {
	if unit == "" || math.IsNaN(v) {
		return FormatNumber(v)
	}
	return FormatNumber(v) + " " + unit
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	return humanize.Comma(int64(n))
}

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// UniqueValues returns distinct values for a dimension across a view, in
// first-seen order.
func UniqueValues(view RecordView, dimension string) []string {
	seen := make(map[string]bool)
	var result []string
	for i := 0; i < view.Len(); i++ {
		val := getDimensionValue(view, i, dimension)
		if val != "" && !seen[val] {
			seen[val] = true
			result = append(result, val)
		}
	}
	return result
}

// LabelForDimension turns a column key into a title: "daily_vaccinations" →
// "Daily Vaccinations".
func LabelForDimension(dimension string) string {
	words := strings.Fields(strings.ReplaceAll(dimension, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// LabelForAggregation returns a human-readable label for an aggregation type.
func LabelForAggregation(aggregation string) string {
	switch aggregation {
	case "sum":
		return "Total"
	case "count":
		return "Count"
	case "avg":
		return "Average"
	case "max":
		return "Maximum"
	case "min":
		return "Minimum"
	default:
		return "Value"
	}
}
