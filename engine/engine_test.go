package engine

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// FIXTURES
// ============================================================================

func rec(country, date, vaccines string, measures map[string]float64) Record {
	return Record{
		Dimensions: map[string]string{"country": country, "date": date, "vaccines": vaccines},
		Measures:   measures,
	}
}

func sampleView() RecordView {
	nan := math.NaN()
	return NewSliceView([]Record{
		rec("Canada", "2021-01-01", "Pfizer/BioNTech", map[string]float64{"daily_vaccinations": 100, "total_vaccinations": 1000}),
		rec("Canada", "2021-01-02", "Pfizer/BioNTech", map[string]float64{"daily_vaccinations": 200, "total_vaccinations": 1200}),
		rec("Canada", "2021-02-01", "Pfizer/BioNTech", map[string]float64{"daily_vaccinations": 300, "total_vaccinations": nan}),
		rec("Israel", "2021-01-01", "Moderna, Pfizer/BioNTech", map[string]float64{"daily_vaccinations": 5000, "total_vaccinations": 9000}),
		rec("Israel", "2021-01-02", "Moderna, Pfizer/BioNTech", map[string]float64{"daily_vaccinations": nan, "total_vaccinations": 9500}),
		rec("Wales", "2021-01-01", "Oxford/AstraZeneca", map[string]float64{"daily_vaccinations": nan, "total_vaccinations": nan}),
	})
}

// ============================================================================
// FILTERS
// ============================================================================

func TestApplyFilters(t *testing.T) {
	view := sampleView()

	t.Run("empty filter returns view", func(t *testing.T) {
		assert.Equal(t, view.Len(), ApplyFilters(view, Filters{}).Len())
	})

	t.Run("case insensitive OR within dimension", func(t *testing.T) {
		got := ApplyFilters(view, Filters{Dimensions: map[string][]string{"country": {"canada", "WALES"}}})
		assert.Equal(t, 4, got.Len())
	})

	t.Run("AND across dimensions", func(t *testing.T) {
		got := ApplyFilters(view, Filters{Dimensions: map[string][]string{
			"country": {"Israel"},
			"date":    {"2021-01-02"},
		}})
		require.Equal(t, 1, got.Len())
		assert.Equal(t, 9500.0, got.Measure(0, "total_vaccinations"))
	})
}

// ============================================================================
// AGGREGATION
// ============================================================================

func TestNullAwareAggregation(t *testing.T) {
	view := sampleView()
	wales := ApplyFilters(view, Filters{Dimensions: map[string][]string{"country": {"Wales"}}})

	assert.Equal(t, 0.0, SumMeasure(wales, "total_vaccinations"))
	assert.True(t, math.IsNaN(MaxMeasure(wales, "total_vaccinations")))
	assert.True(t, math.IsNaN(MinMeasure(wales, "total_vaccinations")))
	assert.True(t, math.IsNaN(AvgMeasure(wales, "total_vaccinations")))
	assert.True(t, math.IsNaN(FirstMeasure(wales, "total_vaccinations")))

	assert.Equal(t, 5600.0, SumMeasure(view, "daily_vaccinations"))
	assert.Equal(t, 1400.0, AvgMeasure(view, "daily_vaccinations"))
	assert.Equal(t, 4, CountMeasure(view, "daily_vaccinations"))
	assert.Equal(t, 9500.0, MaxMeasure(view, "total_vaccinations"))
	assert.Equal(t, 1000.0, MinMeasure(view, "total_vaccinations"))
}

func TestGroupAndAggregate(t *testing.T) {
	view := sampleView()

	t.Run("max by country sorted desc with NaN last", func(t *testing.T) {
		groups := GroupAndAggregate(view, []string{"country"}, "total_vaccinations", "max", "value_desc", 0)
		require.Len(t, groups, 3)
		assert.Equal(t, "Israel", groups[0].Key)
		assert.Equal(t, "Canada", groups[1].Key)
		assert.Equal(t, "Wales", groups[2].Key)
		assert.True(t, math.IsNaN(groups[2].Value))
	})

	t.Run("ascending also keeps NaN last", func(t *testing.T) {
		groups := GroupAndAggregate(view, []string{"country"}, "total_vaccinations", "max", "value_asc", 0)
		require.Len(t, groups, 3)
		assert.Equal(t, []string{"Canada", "Israel", "Wales"}, []string{groups[0].Key, groups[1].Key, groups[2].Key})
	})

	t.Run("limit", func(t *testing.T) {
		groups := GroupAndAggregate(view, []string{"country"}, "daily_vaccinations", "sum", "value_desc", 1)
		require.Len(t, groups, 1)
		assert.Equal(t, 5000.0, groups[0].Value)
	})

	t.Run("no groupBy", func(t *testing.T) {
		groups := GroupAndAggregate(view, nil, "daily_vaccinations", "count", "", 0)
		require.Len(t, groups, 1)
		assert.Equal(t, 6.0, groups[0].Value)
	})

	t.Run("two dimensions nest sub groups", func(t *testing.T) {
		groups := GroupAndAggregate(view, []string{"vaccines", "country"}, "daily_vaccinations", "sum", "label_asc", 0)
		require.Len(t, groups, 3)
		assert.Equal(t, "Moderna, Pfizer/BioNTech", groups[0].Key)
		require.Len(t, groups[0].SubGroups, 1)
		assert.Equal(t, "Israel", groups[0].SubGroups[0].Key)
	})

	t.Run("none keeps one group per record", func(t *testing.T) {
		groups := GroupAndAggregate(view, []string{"country"}, "total_vaccinations", "none", "value_asc", 0)
		require.Len(t, groups, 6)
		labels := make([]string, len(groups))
		for i, g := range groups {
			labels[i] = g.Label
		}
		assert.Equal(t, []string{"Canada", "Canada", "Israel", "Israel", "Canada", "Wales"}, labels)
		assert.Equal(t, 1000.0, groups[0].Value)
		assert.Equal(t, 1200.0, groups[1].Value)
		assert.True(t, math.IsNaN(groups[4].Value))

		limited := GroupAndAggregate(view, []string{"country"}, "total_vaccinations", "none", "value_desc", 3)
		require.Len(t, limited, 3)
		assert.Equal(t, 9500.0, limited[0].Value)
		assert.Equal(t, 9000.0, limited[1].Value)
		assert.Equal(t, 1200.0, limited[2].Value)
	})

	t.Run("month virtual dimension", func(t *testing.T) {
		groups := GroupAndAggregate(view, []string{"month"}, "daily_vaccinations", "sum", "date_asc", 0)
		require.Len(t, groups, 2)
		assert.Equal(t, "2021-01", groups[0].Key)
		assert.Equal(t, 5300.0, groups[0].Value)
		assert.Equal(t, "2021-02", groups[1].Key)
	})

	t.Run("empty view", func(t *testing.T) {
		assert.Nil(t, GroupAndAggregate(NewSliceView(nil), []string{"country"}, "x", "sum", "", 0))
	})
}

func TestAggregateMeasures(t *testing.T) {
	view := sampleView()
	measures := []string{"total_vaccinations", "daily_vaccinations"}

	groups := AggregateMeasures(view, []string{"country", "vaccines"}, measures, "max")
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"Canada", "Pfizer/BioNTech"}, groups[0].Keys)
	assert.Equal(t, 1200.0, groups[0].Measures["total_vaccinations"])
	assert.Equal(t, 300.0, groups[0].Measures["daily_vaccinations"])
	assert.Equal(t, 9500.0, groups[1].Measures["total_vaccinations"])
	assert.True(t, math.IsNaN(groups[2].Measures["daily_vaccinations"]))
}

func TestSortGroupsStable(t *testing.T) {
	groups := []Group{
		{Key: "a", Value: 1}, {Key: "b", Value: math.NaN()}, {Key: "c", Value: 1}, {Key: "d", Value: 2},
	}
	SortGroups(groups, "value_desc")
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"d", "a", "c", "b"}, keys)
}

func TestParseDateOrder(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2021-01-15", 20210115},
		{"2021-03", 20210300},
		{"Jan-2021", 20210100},
		{"2021", 20210000},
		{"garbage", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDateOrder(tt.in))
		})
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "1,234.5", FormatNumber(1234.5))
	assert.Equal(t, "n/a", FormatNumber(math.NaN()))
	assert.Equal(t, "12 doses", FormatWithUnit(12, "doses"))
	assert.Equal(t, "", FormatCell(math.NaN()))
	assert.Equal(t, "12.35", FormatCell(12.346))
	assert.Equal(t, "Daily Vaccinations Per Million", LabelForDimension("daily_vaccinations_per_million"))
}

// ============================================================================
// EXECUTE
// ============================================================================

func TestExecuteChart(t *testing.T) {
	spec := QuerySpec{
		Intent:      "chart",
		Aggregation: "max",
		Measure:     "total_vaccinations",
		GroupBy:     []string{"country"},
		ColorBy:     "vaccines",
		SortBy:      "value_asc",
		Visualize:   "bar",
		Title:       "Lowest totals",
		Reply:       "{top_label} leads with {top_value}.",
	}

	result, err := Execute(spec, sampleView())
	require.NoError(t, err)
	require.Equal(t, "chart", result.Type)
	require.NotNil(t, result.ChartConfig)

	points := result.ChartConfig.Series[0].Data
	require.Len(t, points, 2, "NaN group must not become a point")
	assert.Equal(t, "Canada", points[0].Label)
	assert.Equal(t, "Pfizer/BioNTech", points[0].Category)
	assert.NotEmpty(t, points[0].Color)
	assert.NotEqual(t, points[0].Color, points[1].Color)
	assert.Equal(t, "Israel leads with 9,500", result.Reply)

	_, err = json.Marshal(result)
	assert.NoError(t, err)
}

func TestExecuteChartPerRecord(t *testing.T) {
	view := NewSliceView([]Record{
		rec("A", "2021-01-01", "Pfizer/BioNTech", map[string]float64{"total_vaccinations": 10}),
		rec("A", "2021-01-01", "Moderna, Pfizer/BioNTech", map[string]float64{"total_vaccinations": 500}),
		rec("B", "2021-01-01", "Pfizer/BioNTech", map[string]float64{"total_vaccinations": 100}),
	})
	spec := QuerySpec{
		Intent:      "chart",
		Visualize:   "bar",
		Aggregation: "none",
		Measure:     "total_vaccinations",
		GroupBy:     []string{"country"},
		ColorBy:     "vaccines",
		SortBy:      "value_asc",
		Limit:       9,
	}

	result, err := Execute(spec, view)
	require.NoError(t, err)
	require.NotNil(t, result.ChartConfig)

	points := result.ChartConfig.Series[0].Data
	require.Len(t, points, 3, "a country with two vaccine combinations keeps both bars")
	assert.Equal(t, []string{"A", "B", "A"}, []string{points[0].Label, points[1].Label, points[2].Label})
	assert.Equal(t, []float64{10, 100, 500}, []float64{points[0].Value, points[1].Value, points[2].Value})
	assert.Equal(t, "Pfizer/BioNTech", points[0].Category)
	assert.Equal(t, "Moderna, Pfizer/BioNTech", points[2].Category)
}

func TestExecuteTreemap(t *testing.T) {
	spec := QuerySpec{
		Intent:      "chart",
		Aggregation: "max",
		Measure:     "total_vaccinations",
		GroupBy:     []string{"vaccines", "country"},
		Visualize:   "treemap",
	}
	result, err := Execute(spec, sampleView())
	require.NoError(t, err)
	require.NotNil(t, result.ChartConfig)
	// Wales is all-null and drops out; each remaining vaccine combination is a series.
	assert.Len(t, result.ChartConfig.Series, 2)
	for _, s := range result.ChartConfig.Series {
		for _, p := range s.Data {
			assert.Equal(t, s.Name, p.Category)
		}
	}
}

func TestExecuteTable(t *testing.T) {
	spec := QuerySpec{
		Intent:      "table",
		Aggregation: "list",
		Filters:     Filters{Dimensions: map[string][]string{"country": {"Israel"}}},
		Columns:     []string{"country", "date", "daily_vaccinations"},
	}
	result, err := Execute(spec, sampleView())
	require.NoError(t, err)
	require.NotNil(t, result.TableData)
	assert.Equal(t, []string{"Country", "Date", "Daily Vaccinations"}, result.TableData.Headers())
	assert.Equal(t, [][]string{
		{"Israel", "2021-01-01", "5000"},
		{"Israel", "2021-01-02", ""},
	}, result.TableData.Rows)
}

func TestExecuteText(t *testing.T) {
	t.Run("sum with period", func(t *testing.T) {
		spec := QuerySpec{Intent: "text", Aggregation: "sum", Reply: "{total} doses over {period}"}
		result, err := Execute(spec, sampleView(), WithDefaultMeasure("daily_vaccinations"))
		require.NoError(t, err)
		require.NotNil(t, result.Data)
		assert.Equal(t, 5600.0, result.Data.RawValue)
		assert.Equal(t, "2021-01-01 – 2021-02-01", result.Data.Period)
		assert.Equal(t, "5,600 doses over 2021-01-01 – 2021-02-01", result.Reply)
	})

	t.Run("growth", func(t *testing.T) {
		spec := QuerySpec{
			Intent:      "text",
			Aggregation: "growth",
			Measure:     "daily_vaccinations",
			Filters:     Filters{Dimensions: map[string][]string{"country": {"Canada"}}},
		}
		result, err := Execute(spec, sampleView())
		require.NoError(t, err)
		require.NotNil(t, result.Data.Growth)
		assert.Equal(t, "unchanged", result.Data.Growth.Direction)
		assert.Equal(t, "2021-01", result.Data.Growth.EarliestPeriod)
		assert.Equal(t, "2021-02", result.Data.Growth.LatestPeriod)
	})

	t.Run("null max encodes", func(t *testing.T) {
		spec := QuerySpec{
			Intent:      "text",
			Aggregation: "max",
			Measure:     "total_vaccinations",
			Filters:     Filters{Dimensions: map[string][]string{"country": {"Wales"}}},
		}
		result, err := Execute(spec, sampleView())
		require.NoError(t, err)
		assert.Equal(t, "n/a", result.Data.Value)
		_, err = json.Marshal(result)
		assert.NoError(t, err)
	})
}

func TestExecuteEdgeCases(t *testing.T) {
	t.Run("empty view", func(t *testing.T) {
		result, err := Execute(QuerySpec{Intent: "chart"}, NewSliceView(nil))
		require.NoError(t, err)
		assert.Equal(t, "text", result.Type)
	})

	t.Run("no matches", func(t *testing.T) {
		spec := QuerySpec{Intent: "text", Filters: Filters{Dimensions: map[string][]string{"country": {"Atlantis"}}}}
		result, err := Execute(spec, sampleView())
		require.NoError(t, err)
		assert.Contains(t, result.Reply, "No records")
	})

	t.Run("invalid aggregation", func(t *testing.T) {
		_, err := Execute(QuerySpec{Aggregation: "median"}, sampleView())
		assert.True(t, errors.Is(err, ErrInvalidQuery))
	})

	t.Run("invalid visualization", func(t *testing.T) {
		_, err := Execute(QuerySpec{Visualize: "radar"}, sampleView())
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestNormalizeQuerySpec(t *testing.T) {
	t.Run("list becomes table", func(t *testing.T) {
		spec := NormalizeQuerySpec(QuerySpec{Intent: "chart", Aggregation: "list", GroupBy: []string{"country"}})
		assert.Equal(t, "table", spec.Intent)
	})

	t.Run("chart without groupBy becomes text", func(t *testing.T) {
		spec := NormalizeQuerySpec(QuerySpec{Visualize: "bar"})
		assert.Equal(t, "text", spec.Intent)
		assert.Equal(t, "sum", spec.Aggregation)
	})

	t.Run("intent follows visualization", func(t *testing.T) {
		spec := NormalizeQuerySpec(QuerySpec{Visualize: "line", GroupBy: []string{"date"}})
		assert.Equal(t, "chart", spec.Intent)
	})
}

// ============================================================================
// TYPED ROWS
// ============================================================================

type vaccineTotal struct {
	Vaccines string
	Total    int64
}

func TestRowAdapter(t *testing.T) {
	adapter := NewRowAdapter[vaccineTotal]().
		Dimension("vaccines", func(v vaccineTotal) string { return v.Vaccines }).
		Measure("total_vaccinations", func(v vaccineTotal) float64 { return float64(v.Total) })

	view := adapter.Bind([]vaccineTotal{{"Moderna", 10}, {"Sputnik V", 30}})
	require.Equal(t, 2, view.Len())
	assert.Equal(t, "Sputnik V", view.Dimension(1, "vaccines"))
	assert.Equal(t, 30.0, view.Measure(1, "total_vaccinations"))
	assert.True(t, math.IsNaN(view.Measure(0, "missing")))
	assert.Empty(t, view.Dimension(5, "vaccines"))
	assert.Equal(t, []string{"vaccines"}, view.DimensionKeys())
	assert.Equal(t, []string{"total_vaccinations"}, view.MeasureKeys())

	groups := GroupAndAggregate(view, []string{"vaccines"}, "total_vaccinations", "sum", "value_desc", 0)
	require.Len(t, groups, 2)
	assert.Equal(t, "Sputnik V", groups[0].Key)
}
