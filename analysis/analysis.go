// Package analysis holds the named views of the vaccination notebook:
// the dataset overview, per-country daily series, the country/vaccine
// maximum table, lowest/highest rankings and vaccine totals.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/schema"
)

// DefaultTopN is the number of countries shown by the lowest/highest views.
const DefaultTopN = 9

// ErrNoSamples is returned when a country has no daily vaccination values.
var ErrNoSamples = errors.New("no daily vaccination values")

// VaccineMeasures are the columns reduced by MaxByCountryVaccine.
var VaccineMeasures = []string{
	schema.TotalVaccinations,
	schema.TotalVaccinationsPerHundred,
	schema.DailyVaccinations,
	schema.DailyVaccinationsPerMillion,
}

// ============================================================================
// OVERVIEW
// ============================================================================

// ColumnSummary is the null count and cardinality of one column.
type ColumnSummary struct {
	Name    string `json:"name"`
	Role    string `json:"role"` // "dimension" or "measure"
	NonNull int    `json:"nonNull"`
	Null    int    `json:"null"`
	Unique  int    `json:"unique"`
}

// ValueCount is a categorical value and how often it occurs.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summary answers the first questions asked of the dataset.
type Summary struct {
	Rows      int             `json:"rows"`
	Columns   int             `json:"columns"`
	Fields    []ColumnSummary `json:"fields"`
	Countries []string        `json:"countries"`
	Vaccines  []ValueCount    `json:"vaccines"`
	FirstDate string          `json:"firstDate,omitempty"`
	LastDate  string          `json:"lastDate,omitempty"`
}

// NullCounts maps column name to its number of null cells.
func (o Summary) NullCounts() map[string]int {
	counts := make(map[string]int, len(o.Fields))
	for _, f := range o.Fields {
		counts[f.Name] = f.Null
	}
	return counts
}

// Overview summarizes shape, nulls, countries and vaccine combinations.
// Vaccine counts are rows per combination in first-seen order.
func Overview(t *dataset.Table) Summary {
	rows, cols := t.Shape()
	ov := Summary{
		Rows:      rows,
		Columns:   cols,
		Countries: t.Unique(schema.Country),
	}

	measures := make(map[string]bool)
	for _, m := range t.MeasureKeys() {
		measures[m] = true
	}

	for _, name := range t.Names() {
		summary := ColumnSummary{Name: name, Role: "dimension", Unique: t.NUnique(name)}
		if measures[name] {
			summary.Role = "measure"
			for _, v := range t.Floats(name) {
				if math.IsNaN(v) {
					summary.Null++
				}
			}
		} else {
			for _, v := range t.Strings(name) {
				if v == "" {
					summary.Null++
				}
			}
		}
		summary.NonNull = rows - summary.Null
		ov.Fields = append(ov.Fields, summary)
	}

	for _, g := range engine.GroupAndAggregate(t, []string{schema.Vaccines}, "", "count", "", 0) {
		if g.Key == "" {
			continue
		}
		ov.Vaccines = append(ov.Vaccines, ValueCount{Value: g.Key, Count: g.Count})
	}

	for _, d := range t.Strings(schema.Date) {
		if d == "" {
			continue
		}
		if ov.FirstDate == "" || d < ov.FirstDate {
			ov.FirstDate = d
		}
		if d > ov.LastDate {
			ov.LastDate = d
		}
	}
	return ov
}

// ============================================================================
// COUNTRY SERIES
// ============================================================================

// CountryRows returns every row recorded for country, in source order.
func CountryRows(t *dataset.Table, country string) *dataset.Table {
	return t.Filter(schema.Country, country)
}

// DailyRate is the line chart of daily vaccinations in one country. A day is
// a single row, so max keeps its value and leaves a null day out of the line.
func DailyRate(country, title string) engine.QuerySpec {
	if title == "" {
		title = "Daily Vaccination Rate in " + country
	}
	return engine.QuerySpec{
		Intent:      "chart",
		Visualize:   "line",
		Filters:     engine.Filters{Dimensions: map[string][]string{schema.Country: {country}}},
		Aggregation: "max",
		Measure:     schema.DailyVaccinations,
		GroupBy:     []string{schema.Date},
		SortBy:      "date_asc",
		Title:       title,
		XAxisTitle:  "Date",
		YAxisTitle:  "Daily Vaccination",
		Reply:       "{count} days of data for {period}, peaking at {max}.",
	}
}

// DailyRateComparison plots one daily vaccination line per country.
func DailyRateComparison(countries ...string) engine.QuerySpec {
	return engine.QuerySpec{
		Intent:      "chart",
		Visualize:   "line",
		Filters:     engine.Filters{Dimensions: map[string][]string{schema.Country: countries}},
		Aggregation: "max",
		Measure:     schema.DailyVaccinations,
		GroupBy:     []string{schema.Date, schema.Country},
		SortBy:      "date_asc",
		Title:       "Daily Vaccination Rate Comparison",
		XAxisTitle:  "Date",
		YAxisTitle:  "Daily Vaccination",
	}
}

// ============================================================================
// VACCINE VIEWS
// ============================================================================

// FirstVaccinesPerCountry returns one row per country with the first
// non-null vaccine combination recorded for it. Countries keep their
// first-seen order.
func FirstVaccinesPerCountry(t *dataset.Table) *dataset.Table {
	groups := engine.GroupAndAggregate(t, []string{schema.Country}, "", "count", "", 0)
	rows := make([]engine.Group, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, engine.Group{
			Keys:     []string{g.Key, engine.FirstDimension(g.View, schema.Vaccines)},
			Measures: map[string]float64{},
		})
	}
	return dataset.FromGroups(rows, []string{schema.Country, schema.Vaccines}, nil)
}

// CountriesPerVaccine counts how many countries use each vaccine
// combination, in first-seen order.
func CountriesPerVaccine(t *dataset.Table) []ValueCount {
	first := FirstVaccinesPerCountry(t)
	var counts []ValueCount
	for _, g := range engine.GroupAndAggregate(first, []string{schema.Vaccines}, "", "count", "", 0) {
		if g.Key == "" {
			continue
		}
		counts = append(counts, ValueCount{Value: g.Key, Count: g.Count})
	}
	return counts
}

// MaxByCountryVaccine groups by (country, vaccines) and keeps the maximum of
// each VaccineMeasures column. Rows are ordered by country then vaccines.
// Rows without a country or a vaccine combination are dropped.
// Applying it to its own output returns the same table.
func MaxByCountryVaccine(t *dataset.Table) *dataset.Table {
	dims := []string{schema.Country, schema.Vaccines}
	groups := engine.AggregateMeasures(t, dims, VaccineMeasures, "max")
	kept := groups[:0]
	for _, g := range groups {
		if g.Keys[0] == "" || g.Keys[1] == "" {
			continue
		}
		kept = append(kept, g)
	}
	return dataset.FromGroups(kept, dims, VaccineMeasures)
}

// Lowest returns the n rows with the smallest values of measure.
// Null values sort last, so they only appear when fewer than n rows have one.
func Lowest(t *dataset.Table, measure string, n int) *dataset.Table {
	if n <= 0 {
		n = DefaultTopN
	}
	return t.SortBy(measure, true).Head(n)
}

// Highest returns the n rows with the largest values of measure.
func Highest(t *dataset.Table, measure string, n int) *dataset.Table {
	if n <= 0 {
		n = DefaultTopN
	}
	return t.SortBy(measure, false).Head(n)
}

// VaccineTotal is the summed total vaccinations of one vaccine combination.
type VaccineTotal struct {
	Vaccines string `json:"vaccines"`
	Total    int64  `json:"total"`
}

// TotalsByVaccine sums total_vaccinations per vaccine combination across
// every row, truncating to an integer. Combinations are sorted by name.
func TotalsByVaccine(t *dataset.Table) []VaccineTotal {
	groups := engine.AggregateMeasures(t, []string{schema.Vaccines}, []string{schema.TotalVaccinations}, "sum")
	totals := make([]VaccineTotal, 0, len(groups))
	for _, g := range groups {
		if g.Key == "" {
			continue
		}
		totals = append(totals, VaccineTotal{Vaccines: g.Key, Total: int64(math.Trunc(g.Value))})
	}
	return totals
}

var vaccineTotalFields = engine.NewRowAdapter[VaccineTotal]().
	Dimension(schema.Vaccines, func(v VaccineTotal) string { return v.Vaccines }).
	Measure(schema.TotalVaccinations, func(v VaccineTotal) float64 { return float64(v.Total) })

// VaccineTotalsTable turns the totals into a (vaccines, total_vaccinations)
// table the engine and the exporters can read.
func VaccineTotalsTable(totals []VaccineTotal) *dataset.Table {
	return dataset.FromView(vaccineTotalFields.Bind(totals))
}

// ============================================================================
// DAILY DISTRIBUTION
// ============================================================================

// Distribution describes the spread of daily vaccinations in one country.
type Distribution struct {
	Country string  `json:"country"`
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	P50     int64   `json:"p50"`
	P90     int64   `json:"p90"`
	P99     int64   `json:"p99"`
	Mean    float64 `json:"mean"`
	Max     float64 `json:"max"`
}

// DailyDistribution records the country's non-null daily vaccinations in a
// histogram and reports its percentiles. Percentiles carry three significant
// digits; min, mean and max are exact.
func DailyDistribution(t *dataset.Table, country string) (Distribution, error) {
	rows := CountryRows(t, country)
	if err := rows.Err(); err != nil {
		return Distribution{}, err
	}

	histogram := hdrhistogram.New(1, 10000000000, 3)
	dist := Distribution{Country: country, Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range rows.Floats(schema.DailyVaccinations) {
		if math.IsNaN(v) {
			continue
		}
		if err := histogram.RecordValue(int64(math.Round(v))); err != nil {
			return Distribution{}, fmt.Errorf("failed to record %v for %s: %w", v, country, err)
		}
		dist.Samples++
		sum += v
		dist.Min = math.Min(dist.Min, v)
		dist.Max = math.Max(dist.Max, v)
	}
	if dist.Samples == 0 {
		return Distribution{}, fmt.Errorf("%w for %s", ErrNoSamples, country)
	}

	dist.P50 = histogram.ValueAtQuantile(50)
	dist.P90 = histogram.ValueAtQuantile(90)
	dist.P99 = histogram.ValueAtQuantile(99)
	dist.Mean = sum / float64(dist.Samples)
	return dist, nil
}
