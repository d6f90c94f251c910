package recipe

import (
	"strings"
	"unicode"

	"github.com/spektr-org/vaxprogress/analysis"
	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/schema"
)

// DefaultCountries are the countries whose daily rates are plotted when no
// others are configured.
var DefaultCountries = []string{"United States", "United Kingdom", "Canada"}

// Default returns the vaccination progress report: daily rates for each
// country, the vaccine usage views over the per-country maximum table,
// the lowest/highest rankings and the vaccine totals.
func Default(countries []string, topN int) Recipe {
	if len(countries) == 0 {
		countries = DefaultCountries
	}
	if topN <= 0 {
		topN = analysis.DefaultTopN
	}

	var steps []Step
	add := func(name, source string, q engine.QuerySpec) {
		q.Source = source
		steps = append(steps, Step{Name: name, Title: q.Title, Source: source, Query: q})
	}

	for _, c := range countries {
		add("daily_rate_"+Slug(c), SourceRows, analysis.DailyRate(c, ""))
	}
	if len(countries) > 1 {
		q := analysis.DailyRateComparison(countries...)
		q.Title = "Daily Vaccination Rate Comparison in " + strings.Join(countries, ", ")
		add("daily_rate_comparison", SourceRows, q)
	}

	add("countries_per_vaccine", SourceFirstVaccines, engine.QuerySpec{
		Intent:      "chart",
		Visualize:   "bar",
		Aggregation: "count",
		GroupBy:     []string{schema.Vaccines},
		SortBy:      "value_desc",
		Title:       "Countries using Different Vaccine Types",
		XAxisTitle:  "Vaccine Types",
		YAxisTitle:  "No of Countries",
		Reply:       "{top_label} is used by the most countries ({top_value}).",
	})

	add("vaccine_by_country", SourceVaccine, engine.QuerySpec{
		Intent:      "table",
		Visualize:   "table",
		Aggregation: "list",
		Measure:     schema.TotalVaccinations,
		Columns:     append([]string{schema.Country, schema.Vaccines}, analysis.VaccineMeasures...),
		Title:       "Maximum Vaccinations by Country and Vaccine",
	})

	add("vaccine_scatter_geo", SourceVaccine, geo("scatter_geo", schema.TotalVaccinations, schema.Vaccines,
		"Vaccine Used by Countries with Total Vaccinated"))
	add("vaccine_choropleth", SourceVaccine, geo("choropleth", schema.TotalVaccinations, schema.Vaccines,
		"Color representation of Vaccine Used"))

	add("treemap_total", SourceVaccine, treemap(schema.TotalVaccinations, "Tree Map based on Total Vaccination"))
	add("treemap_daily", SourceVaccine, treemap(schema.DailyVaccinations, "Tree Map based on Daily Vaccination Rate"))

	add("choropleth_total", SourceVaccine, geo("choropleth", schema.TotalVaccinations, "", "Total Vaccinations by Country"))
	add("choropleth_daily", SourceVaccine, geo("choropleth", schema.DailyVaccinations, "", "Daily Vaccinations by Country"))
	add("choropleth_per_hundred", SourceVaccine, geo("choropleth", schema.TotalVaccinationsPerHundred, "",
		"Total Vaccinations Per Hundred by Country"))

	ranked := func(name, rank, measure, title string) {
		add(name, SourceVaccine, ranking(measure, rank, topN, title))
		steps[len(steps)-1].Rank = rank
	}
	ranked("lowest_total", RankLowest, schema.TotalVaccinations, "Countries with Low Total Vaccination and Vaccine Used")
	ranked("highest_total", RankHighest, schema.TotalVaccinations, "Countries with High Total Vaccination and Vaccine Used")
	ranked("lowest_daily", RankLowest, schema.DailyVaccinations, "Countries with Low Daily Vaccination and Vaccine Used")
	ranked("highest_daily", RankHighest, schema.DailyVaccinations, "Countries with High Daily Vaccination and Vaccine Used")

	add("vaccine_totals", SourceVaccineTotals, engine.QuerySpec{
		Intent:      "table",
		Visualize:   "table",
		Aggregation: "sum",
		Measure:     schema.TotalVaccinations,
		GroupBy:     []string{schema.Vaccines},
		SortBy:      "label_asc",
		Title:       "Total of each Vaccine used",
	})
	add("vaccine_pie", SourceVaccineTotals, engine.QuerySpec{
		Intent:      "chart",
		Visualize:   "pie",
		Aggregation: "sum",
		Measure:     schema.TotalVaccinations,
		GroupBy:     []string{schema.Vaccines},
		SortBy:      "label_asc",
		Title:       "Total vaccines given by Vaccines/Vaccines combinations",
		Reply:       "{top_label} accounts for the most doses ({top_value}).",
	})

	return Recipe{Name: "vaccination_progress", Steps: steps}
}

func geo(kind, measure, colorBy, title string) engine.QuerySpec {
	return engine.QuerySpec{
		Intent:      "chart",
		Visualize:   kind,
		Aggregation: "max",
		Measure:     measure,
		GroupBy:     []string{schema.Country},
		ColorBy:     colorBy,
		Title:       title,
	}
}

func treemap(measure, title string) engine.QuerySpec {
	return engine.QuerySpec{
		Intent:      "chart",
		Visualize:   "treemap",
		Aggregation: "sum",
		Measure:     measure,
		GroupBy:     []string{schema.Vaccines, schema.Country},
		SortBy:      "value_desc",
		Title:       title,
	}
}

// ranking plots the rows a ranked step resolves to, one bar per
// (country, vaccines) row colored by its vaccines.
func ranking(measure, rank string, n int, title string) engine.QuerySpec {
	sortBy := "value_asc"
	if rank == RankHighest {
		sortBy = "value_desc"
	}
	return engine.QuerySpec{
		Intent:      "chart",
		Visualize:   "bar",
		Aggregation: "none",
		Measure:     measure,
		GroupBy:     []string{schema.Country},
		ColorBy:     schema.Vaccines,
		SortBy:      sortBy,
		Limit:       n,
		Title:       title,
		XAxisTitle:  "Country",
		YAxisTitle:  engine.LabelForDimension(measure),
	}
}

// Slug turns a display name into a step-name fragment: "United States" → "united_states".
func Slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
