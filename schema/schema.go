package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// SCHEMA: Describes the shape of the vaccination dataset
// ============================================================================
// The loader uses the schema to type columns (dimensions as strings, measures
// as floats) and to validate the CSV header. The engine uses it for default
// measures, units and aggregations.
// ============================================================================

// ErrMissingColumn is returned when a CSV header lacks a schema column.
var ErrMissingColumn = errors.New("missing column")

// Config describes the complete shape of a dataset.
type Config struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`

	Dimensions []DimensionMeta `json:"dimensions"`
	Measures   []MeasureMeta   `json:"measures"`
}

// DimensionMeta describes a string field used for grouping/filtering.
type DimensionMeta struct {
	Key             string   `json:"key"`
	DisplayName     string   `json:"displayName"`
	Description     string   `json:"description,omitempty"`
	SampleValues    []string `json:"sampleValues,omitempty"`
	Groupable       bool     `json:"groupable"`
	Filterable      bool     `json:"filterable"`
	IsTemporal      bool     `json:"isTemporal,omitempty"`
	TemporalFormat  string   `json:"temporalFormat,omitempty"` // Go layout, e.g. "2006-01-02"
	CardinalityHint string   `json:"cardinalityHint,omitempty"` // "low", "medium", "high"
}

// MeasureMeta describes a numeric field used for aggregation.
type MeasureMeta struct {
	Key                string   `json:"key"`
	DisplayName        string   `json:"displayName"`
	Description        string   `json:"description,omitempty"`
	Unit               string   `json:"unit,omitempty"` // "doses", "people", "percent", "per_million"
	Cumulative         bool     `json:"cumulative,omitempty"`
	Aggregations       []string `json:"aggregations,omitempty"`
	DefaultAggregation string   `json:"defaultAggregation,omitempty"`
}

// DefaultDimension creates a DimensionMeta with sensible defaults.
func DefaultDimension(key, displayName string, samples []string) DimensionMeta {
	return DimensionMeta{
		Key:          key,
		DisplayName:  displayName,
		SampleValues: samples,
		Groupable:    true,
		Filterable:   true,
	}
}

// DefaultMeasure creates a MeasureMeta with sensible defaults.
func DefaultMeasure(key, displayName string) MeasureMeta {
	return MeasureMeta{
		Key:                key,
		DisplayName:        displayName,
		Aggregations:       []string{"sum", "avg", "min", "max", "count", "first"},
		DefaultAggregation: "sum",
	}
}

// Column names of the vaccination CSV.
const (
	Country                         = "country"
	ISOCode                         = "iso_code"
	Date                            = "date"
	TotalVaccinations               = "total_vaccinations"
	PeopleVaccinated                = "people_vaccinated"
	PeopleFullyVaccinated           = "people_fully_vaccinated"
	DailyVaccinationsRaw            = "daily_vaccinations_raw"
	DailyVaccinations               = "daily_vaccinations"
	TotalVaccinationsPerHundred     = "total_vaccinations_per_hundred"
	PeopleVaccinatedPerHundred      = "people_vaccinated_per_hundred"
	PeopleFullyVaccinatedPerHundred = "people_fully_vaccinated_per_hundred"
	DailyVaccinationsPerMillion     = "daily_vaccinations_per_million"
	Vaccines                        = "vaccines"
	SourceName                      = "source_name"
	SourceWebsite                   = "source_website"
)

// DateLayout is the layout of the date column.
const DateLayout = "2006-01-02"

// Vaccinations returns the fixed schema of the country vaccinations dataset.
// Cumulative columns default to max, daily columns to sum.
func Vaccinations() Config {
	measure := func(key, unit string, cumulative bool) MeasureMeta {
		m := DefaultMeasure(key, toDisplayName(key))
		m.Unit = unit
		m.Cumulative = cumulative
		if cumulative {
			m.DefaultAggregation = "max"
		}
		return m
	}

	date := DefaultDimension(Date, "Date", nil)
	date.IsTemporal = true
	date.TemporalFormat = DateLayout
	date.CardinalityHint = "high"

	country := DefaultDimension(Country, "Country", nil)
	country.CardinalityHint = "high"

	vaccines := DefaultDimension(Vaccines, "Vaccines", nil)
	vaccines.Description = "Vaccine combination in use in the country, one categorical label"
	vaccines.CardinalityHint = "medium"

	sourceName := DefaultDimension(SourceName, "Source Name", nil)
	sourceName.Groupable = false
	sourceWebsite := DefaultDimension(SourceWebsite, "Source Website", nil)
	sourceWebsite.Groupable = false

	return Config{
		Name:        "country_vaccinations",
		Version:     "1.0",
		Description: "COVID-19 vaccination progress, one row per country and date",
		Dimensions: []DimensionMeta{
			country,
			DefaultDimension(ISOCode, "ISO Code", nil),
			date,
			vaccines,
			sourceName,
			sourceWebsite,
		},
		Measures: []MeasureMeta{
			measure(TotalVaccinations, "doses", true),
			measure(PeopleVaccinated, "people", true),
			measure(PeopleFullyVaccinated, "people", true),
			measure(DailyVaccinationsRaw, "doses", false),
			measure(DailyVaccinations, "doses", false),
			measure(TotalVaccinationsPerHundred, "percent", true),
			measure(PeopleVaccinatedPerHundred, "percent", true),
			measure(PeopleFullyVaccinatedPerHundred, "percent", true),
			measure(DailyVaccinationsPerMillion, "per_million", false),
		},
	}
}

// Columns returns every column in CSV order for the vaccination schema,
// and dimensions followed by measures for other configs.
func (c Config) Columns() []string {
	if c.Name == "country_vaccinations" {
		return []string{
			Country, ISOCode, Date,
			TotalVaccinations, PeopleVaccinated, PeopleFullyVaccinated,
			DailyVaccinationsRaw, DailyVaccinations,
			TotalVaccinationsPerHundred, PeopleVaccinatedPerHundred, PeopleFullyVaccinatedPerHundred,
			DailyVaccinationsPerMillion,
			Vaccines, SourceName, SourceWebsite,
		}
	}
	return append(c.DimensionKeys(), c.MeasureKeys()...)
}

// GetDefaultMeasure returns the daily vaccinations measure when present,
// otherwise the first measure's key.
func (c Config) GetDefaultMeasure() string {
	if _, ok := c.Measure(DailyVaccinations); ok {
		return DailyVaccinations
	}
	if len(c.Measures) > 0 {
		return c.Measures[0].Key
	}
	return ""
}

// DimensionKeys returns all dimension keys.
func (c Config) DimensionKeys() []string {
	keys := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		keys[i] = d.Key
	}
	return keys
}

// MeasureKeys returns all measure keys.
func (c Config) MeasureKeys() []string {
	keys := make([]string, len(c.Measures))
	for i, m := range c.Measures {
		keys[i] = m.Key
	}
	return keys
}

// Measure looks up a measure by key.
func (c Config) Measure(key string) (MeasureMeta, bool) {
	for _, m := range c.Measures {
		if m.Key == key {
			return m, true
		}
	}
	return MeasureMeta{}, false
}

// Dimension looks up a dimension by key.
func (c Config) Dimension(key string) (DimensionMeta, bool) {
	for _, d := range c.Dimensions {
		if d.Key == key {
			return d, true
		}
	}
	return DimensionMeta{}, false
}

// IsMeasure reports whether key names a measure column.
func (c Config) IsMeasure(key string) bool {
	_, ok := c.Measure(key)
	return ok
}

// Units maps each measure key to its display unit.
func (c Config) Units() map[string]string {
	units := make(map[string]string, len(c.Measures))
	for _, m := range c.Measures {
		if m.Unit != "" {
			units[m.Key] = m.Unit
		}
	}
	return units
}

// ValidateHeader checks that every schema column is present in header.
// Extra columns are allowed. The error names every missing column.
func ValidateHeader(header []string, cfg Config) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = true
	}

	var missing []string
	for _, col := range cfg.Columns() {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}
