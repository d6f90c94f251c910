// Package recipe describes the views a report renders: an ordered list of
// named steps, each one a QuerySpec run against a named source table.
package recipe

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spektr-org/vaxprogress/analysis"
	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/engine"
)

// ============================================================================
// RECIPE: Declarative list of report views
// ============================================================================
// A step never carries data. It names a source table and the QuerySpec the
// engine runs over it, so a recipe file can be written by hand or generated
// and stays reviewable.
// ============================================================================

// Sources a step can read.
const (
	SourceRows          = "rows"           // the loaded table
	SourceVaccine       = "vaccine"        // max per (country, vaccines)
	SourceFirstVaccines = "first_vaccines" // first vaccine combination per country
	SourceVaccineTotals = "vaccine_totals" // truncated total per vaccine combination
)

// Ranks narrow a source to its first rows ordered by the step's measure.
const (
	RankLowest  = "lowest"
	RankHighest = "highest"
)

// ErrUnknownSource is returned when a step reads a source that does not exist.
var ErrUnknownSource = errors.New("unknown source")

// ErrUnknownRank is returned for a rank other than lowest or highest.
var ErrUnknownRank = errors.New("unknown rank")

// Step is one view of the report.
type Step struct {
	Name   string           `json:"name" yaml:"name"`
	Title  string           `json:"title" yaml:"title"`
	Source string           `json:"source,omitempty" yaml:"source,omitempty"` // empty = rows
	Rank   string           `json:"rank,omitempty" yaml:"rank,omitempty"`     // lowest, highest or empty
	Query  engine.QuerySpec `json:"query" yaml:"query"`
}

// Recipe is an ordered list of steps.
type Recipe struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step looks up a step by name.
func (r Recipe) Step(name string) (Step, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Names returns the step names in order.
func (r Recipe) Names() []string {
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Name
	}
	return names
}

// Validate checks step names are unique, sources exist and every query is
// accepted by the engine.
func (r Recipe) Validate() error {
	seen := make(map[string]bool, len(r.Steps))
	for _, s := range r.Steps {
		if s.Name == "" {
			return fmt.Errorf("recipe %q: step without a name", r.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("recipe %q: duplicate step %q", r.Name, s.Name)
		}
		seen[s.Name] = true

		if !knownSource(s.Source) {
			return fmt.Errorf("step %q: %w %q", s.Name, ErrUnknownSource, s.Source)
		}
		if s.Rank != "" && s.Rank != RankLowest && s.Rank != RankHighest {
			return fmt.Errorf("step %q: %w %q", s.Name, ErrUnknownRank, s.Rank)
		}
		if err := engine.Validate(s.Query); err != nil {
			return fmt.Errorf("step %q: %w", s.Name, err)
		}
	}
	return nil
}

func knownSource(source string) bool {
	switch source {
	case "", SourceRows, SourceVaccine, SourceFirstVaccines, SourceVaccineTotals:
		return true
	}
	return false
}

// Sources builds every table a step can read from the loaded rows.
func Sources(t *dataset.Table) map[string]*dataset.Table {
	return map[string]*dataset.Table{
		SourceRows:          t,
		SourceVaccine:       analysis.MaxByCountryVaccine(t),
		SourceFirstVaccines: analysis.FirstVaccinesPerCountry(t),
		SourceVaccineTotals: analysis.VaccineTotalsTable(analysis.TotalsByVaccine(t)),
	}
}

// Resolve returns the table a step reads. A ranked step reads the first
// Query.Limit rows of its source ordered by Query.Measure.
func (s Step) Resolve(sources map[string]*dataset.Table) (*dataset.Table, error) {
	name := s.Source
	if name == "" {
		name = SourceRows
	}
	t, ok := sources[name]
	if !ok {
		return nil, fmt.Errorf("step %q: %w %q", s.Name, ErrUnknownSource, s.Source)
	}

	switch s.Rank {
	case "":
		return t, nil
	case RankLowest:
		return analysis.Lowest(t, s.Query.Measure, s.Query.Limit), nil
	case RankHighest:
		return analysis.Highest(t, s.Query.Measure, s.Query.Limit), nil
	}
	return nil, fmt.Errorf("step %q: %w %q", s.Name, ErrUnknownRank, s.Rank)
}

// ============================================================================
// PARSER
// ============================================================================

// Parse reads a recipe written as YAML or JSON. A bare list of steps is
// accepted as well as a {name, steps} document, and a surrounding markdown
// code fence is ignored. Missing titles and query fields get defaults and
// every query is normalized.
func Parse(data []byte) (Recipe, error) {
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "```yaml")
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Recipe{}, errors.New("empty recipe")
	}

	var r Recipe
	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, "- ") {
		if err := yaml.Unmarshal([]byte(text), &r.Steps); err != nil {
			return Recipe{}, fmt.Errorf("failed to parse recipe: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(text), &r); err != nil {
		return Recipe{}, fmt.Errorf("failed to parse recipe: %w", err)
	}

	for i := range r.Steps {
		r.Steps[i] = applyDefaults(r.Steps[i], i)
	}
	if err := r.Validate(); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// applyDefaults fills what a hand-written step may leave out.
func applyDefaults(s Step, index int) Step {
	if s.Name == "" {
		s.Name = fmt.Sprintf("step_%d", index+1)
	}
	if s.Title == "" {
		s.Title = s.Query.Title
	}
	if s.Query.Title == "" {
		s.Query.Title = s.Title
	}
	if s.Query.Source == "" {
		s.Query.Source = s.Source
	}
	if s.Source == "" {
		s.Source = s.Query.Source
	}
	s.Query = engine.NormalizeQuerySpec(s.Query)
	if s.Query.Visualize == "" {
		s.Query.Visualize = s.Query.Intent
		if s.Query.Intent == "chart" {
			s.Query.Visualize = "bar"
		}
	}
	return s
}

// Marshal encodes the recipe as YAML.
func (r Recipe) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
