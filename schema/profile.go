package schema

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// PROFILE: Column Types, Null Counts and Cardinality
// ============================================================================
// Inspects raw CSV data in one pass. Per column:
//   1. Count null and non-null cells
//   2. Count distinct values, keep a few sorted samples
//   3. Detect kind (numeric, date, bool, string) from the non-null cells
//
// The result answers the usual first questions about a dataset: its shape,
// which columns are sparse, and which are categorical.
// ============================================================================

// Kinds reported by ProfileCSV.
const (
	KindNumeric = "numeric"
	KindDate    = "date"
	KindBool    = "bool"
	KindString  = "string"
)

// ColumnProfile describes one column of a CSV file.
type ColumnProfile struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	NonNull int      `json:"nonNull"`
	Null    int      `json:"null"`
	Unique  int      `json:"unique"`
	Samples []string `json:"samples,omitempty"`
}

// Profile is the shape and per-column profile of a CSV file.
type Profile struct {
	Rows    int             `json:"rows"`
	Columns []ColumnProfile `json:"columns"`
}

// Column returns the profile of the named column.
func (p *Profile) Column(name string) (ColumnProfile, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// NullCounts maps column name to its number of null cells.
func (p *Profile) NullCounts() map[string]int {
	counts := make(map[string]int, len(p.Columns))
	for _, c := range p.Columns {
		counts[c.Name] = c.Null
	}
	return counts
}

// maxSamples is the number of distinct sample values kept per column.
const maxSamples = 5

// ProfileCSV reads every row of a CSV file and profiles each column.
// Rows shorter than the header count their missing cells as null.
func ProfileCSV(data []byte) (*Profile, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("CSV has no columns")
	}
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	type columnState struct {
		values []string
		unique map[string]bool
		nulls  int
	}
	states := make([]columnState, len(headers))
	for i := range states {
		states[i].unique = make(map[string]bool)
	}

	rows := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", rows+2, err)
		}
		rows++

		for i := range headers {
			if i >= len(row) || IsNull(row[i]) {
				states[i].nulls++
				continue
			}
			val := strings.TrimSpace(row[i])
			states[i].values = append(states[i].values, val)
			states[i].unique[val] = true
		}
	}

	profile := &Profile{Rows: rows, Columns: make([]ColumnProfile, len(headers))}
	for i, h := range headers {
		st := states[i]
		profile.Columns[i] = ColumnProfile{
			Name:    strings.TrimSpace(h),
			Kind:    detectKind(st.values),
			NonNull: len(st.values),
			Null:    st.nulls,
			Unique:  len(st.unique),
			Samples: collectSamples(st.unique, maxSamples),
		}
	}
	return profile, nil
}

// IsNull reports whether a raw CSV cell holds no value.
func IsNull(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NaN", "NA", "null", "NULL", "N/A", "n/a", "<nil>":
		return true
	}
	return false
}

// NullValues lists the raw cells treated as null when loading.
var NullValues = []string{"", "NaN", "NA", "null", "NULL", "N/A", "n/a", "<nil>"}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectKind inspects values to determine column kind.
// Requires 80%+ of non-null values to match for numeric/date/bool.
func detectKind(values []string) string {
	if len(values) == 0 {
		return KindString
	}

	numCount := 0
	dateCount := 0
	boolCount := 0

	for _, v := range values {
		if isNumeric(v) {
			numCount++
		}
		if isDate(v) {
			dateCount++
		}
		if isBool(v) {
			boolCount++
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}

	switch {
	case boolCount >= threshold:
		return KindBool
	case dateCount >= threshold:
		return KindDate
	case numCount >= threshold:
		return KindNumeric
	default:
		return KindString
	}
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "") // handle "1,234.56"
	s = strings.TrimPrefix(s, "-")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

var dateFormats = []string{
	DateLayout,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"Jan-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "false" || s == "yes" || s == "no"
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toDisplayName cleans a header for human display.
// "people_fully_vaccinated" → "People Fully Vaccinated"
func toDisplayName(s string) string {
	if strings.Contains(s, " ") {
		return strings.TrimSpace(s)
	}

	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")

	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
	}
	return strings.Join(words, " ")
}

// collectSamples picks up to n representative values.
func collectSamples(uniqueSet map[string]bool, n int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}

	// Sort for deterministic output
	sort.Strings(samples)

	if len(samples) > n {
		samples = samples[:n]
	}
	return samples
}
