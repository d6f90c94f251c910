package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/schema"
)

// ============================================================================
// TABLE: The in-memory vaccination table
// ============================================================================
// A gota DataFrame holds the rows. Column vectors are cached once per table
// so the engine can read cells through RecordView without copying series.
//
// Nulls: measure cells read as NaN, dimension cells read as "".
// Every operation returns a new Table; a Table is never mutated.
// ============================================================================

// Table wraps a gota DataFrame and implements engine.RecordView.
type Table struct {
	df  dataframe.DataFrame
	cfg schema.Config
	err error

	dims     map[string][]string
	measures map[string][]float64
	dimKeys  []string
	mesKeys  []string
}

var _ engine.RecordView = (*Table)(nil)

// Load reads a vaccination CSV. Measures are typed as floats and dimensions
// as strings; the header must contain every schema column.
// A leading UTF-8 BOM is ignored.
func Load(r io.Reader, cfg schema.Config) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	if err := schema.ValidateHeader(header, cfg); err != nil {
		return nil, err
	}

	types := make(map[string]series.Type, len(header))
	for _, key := range cfg.DimensionKeys() {
		types[key] = series.String
	}
	for _, key := range cfg.MeasureKeys() {
		types[key] = series.Float
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
		dataframe.NaNValues(schema.NullValues),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", df.Err)
	}
	return newTable(df, cfg), nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, cfg schema.Config) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return Load(f, cfg)
}

func newTable(df dataframe.DataFrame, cfg schema.Config) *Table {
	t := &Table{
		df:       df,
		cfg:      cfg,
		err:      df.Err,
		dims:     make(map[string][]string),
		measures: make(map[string][]float64),
	}
	if df.Err != nil {
		return t
	}

	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() == series.Float || col.Type() == series.Int {
			t.measures[name] = col.Float()
			t.mesKeys = append(t.mesKeys, name)
			continue
		}
		vals := col.Records()
		for i, na := range col.IsNaN() {
			if na {
				vals[i] = ""
			}
		}
		t.dims[name] = vals
		t.dimKeys = append(t.dimKeys, name)
	}
	return t
}

func (t *Table) derive(df dataframe.DataFrame) *Table {
	if t.err != nil {
		return t
	}
	return newTable(df, t.cfg)
}

// Err returns the first error raised while deriving this table.
func (t *Table) Err() error { return t.err }

// Schema returns the schema the table was loaded with.
func (t *Table) Schema() schema.Config { return t.cfg }

// DataFrame exposes the underlying gota frame.
func (t *Table) DataFrame() dataframe.DataFrame { return t.df }

// ============================================================================
// RECORD VIEW
// ============================================================================

func (t *Table) Len() int {
	if t.err != nil {
		return 0
	}
	return t.df.Nrow()
}

func (t *Table) Dimension(i int, key string) string {
	col, ok := t.dims[key]
	if !ok || i < 0 || i >= len(col) {
		return ""
	}
	return col[i]
}

func (t *Table) Measure(i int, key string) float64 {
	col, ok := t.measures[key]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

func (t *Table) DimensionKeys() []string { return t.dimKeys }
func (t *Table) MeasureKeys() []string   { return t.mesKeys }

// ============================================================================
// SHAPE
// ============================================================================

// Shape returns the number of rows and columns.
func (t *Table) Shape() (rows, cols int) {
	if t.err != nil {
		return 0, 0
	}
	return t.df.Dims()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	if t.err != nil {
		return nil
	}
	return t.df.Names()
}

// Records returns the table as strings, header first. Measures use the
// shortest exact float formatting and nulls are empty cells.
func (t *Table) Records() [][]string {
	if t.err != nil {
		return nil
	}
	names := t.df.Names()
	records := make([][]string, 0, t.Len()+1)
	records = append(records, names)
	for i := 0; i < t.Len(); i++ {
		row := make([]string, len(names))
		for c, name := range names {
			if col, ok := t.measures[name]; ok {
				row[c] = formatFloat(col[i])
				continue
			}
			row[c] = t.dims[name][i]
		}
		records = append(records, row)
	}
	return records
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Floats returns a copy of a measure column.
func (t *Table) Floats(column string) []float64 {
	return append([]float64(nil), t.measures[column]...)
}

// Strings returns a copy of a dimension column.
func (t *Table) Strings(column string) []string {
	return append([]string(nil), t.dims[column]...)
}

// ============================================================================
// ROW OPERATIONS
// ============================================================================

// Filter keeps rows whose column equals value exactly.
func (t *Table) Filter(column, value string) *Table {
	return t.derive(t.df.Filter(dataframe.F{
		Colname:    column,
		Comparator: series.Eq,
		Comparando: value,
	}))
}

// FilterIn keeps rows whose column equals any of values.
func (t *Table) FilterIn(column string, values []string) *Table {
	return t.derive(t.df.Filter(dataframe.F{
		Colname:    column,
		Comparator: series.In,
		Comparando: values,
	}))
}

// SortBy sorts rows by column. The sort is stable and nulls go last in
// both directions.
func (t *Table) SortBy(column string, ascending bool) *Table {
	order := dataframe.Sort(column)
	if !ascending {
		order = dataframe.RevSort(column)
	}
	return t.derive(t.df.Arrange(order))
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	return t.derive(t.df.Subset(span(0, min(n, t.Len()))))
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	l := t.Len()
	return t.derive(t.df.Subset(span(max(l-n, 0), l)))
}

// Select keeps the named columns in the given order.
func (t *Table) Select(columns ...string) *Table {
	return t.derive(t.df.Select(columns))
}

// Rows returns a table of the given row indices, in order.
func (t *Table) Rows(indices []int) *Table {
	return t.derive(t.df.Subset(indices))
}

func span(from, to int) []int {
	if to < from {
		to = from
	}
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return idx
}

// ============================================================================
// COLUMN OPERATIONS
// ============================================================================

// Unique returns the distinct non-null values of a column in first-seen order.
// Measure values are formatted without trailing zeros.
func (t *Table) Unique(column string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	if vals, ok := t.dims[column]; ok {
		for _, v := range vals {
			add(v)
		}
		return out
	}
	for _, v := range t.measures[column] {
		add(formatFloat(v))
	}
	return out
}

// NUnique counts the distinct non-null values of a column.
func (t *Table) NUnique(column string) int {
	return len(t.Unique(column))
}

// ============================================================================
// OUTPUT
// ============================================================================

// Write writes the table as CSV with a header row, in the same layout
// Load reads. gota's own writer rounds floats to six decimals, so the
// records are written directly to keep the round trip exact.
func (t *Table) Write(w io.Writer) error {
	if t.err != nil {
		return t.err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// WriteFile writes the table to path as CSV.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Equal reports whether two tables have the same columns and cells.
// Floats compare exactly and two nulls are equal.
func Equal(a, b *Table) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.err != nil || b.err != nil {
		return false
	}
	ar, ac := a.Shape()
	br, bc := b.Shape()
	if ar != br || ac != bc {
		return false
	}

	an, bn := a.Names(), b.Names()
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}

	for _, name := range an {
		af, aIsMeasure := a.measures[name]
		bf, bIsMeasure := b.measures[name]
		if aIsMeasure != bIsMeasure {
			return false
		}
		if aIsMeasure {
			for i := range af {
				if math.IsNaN(af[i]) != math.IsNaN(bf[i]) {
					return false
				}
				if !math.IsNaN(af[i]) && af[i] != bf[i] {
					return false
				}
			}
			continue
		}
		as, bs := a.dims[name], b.dims[name]
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
	}
	return true
}
