// Package store exports vaccination tables to a SQLite database so they can
// be queried with SQL, and reads them back.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/schema"
)

// ErrInvalidName is returned for table or column names that are not plain
// lowercase identifiers.
var ErrInvalidName = errors.New("invalid identifier")

// indexed columns get an index whenever a table has them
var indexed = []string{schema.Country, schema.Date, schema.Vaccines}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a SQLite database holding exported tables.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() // nolint:errcheck
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection for ad hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// RawTable is the name the loaded rows are exported under.
const RawTable = "vaccinations"

// Export writes table as RawTable and each view under its own name to the
// database at path. Existing tables of the same name are replaced.
func Export(ctx context.Context, path string, table *dataset.Table, views map[string]*dataset.Table) error {
	s, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer s.Close() // nolint:errcheck

	if err := s.WriteTable(ctx, RawTable, table); err != nil {
		return err
	}

	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == RawTable {
			return fmt.Errorf("view %q collides with the raw table", name)
		}
		if err := s.WriteTable(ctx, name, views[name]); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable drops and recreates table name from t inside one transaction.
// Measures are REAL columns, dimensions TEXT; nulls are stored as NULL.
func (s *Store) WriteTable(ctx context.Context, name string, t *dataset.Table) error {
	if err := t.Err(); err != nil {
		return err
	}
	columns := t.Names()
	if err := checkNames(append([]string{name}, columns...)...); err != nil {
		return err
	}

	measures := make(map[string]bool)
	for _, m := range t.MeasureKeys() {
		measures[m] = true
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		kind := "TEXT"
		if measures[c] {
			kind = "REAL"
		}
		defs[i] = fmt.Sprintf("%q %s", c, kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %q", name),
		fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(defs, ", ")),
	}
	for _, c := range indexed {
		if contains(columns, c) {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q(%q)", "idx_"+name+"_"+c, name, c))
		}
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback() // nolint:errcheck
			return fmt.Errorf("error executing [%s]: %w", stmt, err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %q VALUES (%s)", name, placeholders))
	if err != nil {
		tx.Rollback() // nolint:errcheck
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer insert.Close() // nolint:errcheck

	args := make([]any, len(columns))
	for i := 0; i < t.Len(); i++ {
		for c, col := range columns {
			args[c] = cell(t, i, col, measures[col])
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			tx.Rollback() // nolint:errcheck
			return fmt.Errorf("error inserting row %d into %s: %w", i, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func cell(t *dataset.Table, i int, col string, measure bool) any {
	if measure {
		v := t.Measure(i, col)
		if math.IsNaN(v) {
			return nil
		}
		return v
	}
	v := t.Dimension(i, col)
	if v == "" {
		return nil
	}
	return v
}

// Tables lists the tables in the database, sorted by name.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("error listing tables: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Count returns the number of rows in table name.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	if err := checkNames(name); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting %s: %w", name, err)
	}
	return n, nil
}

// MaxBy returns MAX(measure) per value of dimension. Groups whose values
// are all NULL map to NaN.
func (s *Store) MaxBy(ctx context.Context, name, dimension, measure string) (map[string]float64, error) {
	if err := checkNames(name, dimension, measure); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %q, MAX(%q) FROM %q GROUP BY %q", dimension, measure, name, dimension)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", name, err)
	}
	defer rows.Close() // nolint:errcheck

	out := make(map[string]float64)
	for rows.Next() {
		var key sql.NullString
		var value sql.NullFloat64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key.String] = math.NaN()
		if value.Valid {
			out[key.String] = value.Float64
		}
	}
	return out, rows.Err()
}

// ReadTable loads table name back into a dataset.Table typed by cfg.
func (s *Store) ReadTable(ctx context.Context, name string, cfg schema.Config) (*dataset.Table, error) {
	if err := checkNames(name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q", name))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", name, err)
	}
	defer rows.Close() // nolint:errcheck

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(columns) // nolint:errcheck

	dest := make([]any, len(columns))
	for i, c := range columns {
		if cfg.IsMeasure(c) {
			dest[i] = new(sql.NullFloat64)
		} else {
			dest[i] = new(sql.NullString)
		}
	}

	record := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", name, err)
		}
		for i, d := range dest {
			record[i] = ""
			switch v := d.(type) {
			case *sql.NullFloat64:
				if v.Valid {
					record[i] = strconv.FormatFloat(v.Float64, 'f', -1, 64)
				}
			case *sql.NullString:
				record[i] = v.String
			}
		}
		w.Write(record) // nolint:errcheck
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return dataset.Load(&buf, cfg)
}

func checkNames(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
