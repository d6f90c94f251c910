package dataset

import (
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/schema"
)

// FromGroups turns an aggregation result back into a table: one row per
// group, one string column per groupBy dimension (from Group.Keys) and one
// float column per measure (from Group.Measures, or Group.Value when the
// group carries no per-measure values). Aggregations can then be re-applied
// to their own output.
func FromGroups(groups []engine.Group, dims, measures []string) *Table {
	cfg := schema.Config{Name: "derived"}
	columns := make([]series.Series, 0, len(dims)+len(measures))

	for d, dim := range dims {
		vals := make([]string, len(groups))
		for i, g := range groups {
			vals[i] = "NaN"
			if d < len(g.Keys) && g.Keys[d] != "" {
				vals[i] = g.Keys[d]
			}
		}
		columns = append(columns, series.New(vals, series.String, dim))
		cfg.Dimensions = append(cfg.Dimensions, schema.DefaultDimension(dim, engine.LabelForDimension(dim), nil))
	}

	for _, m := range measures {
		vals := make([]string, len(groups))
		for i, g := range groups {
			v := g.Value
			if g.Measures != nil {
				mv, ok := g.Measures[m]
				if !ok {
					mv = math.NaN()
				}
				v = mv
			}
			vals[i] = "NaN"
			if !math.IsNaN(v) {
				vals[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		columns = append(columns, series.New(vals, series.Float, m))
		cfg.Measures = append(cfg.Measures, schema.DefaultMeasure(m, engine.LabelForDimension(m)))
	}

	return newTable(dataframe.New(columns...), cfg)
}

// FromView copies any RecordView into a table with the view's dimension and
// measure columns, in that order. Empty dimensions and NaN measures become
// nulls.
func FromView(view engine.RecordView) *Table {
	cfg := schema.Config{Name: "derived"}
	dims, measures := view.DimensionKeys(), view.MeasureKeys()
	columns := make([]series.Series, 0, len(dims)+len(measures))

	for _, dim := range dims {
		vals := make([]string, view.Len())
		for i := range vals {
			vals[i] = "NaN"
			if v := view.Dimension(i, dim); v != "" {
				vals[i] = v
			}
		}
		columns = append(columns, series.New(vals, series.String, dim))
		cfg.Dimensions = append(cfg.Dimensions, schema.DefaultDimension(dim, engine.LabelForDimension(dim), nil))
	}

	for _, m := range measures {
		vals := make([]string, view.Len())
		for i := range vals {
			vals[i] = "NaN"
			if v := view.Measure(i, m); !math.IsNaN(v) {
				vals[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		columns = append(columns, series.New(vals, series.Float, m))
		cfg.Measures = append(cfg.Measures, schema.DefaultMeasure(m, engine.LabelForDimension(m)))
	}

	return newTable(dataframe.New(columns...), cfg)
}
