package engine

import "math"

// ============================================================================
// RECORD VIEW — Zero-Copy Data Access Interface
// ============================================================================
// The engine never owns the loaded table. It reads through this interface.
//
// Implementations:
//   SliceView      — wraps []Record (fixtures, derived rows)
//   RowAdapter[T]  — typed struct slices, fields read through accessors
//   SubView        — filtered subset (indices into parent, zero-copy)
//   dataset.Table  — the gota-backed vaccination table
//
// A null measure reads as NaN.
// ============================================================================

// RecordView provides indexed access to a dataset.
// The engine calls Dimension/Measure in tight loops — keep implementations fast.
type RecordView interface {
	Len() int
	Dimension(index int, key string) string
	Measure(index int, key string) float64
	DimensionKeys() []string // available dimension keys
	MeasureKeys() []string   // available measure keys
}

// ============================================================================
// SLICE VIEW — wraps []Record
// ============================================================================

// SliceView wraps a []Record slice as a RecordView.
type SliceView struct {
	records []Record
	dimKeys []string
	mesKeys []string
}

// NewSliceView creates a RecordView from a []Record slice.
func NewSliceView(records []Record) RecordView {
	v := &SliceView{records: records}
	v.cacheKeys()
	return v
}

func (v *SliceView) cacheKeys() {
	if len(v.records) == 0 {
		return
	}
	dimSeen := make(map[string]bool)
	mesSeen := make(map[string]bool)
	for _, r := range v.records {
		for k := range r.Dimensions {
			if !dimSeen[k] {
				dimSeen[k] = true
				v.dimKeys = append(v.dimKeys, k)
			}
		}
		for k := range r.Measures {
			if !mesSeen[k] {
				mesSeen[k] = true
				v.mesKeys = append(v.mesKeys, k)
			}
		}
	}
}

func (v *SliceView) Len() int { return len(v.records) }

func (v *SliceView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.records) {
		return ""
	}
	return v.records[i].Dimensions[key]
}

// Measure returns NaN when the record has no value for key.
func (v *SliceView) Measure(i int, key string) float64 {
	if i < 0 || i >= len(v.records) {
		return math.NaN()
	}
	val, ok := v.records[i].Measures[key]
	if !ok {
		return math.NaN()
	}
	return val
}

func (v *SliceView) DimensionKeys() []string { return v.dimKeys }
func (v *SliceView) MeasureKeys() []string   { return v.mesKeys }

// ============================================================================
// SUB VIEW — filtered subset (zero-copy)
// ============================================================================

// SubView is a filtered subset of a parent RecordView.
// Holds indices into the parent — no data copy.
type SubView struct {
	parent  RecordView
	indices []int
}

func newSubView(parent RecordView, indices []int) RecordView {
	return &SubView{parent: parent, indices: indices}
}

// NewSubView exposes a subset of parent rows in the given order.
func NewSubView(parent RecordView, indices []int) RecordView {
	return newSubView(parent, indices)
}

func (v *SubView) Len() int { return len(v.indices) }

func (v *SubView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.indices) {
		return ""
	}
	return v.parent.Dimension(v.indices[i], key)
}

func (v *SubView) Measure(i int, key string) float64 {
	if i < 0 || i >= len(v.indices) {
		return math.NaN()
	}
	return v.parent.Measure(v.indices[i], key)
}

func (v *SubView) DimensionKeys() []string { return v.parent.DimensionKeys() }
func (v *SubView) MeasureKeys() []string   { return v.parent.MeasureKeys() }

// ============================================================================
// TYPED ROWS: a RecordView over a slice of structs
// ============================================================================
// Derived results such as per-vaccine totals are computed as typed slices.
// A RowAdapter names the fields the engine may read from them; Bind wraps a
// slice without copying it.
// ============================================================================

// RowAdapter declares the dimensions and measures readable from a T.
type RowAdapter[T any] struct {
	dimKeys []string
	mesKeys []string
	dims    map[string]func(T) string
	meas    map[string]func(T) float64
}

// NewRowAdapter returns an adapter with no fields.
func NewRowAdapter[T any]() *RowAdapter[T] {
	return &RowAdapter[T]{
		dims: map[string]func(T) string{},
		meas: map[string]func(T) float64{},
	}
}

// Dimension registers a string field. Registering a key twice replaces the
// accessor and keeps its first position.
func (a *RowAdapter[T]) Dimension(key string, get func(T) string) *RowAdapter[T] {
	if a.dims[key] == nil {
		a.dimKeys = append(a.dimKeys, key)
	}
	a.dims[key] = get
	return a
}

// Measure registers a numeric field.
func (a *RowAdapter[T]) Measure(key string, get func(T) float64) *RowAdapter[T] {
	if a.meas[key] == nil {
		a.mesKeys = append(a.mesKeys, key)
	}
	a.meas[key] = get
	return a
}

// Bind exposes rows through the adapter's fields.
func (a *RowAdapter[T]) Bind(rows []T) RecordView {
	return &rowView[T]{rows: rows, adapter: a}
}

type rowView[T any] struct {
	rows    []T
	adapter *RowAdapter[T]
}

func (v *rowView[T]) Len() int { return len(v.rows) }

func (v *rowView[T]) Dimension(i int, key string) string {
	get := v.adapter.dims[key]
	if get == nil || i < 0 || i >= len(v.rows) {
		return ""
	}
	return get(v.rows[i])
}

func (v *rowView[T]) Measure(i int, key string) float64 {
	get := v.adapter.meas[key]
	if get == nil || i < 0 || i >= len(v.rows) {
		return math.NaN()
	}
	return get(v.rows[i])
}

func (v *rowView[T]) DimensionKeys() []string { return v.adapter.dimKeys }
func (v *rowView[T]) MeasureKeys() []string   { return v.adapter.mesKeys }
