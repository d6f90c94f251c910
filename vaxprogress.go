// Package vaxprogress tracks COVID-19 vaccination progress from a country
// vaccinations CSV.
//
// Usage:
//
//	import "github.com/spektr-org/vaxprogress/engine"
//
//	table, err := dataset.LoadFile("country_vaccinations.csv", schema.Vaccinations())
//	result, err := engine.Execute(querySpec, table,
//	    engine.WithDefaultMeasure("daily_vaccinations"),
//	)
//
// The engine takes a QuerySpec (usually a recipe step) and a RecordView, and
// returns render-ready output (chart config, table data, or text summary).
// Charts are rasterized by the render package; the report package runs a whole
// recipe and writes every artifact to disk. The store package exports the
// table and its derived views to SQLite, and the server package serves the
// same charts and tables over HTTP. cmd/vaxprogress wires them together.
//
// Nothing here calls an external service. All computation is local.
package vaxprogress
