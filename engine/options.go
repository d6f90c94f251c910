package engine

import "log/slog"

// ============================================================================
// ENGINE OPTIONS — Functional options for Execute()
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	DefaultMeasure string            // default measure key if QuerySpec.Measure is empty
	DateDimension  string            // dimension holding ISO dates, used for periods and growth
	Units          map[string]string // measure key → display unit
	Logger         *slog.Logger
}

// WithDefaultMeasure sets the measure to aggregate when QuerySpec.Measure is empty.
func WithDefaultMeasure(measure string) Option {
	return func(c *config) {
		c.DefaultMeasure = measure
	}
}

// WithDateDimension names the dimension that holds YYYY-MM-DD dates.
func WithDateDimension(dimension string) Option {
	return func(c *config) {
		c.DateDimension = dimension
	}
}

// WithUnits maps measure keys to display units ("doses", "percent").
func WithUnits(units map[string]string) Option {
	return func(c *config) {
		c.Units = units
	}
}

// WithLogger routes engine logs to logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		DefaultMeasure: "daily_vaccinations",
		DateDimension:  "date",
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *config) unitFor(measure string) string {
	if c.Units == nil {
		return ""
	}
	return c.Units[measure]
}
