package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spektr-org/vaxprogress/analysis"
	"github.com/spektr-org/vaxprogress/config"
	"github.com/spektr-org/vaxprogress/dataset"
	"github.com/spektr-org/vaxprogress/engine"
	"github.com/spektr-org/vaxprogress/logging"
	"github.com/spektr-org/vaxprogress/recipe"
	"github.com/spektr-org/vaxprogress/report"
	"github.com/spektr-org/vaxprogress/schema"
	"github.com/spektr-org/vaxprogress/server"
	"github.com/spektr-org/vaxprogress/store"
)

// ============================================================================
// VAXPROGRESS CLI: COVID-19 vaccination progress from a country CSV
// ============================================================================

const version = "0.1.0"

const usage = `vaxprogress: COVID-19 vaccination progress

Usage:
  vaxprogress [command] [flags]

Commands:
  report     Run the recipe and write every chart, table and map to --out (default)
  overview   Print shape, null counts, countries and vaccine combinations
  profile    Print the detected type and null count of every CSV column
  steps      List the recipe steps
  query      Run one recipe step (--step) and print it in --format
  export     Write the table and its derived views to a SQLite database
  serve      Serve charts and tables over HTTP

Examples:
  vaxprogress report --file country_vaccinations.csv --out report
  vaxprogress query --file country_vaccinations.csv --step lowest_total --format csv
  vaxprogress overview --file country_vaccinations.csv --format text
  vaxprogress export --file country_vaccinations.csv --sqlite vaccinations.db
  vaxprogress serve --config vaxprogress.yaml --addr :8080

Flags:
`

const formatsHelp = `
Formats:
  json      Full JSON output (default)
  pretty    Pretty-printed JSON
  text      Human-readable summary only
  csv       Chart/table data as CSV (ready for Sheets/Excel)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fatalf("%v", err)
	}
}

// options holds the parsed command line.
type options struct {
	command string
	step    string
	outFile string // --out for commands other than report
	cfg     *config.Config
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{command: "report"}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("vaxprogress", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to a YAML config file")
	filePath := fs.String("file", "", "Path to the country vaccinations CSV")
	outPath := fs.String("out", "", "Report directory (report) or output file (other commands)")
	format := fs.String("format", "", "Output format: json, pretty, text, csv")
	image := fs.String("image", "", "Chart image format: png, svg")
	countries := fs.String("countries", "", "Comma separated countries for the daily rate charts")
	topN := fs.Int("top", 0, "Number of countries in the lowest/highest rankings")
	recipePath := fs.String("recipe", "", "Path to a YAML or JSON recipe (default: built-in report)")
	step := fs.String("step", "", "Recipe step to run (query)")
	sqlitePath := fs.String("sqlite", "", "SQLite database path (export)")
	addr := fs.String("addr", "", "Listen address (serve)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
		fmt.Fprint(stderr, formatsHelp)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		opts.command = "version"
		return opts, nil
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return nil, err
		}
	}

	// Flags given on the command line win over the config file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "file":
			cfg.DataPath = *filePath
		case "out":
			if opts.command == "report" {
				cfg.OutputDir = *outPath
			}
		case "format":
			cfg.Format = *format
		case "image":
			cfg.ImageType = *image
		case "countries":
			cfg.Countries = splitList(*countries)
		case "top":
			cfg.TopN = *topN
		case "recipe":
			cfg.RecipePath = *recipePath
		case "sqlite":
			cfg.SQLitePath = *sqlitePath
		case "addr":
			cfg.ListenAddr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts.step = *step
	opts.cfg = cfg
	if opts.command != "report" {
		opts.outFile = *outPath
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.command == "version" {
		fmt.Fprintf(stdout, "vaxprogress %s\n", version)
		return nil
	}
	cfg := opts.cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.NewStructuredLogger(stderr, level)
	ctx = logging.WithLogger(ctx, logger)

	// ── Output writer ─────────────────────────────────────────────────────
	writer := stdout
	if opts.outFile != "" {
		f, err := os.Create(opts.outFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer logging.SafeCloseWithLogging(f, logger, "output file")
		writer = f
	}

	if opts.command == "profile" {
		return profile(cfg, writer)
	}

	// ── Read data ─────────────────────────────────────────────────────────
	sch := schema.Vaccinations()
	table, err := dataset.LoadFile(cfg.DataPath, sch)
	if err != nil {
		return err
	}
	rows, cols := table.Shape()
	logging.LogOperation(logger, "dataset_loaded",
		slog.String("path", cfg.DataPath), slog.Int("rows", rows), slog.Int("columns", cols))

	rc, err := loadRecipe(cfg)
	if err != nil {
		return err
	}
	engineOpts := []engine.Option{
		engine.WithDefaultMeasure(sch.GetDefaultMeasure()),
		engine.WithUnits(sch.Units()),
	}

	switch opts.command {
	case "report":
		runner := &report.Runner{
			OutDir:      cfg.OutputDir,
			ImageFormat: cfg.ImageType,
			Logger:      logger,
			Options:     engineOpts,
		}
		manifest, err := runner.Run(ctx, table, rc)
		if err != nil {
			return err
		}
		for _, failed := range manifest.Failed() {
			fmt.Fprintf(stderr, "Warning: step %s: %s\n", failed.Name, failed.Error)
		}
		fmt.Fprintf(stdout, "Report %s written to %s (%d steps)\n", manifest.RunID, cfg.OutputDir, len(manifest.Steps))
		return nil

	case "overview":
		ov := analysis.Overview(table)
		if cfg.Format == report.FormatText || cfg.Format == report.FormatCSV {
			writeOverviewText(writer, ov)
			return nil
		}
		return report.WriteJSON(writer, ov, cfg.Format)

	case "steps":
		for _, step := range rc.Steps {
			fmt.Fprintf(writer, "%-28s %-12s %s\n", step.Name, step.Query.Visualize, step.Title)
		}
		return nil

	case "query":
		if opts.step == "" {
			return fmt.Errorf("--step is required; run 'vaxprogress steps' to list them")
		}
		step, ok := rc.Step(opts.step)
		if !ok {
			return fmt.Errorf("unknown step %q", opts.step)
		}
		result, err := report.RunStep(step, recipe.Sources(table), append(engineOpts, engine.WithLogger(logger))...)
		if err != nil {
			return err
		}
		return report.WriteResult(writer, result, cfg.Format)

	case "export":
		views := recipe.Sources(table)
		delete(views, recipe.SourceRows)
		if err := store.Export(ctx, cfg.SQLitePath, table, views); err != nil {
			return err
		}
		logging.LogOperation(logger, "sqlite_exported",
			slog.String("path", cfg.SQLitePath), slog.Int("views", len(views)))
		fmt.Fprintf(stdout, "Exported %d rows to %s\n", table.Len(), cfg.SQLitePath)
		return nil

	case "serve":
		return server.New(table, rc, logger, engineOpts...).ListenAndServe(ctx, cfg.ListenAddr)
	}
	return fmt.Errorf("unknown command %q", opts.command)
}

func loadRecipe(cfg *config.Config) (recipe.Recipe, error) {
	if cfg.RecipePath == "" {
		return recipe.Default(cfg.Countries, cfg.TopN), nil
	}
	data, err := os.ReadFile(cfg.RecipePath)
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("failed to read recipe: %w", err)
	}
	return recipe.Parse(data)
}

func profile(cfg *config.Config, w io.Writer) error {
	data, err := os.ReadFile(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	p, err := schema.ProfileCSV(data)
	if err != nil {
		return err
	}
	format := cfg.Format
	if format == report.FormatText || format == report.FormatCSV {
		format = report.FormatPretty
	}
	return report.WriteJSON(w, p, format)
}

func writeOverviewText(w io.Writer, ov analysis.Summary) {
	fmt.Fprintf(w, "%s rows × %d columns, %s to %s\n", engine.FormatInt(ov.Rows), ov.Columns, ov.FirstDate, ov.LastDate)
	fmt.Fprintf(w, "%d countries\n\nNull values:\n", len(ov.Countries))
	for _, f := range ov.Fields {
		fmt.Fprintf(w, "  %-40s %s\n", f.Name, engine.FormatInt(f.Null))
	}
	fmt.Fprintln(w, "\nVaccines:")
	for _, v := range ov.Vaccines {
		fmt.Fprintf(w, "  %-60s %s\n", v.Value, engine.FormatInt(v.Count))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
