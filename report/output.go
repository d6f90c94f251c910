package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spektr-org/vaxprogress/engine"
)

// ============================================================================
// OUTPUT FORMATS: One query result written for people or spreadsheets
// ============================================================================

// Formats accepted by WriteResult.
const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
	FormatText   = "text"
	FormatCSV    = "csv"
)

// WriteResult writes result in one of the output formats.
func WriteResult(w io.Writer, result *engine.Result, format string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatText:
		reply := "No result."
		if result != nil && result.Reply != "" {
			reply = result.Reply
		}
		_, err := fmt.Fprintln(w, reply)
		return err
	case FormatJSON, FormatPretty, "":
		return WriteJSON(w, result, format)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteJSON writes v as one line of JSON, or indented when format is "pretty".
func WriteJSON(w io.Writer, v interface{}, format string) error {
	var out []byte
	var err error

	if format == FormatPretty {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// ============================================================================
// CSV OUTPUT: Chart and table data ready for Sheets/Excel
// ============================================================================

// WriteCSV writes the chart data of result, else its table, else its reply
// as a single summary row.
func WriteCSV(w io.Writer, result *engine.Result) error {
	cw := csv.NewWriter(w)

	switch {
	case result == nil:
		cw.Write([]string{"Result", "No data"})
	case result.ChartConfig != nil && writeChartCSV(cw, result.ChartConfig):
	case result.TableData != nil && writeTableCSV(cw, result.TableData):
	default:
		// Fallback: text result as single-row CSV
		cw.Write([]string{"Summary", "Value", "Unit"})
		reply := result.Reply
		if reply == "" {
			reply = "No data"
		}
		value := ""
		if result.Data != nil {
			value = result.Data.Value
		}
		cw.Write([]string{reply, value, result.DisplayUnit})
	}

	cw.Flush()
	return cw.Error()
}

func writeChartCSV(cw *csv.Writer, chart *engine.ChartConfig) bool {
	if len(chart.Series) == 0 {
		return false
	}

	xLabel := chart.XAxis
	yLabel := chart.YAxis
	if xLabel == "" {
		xLabel = "Label"
	}
	if yLabel == "" {
		yLabel = "Value"
	}

	// Single series → two columns, plus the category when points carry one
	if len(chart.Series) == 1 {
		data := chart.Series[0].Data
		categorized := chart.ColorBy != ""
		header := []string{xLabel, yLabel}
		if categorized {
			header = append(header, engine.LabelForDimension(chart.ColorBy))
		}
		cw.Write(header)
		for _, d := range data {
			row := []string{d.Label, FmtNum(d.Value)}
			if categorized {
				row = append(row, d.Category)
			}
			cw.Write(row)
		}
		return true
	}

	// Multi-series → label + one column per series, rows keyed by label
	headers := []string{xLabel}
	var labels []string
	seen := make(map[string]bool)
	values := make([]map[string]float64, len(chart.Series))
	for i, s := range chart.Series {
		headers = append(headers, s.Name)
		values[i] = make(map[string]float64, len(s.Data))
		for _, d := range s.Data {
			values[i][d.Label] = d.Value
			if !seen[d.Label] {
				seen[d.Label] = true
				labels = append(labels, d.Label)
			}
		}
	}
	cw.Write(headers)

	for _, label := range labels {
		row := []string{label}
		for i := range chart.Series {
			if v, ok := values[i][label]; ok {
				row = append(row, FmtNum(v))
			} else {
				row = append(row, "")
			}
		}
		cw.Write(row)
	}
	return true
}

func writeTableCSV(cw *csv.Writer, table *engine.TableData) bool {
	headers := table.Headers()
	if len(headers) == 0 {
		return false
	}

	cw.Write(headers)
	for _, row := range table.Rows {
		cw.Write(row)
	}
	return true
}

// FmtNum prints whole numbers without decimals and anything else with two.
func FmtNum(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
