package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vaxprogress/engine"
)

func TestWriteCSV(t *testing.T) {
	t.Run("single series", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, &engine.Result{ChartConfig: &engine.ChartConfig{
			XAxis: "Date", YAxis: "Daily Vaccination",
			Series: []engine.ChartSeries{{Name: "Canada", Data: []engine.ChartPoint{
				{Label: "2020-12-15", Value: 718},
				{Label: "2020-12-16", Value: 1509.5},
			}}},
		}}))
		assert.Equal(t, "Date,Daily Vaccination\n2020-12-15,718\n2020-12-16,1509.50\n", buf.String())
	})

	t.Run("categorized points", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, &engine.Result{ChartConfig: &engine.ChartConfig{
			ColorBy: "vaccines",
			Series: []engine.ChartSeries{{Data: []engine.ChartPoint{
				{Label: "Canada", Value: 7279, Category: "Moderna, Pfizer/BioNTech"},
			}}},
		}}))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "Label,Value,"))
		assert.Equal(t, `Canada,7279,"Moderna, Pfizer/BioNTech"`, lines[1])
	})

	t.Run("multi series aligns labels", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, &engine.Result{ChartConfig: &engine.ChartConfig{
			XAxis: "Date",
			Series: []engine.ChartSeries{
				{Name: "Canada", Data: []engine.ChartPoint{{Label: "d1", Value: 1}, {Label: "d2", Value: 2}}},
				{Name: "Israel", Data: []engine.ChartPoint{{Label: "d2", Value: 5}}},
			},
		}}))
		assert.Equal(t, "Date,Canada,Israel\nd1,1,\nd2,2,5\n", buf.String())
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, &engine.Result{TableData: &engine.TableData{
			Columns: []engine.Column{{Key: "vaccines", Label: "Vaccines"}, {Key: "total", Label: "Total"}},
			Rows:    [][]string{{"Pfizer/BioNTech", "168,825"}},
		}}))
		assert.Equal(t, "Vaccines,Total\nPfizer/BioNTech,\"168,825\"\n", buf.String())
	})

	t.Run("text fallback", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, &engine.Result{
			Reply: "Total is 5", DisplayUnit: "doses",
			Data:  &engine.TextData{Value: "5"},
		}))
		assert.Equal(t, "Summary,Value,Unit\nTotal is 5,5,doses\n", buf.String())
	})

	t.Run("nil", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, nil))
		assert.Equal(t, "Result,No data\n", buf.String())
	})
}

func TestWriteResult(t *testing.T) {
	result := &engine.Result{Success: true, Type: "text", Reply: "3 days of data"}

	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, result, FormatText))
	assert.Equal(t, "3 days of data\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteResult(&buf, result, FormatJSON))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"reply":"3 days of data"`)

	buf.Reset()
	require.NoError(t, WriteResult(&buf, result, FormatPretty))
	assert.Contains(t, buf.String(), "\n  \"reply\": \"3 days of data\"")

	buf.Reset()
	require.NoError(t, WriteResult(&buf, &engine.Result{}, FormatText))
	assert.Equal(t, "No result.\n", buf.String())

	assert.Error(t, WriteResult(&buf, result, "xml"))
}

func TestFmtNum(t *testing.T) {
	assert.Equal(t, "2425", FmtNum(2425))
	assert.Equal(t, "0.02", FmtNum(0.02))
	assert.Equal(t, "-3", FmtNum(-3))
	assert.Equal(t, "1509.50", FmtNum(1509.5))
}
