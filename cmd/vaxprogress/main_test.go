package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vaxprogress/report"
	"github.com/spektr-org/vaxprogress/testutil"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "vaxprogress "+version+"\n", out)
}

func TestOverviewCommand(t *testing.T) {
	data := testutil.WriteFixture(t)

	out, err := runCLI(t, "overview", "--file", data, "--format", "text")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "26 rows × 15 columns, 2020-12-14 to 2021-01-17\n"))
	assert.Contains(t, out, "10 countries")

	out, err = runCLI(t, "overview", "--file", data)
	require.NoError(t, err)
	assert.Contains(t, out, `"rows":26`)
}

func TestQueryCommand(t *testing.T) {
	data := testutil.WriteFixture(t)

	out, err := runCLI(t, "query", "--file", data, "--step", "vaccine_totals", "--format", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)

	_, err = runCLI(t, "query", "--file", data, "--step", "nope")
	assert.ErrorContains(t, err, "unknown step")

	_, err = runCLI(t, "query", "--file", data)
	assert.ErrorContains(t, err, "--step is required")
}

func TestQueryToFile(t *testing.T) {
	data := testutil.WriteFixture(t)
	path := filepath.Join(t.TempDir(), "canada.json")

	out, err := runCLI(t, "query", "--file", data, "--countries", "Canada", "--step", "daily_rate_canada", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), `"chartType":"line"`)
}

func TestReportCommand(t *testing.T) {
	data := testutil.WriteFixture(t)
	dir := filepath.Join(t.TempDir(), "report")

	out, err := runCLI(t, "--file", data, "--out", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "written to "+dir)
	assert.FileExists(t, filepath.Join(dir, report.ManifestFile))
	assert.FileExists(t, filepath.Join(dir, "daily_rate_united_states.png"))
}

func TestExportCommand(t *testing.T) {
	data := testutil.WriteFixture(t)
	db := filepath.Join(t.TempDir(), "out.db")

	out, err := runCLI(t, "export", "--file", data, "--sqlite", db)
	require.NoError(t, err)
	assert.Equal(t, "Exported 26 rows to "+db+"\n", out)
	assert.FileExists(t, db)
}

func TestConfigFile(t *testing.T) {
	data := testutil.WriteFixture(t)
	cfgPath := filepath.Join(t.TempDir(), "vaxprogress.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_path: "+data+"\ncountries: [Canada]\n"), 0o644))

	out, err := runCLI(t, "steps", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "daily_rate_canada")
	assert.NotContains(t, out, "daily_rate_comparison")

	// a flag overrides the file
	out, err = runCLI(t, "steps", "--config", cfgPath, "--countries", "Israel, Chile")
	require.NoError(t, err)
	assert.Contains(t, out, "daily_rate_israel")
	assert.Contains(t, out, "daily_rate_comparison")
}

func TestErrors(t *testing.T) {
	_, err := runCLI(t, "overview", "--file", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = runCLI(t, "dance", "--file", testutil.WriteFixture(t))
	assert.ErrorContains(t, err, "unknown command")

	_, err = runCLI(t, "overview", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}
