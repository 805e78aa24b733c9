package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/config"
	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/store"
)

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(uncommentSettings(defaultConfigTemplate())), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Analysis.BufferRadius)
	assert.Equal(t, 50000.0, *cfg.Analysis.BufferRadius)
	assert.Equal(t, []float64{2, 5, 10, 25, 100, 500}, cfg.Analysis.StandardPeriods)
	assert.Equal(t, "/data/p0.asc", cfg.Layers.Aux["p0"])
	require.NotNil(t, cfg.Log.Level)
	assert.Equal(t, defaultLogLevel, *cfg.Log.Level)
}

// uncommentSettings enables every commented key = value line.
func uncommentSettings(tmpl string) string {
	lines := strings.Split(tmpl, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") && strings.Contains(line, " = ") {
			lines[i] = strings.TrimPrefix(line, "# ")
		}
	}
	return strings.Join(lines, "\n")
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("lookup: %w", store.ErrRegionNotFound), exitRegion},
		{fmt.Errorf("delineate: %w", catchment.ErrOutOfBounds), exitInput},
		{frequency.ErrInsufficientSamples, exitFit},
		{catchment.ErrEmptyCatchment, exitFailure},
		{os.ErrNotExist, exitFailure},
	}
	for _, tt := range tests {
		code, msg := describeError(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Contains(t, msg, tt.err.Error())
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRationalCommand(t *testing.T) {
	out, err := execute(t, "rational", "--format", "json",
		"--area", "10", "--tc", "2", "--i1id", "10", "--p0", "20", "--rainfall", "100")
	require.NoError(t, err)

	var doc struct {
		Result struct {
			FlowM3s     float64 `json:"flow_m3s"`
			CorrectedP0 float64 `json:"corrected_p0_mm"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Greater(t, doc.Result.FlowM3s, 0.0)
	assert.Equal(t, 20.0, doc.Result.CorrectedP0)
}

func TestFitAndInterpolateCommands(t *testing.T) {
	samples := filepath.Join(t.TempDir(), "samples.yaml")
	require.NoError(t, os.WriteFile(samples, []byte(`kind: gev
samples:
  - {t: 2, value: 10}
  - {t: 10, value: 25}
  - {t: 100, value: 60}
`), 0o644))

	out, err := execute(t, "fit", samples, "--format", "json", "--t", "100,500")
	require.NoError(t, err)
	var fit struct {
		Kind      string `json:"kind"`
		Quantiles []struct {
			T            float64 `json:"t"`
			Flow         float64 `json:"flow_m3s"`
			Extrapolated bool    `json:"extrapolated"`
		} `json:"quantiles"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fit))
	assert.Equal(t, "GEV", fit.Kind)
	require.Len(t, fit.Quantiles, 2)
	assert.InDelta(t, 60, fit.Quantiles[0].Flow, 1e-3)
	assert.True(t, fit.Quantiles[1].Extrapolated)

	out, err = execute(t, "interpolate", samples, "--format", "table", "--t", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "25.000")
}

func TestFitRejectsInvalidDocument(t *testing.T) {
	samples := filepath.Join(t.TempDir(), "samples.yaml")
	require.NoError(t, os.WriteFile(samples, []byte("samples:\n  - {t: 1, value: 10}\n"), 0o644))

	_, err := execute(t, "fit", samples)
	require.Error(t, err)
	code, _ := describeError(err)
	assert.Equal(t, exitInput, code)
}

func TestRegionsImportAndList(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "regions.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`regions:
  - id: 72
    name: Tajo
    tmco: 25
    beta_medio: 1.4
    distribution: tcev
    p0_coeffs: {2: 0.9, 100: 1.1}
`), 0o644))
	db := filepath.Join(dir, "regions.db")

	_, err := execute(t, "regions", "import", file, "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "regions", "list", "--db", db, "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Tajo")
	assert.Contains(t, out, "TCEV")
}

func TestSettingsFlagsOverrideConfig(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	var f analysisFlags
	bindAnalysisFlags(cmd, &f)
	require.NoError(t, cmd.Flags().Parse([]string{"--buffer-radius", "1000"}))

	radius, area, formula := 20000.0, 10.0, "california"
	s, err := settingsFromConfig(cmd, config.AnalysisConfig{
		BufferRadius:    &radius,
		RationalMaxArea: &area,
		TcFormula:       &formula,
	}, &f)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, s.BufferRadius)
	assert.Equal(t, 10.0, s.RationalMaxArea)
	assert.Equal(t, "california", s.TcFormula.Name())
}
