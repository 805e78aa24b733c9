// Package main provides the CLI entrypoint for hydrobasin.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/hydrobasin/internal/basin"
	"github.com/verte-zerg/hydrobasin/internal/catchment"
	"github.com/verte-zerg/hydrobasin/internal/config"
	"github.com/verte-zerg/hydrobasin/internal/contour"
	"github.com/verte-zerg/hydrobasin/internal/flowpath"
	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/logging"
	"github.com/verte-zerg/hydrobasin/internal/raster"
	"github.com/verte-zerg/hydrobasin/internal/rational"
	"github.com/verte-zerg/hydrobasin/internal/report"
	"github.com/verte-zerg/hydrobasin/internal/store"
	"github.com/verte-zerg/hydrobasin/internal/validation"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Exit codes.
const (
	exitFailure = 1
	exitInput   = 2
	exitRegion  = 3
	exitFit     = 4
)

var (
	configPath string
	outFormat  string
	outPath    string
	dbPath     string
	logLevel   string
	logFormat  string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		code, msg := describeError(err)
		logErrf("hydrobasin: %s\n", msg)
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hydrobasin",
		Short:         "Catchment delineation and design flow estimation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/hydrobasin/config.toml)")
	flags.StringVarP(&outFormat, "format", "f", "", "output format: table, json or yaml (default: table on terminals)")
	flags.StringVarP(&outPath, "output", "o", "", "write the result to a file instead of stdout")
	flags.StringVar(&dbPath, "db", "", "region catalogue path")
	flags.StringVar(&logLevel, "log-level", defaultLogLevel, "log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", defaultLogFormat, "log format: text or json")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newDelineateCmd())
	rootCmd.AddCommand(newFitCmd())
	rootCmd.AddCommand(newInterpolateCmd())
	rootCmd.AddCommand(newRationalCmd())
	rootCmd.AddCommand(newRegionsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// env is the state shared by every command once flags and config are merged.
type env struct {
	file   config.FileConfig
	logger *slog.Logger
	format report.Format
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	fileCfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Log.Format)
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Store.Path)

	logger, err := logging.New(os.Stderr, logging.Options{Level: logLevel, Format: logFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)

	stdout := os.Stdout
	if outPath != "" {
		stdout = nil
	}
	format, err := report.ParseFormat(outFormat, stdout)
	if err != nil {
		return nil, err
	}
	return &env{file: fileCfg, logger: logger, format: format}, nil
}

func (e *env) openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

// emit renders v to --output or to the command's stdout.
func (e *env) emit(cmd *cobra.Command, v any) error {
	if outPath == "" {
		return report.Write(cmd.OutOrStdout(), e.format, v)
	}
	return writeFileAtomic(outPath, func(w io.Writer) error {
		return report.Write(w, e.format, v)
	})
}

func writeFileAtomic(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".hydrobasin-*")
	if err != nil {
		return fmt.Errorf("failed to create temp output: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := write(tmpFile); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	d := basin.DefaultSettings()
	return fmt.Sprintf(`# hydrobasin configuration
# Uncomment a value to enable it. CLI flags override config values.

[analysis]
# buffer-radius = %.0f               # Half-width of the raster window (m)
# rational-max-area = %.0f              # Largest area (km²) handled by the Rational Method
# standard-periods = %s
# extrapolation-periods = %s
# tc-formula = "temez"                # temez, california or an expression over L, H, S
# native-crs = "+proj=utm +zone=30 +ellps=GRS80 +units=m +no_defs"
# display-crs = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

[layers]
# elevation = "/data/mdt.asc"
# flow-direction = "/data/dir.asc"

[layers.aux]
# p0 = "/data/p0.asc"
# i1id = "/data/i1id.asc"
# rain_100 = "/data/rain_100.asc"
# flow_100 = "/data/flow_100.asc"

[store]
# path = %q

[log]
# level = %q
# format = %q
`,
		d.BufferRadius,
		d.RationalMaxArea,
		tomlList(d.StandardPeriods),
		tomlList(d.ExtrapolationPeriods),
		config.DefaultDBPath(),
		defaultLogLevel,
		defaultLogFormat,
	)
}

func tomlList(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// settingsFromConfig merges the [analysis] section into the defaults.
// Flags given on the command line win.
func settingsFromConfig(cmd *cobra.Command, fileCfg config.AnalysisConfig, flags *analysisFlags) (basin.Settings, error) {
	s := basin.DefaultSettings()
	applyFloatConfig(cmd, "buffer-radius", &flags.bufferRadius, fileCfg.BufferRadius)
	applyFloatConfig(cmd, "rational-max-area", &flags.rationalMaxArea, fileCfg.RationalMaxArea)
	applyStringConfig(cmd, "tc-formula", &flags.tcFormula, fileCfg.TcFormula)
	applyStringConfig(cmd, "native-crs", &flags.nativeCRS, fileCfg.NativeCRS)
	applyStringConfig(cmd, "display-crs", &flags.displayCRS, fileCfg.DisplayCRS)

	if flags.bufferRadius <= 0 {
		return basin.Settings{}, fmt.Errorf("--buffer-radius must be > 0: %w", frequency.ErrInvalidInput)
	}
	if flags.rationalMaxArea < 0 {
		return basin.Settings{}, fmt.Errorf("--rational-max-area must be >= 0: %w", frequency.ErrInvalidInput)
	}
	s.BufferRadius = flags.bufferRadius
	s.RationalMaxArea = flags.rationalMaxArea
	s.NativeCRS = flags.nativeCRS
	s.DisplayCRS = flags.displayCRS
	if len(fileCfg.StandardPeriods) > 0 {
		s.StandardPeriods = fileCfg.StandardPeriods
	}
	if len(fileCfg.ExtrapolationPeriods) > 0 {
		s.ExtrapolationPeriods = fileCfg.ExtrapolationPeriods
	}
	tc, err := flowpath.ParseTcFormula(flags.tcFormula)
	if err != nil {
		return basin.Settings{}, fmt.Errorf("invalid tc formula: %w", err)
	}
	s.TcFormula = tc
	if s.DisplayCRS != "" && s.NativeCRS == "" {
		return basin.Settings{}, fmt.Errorf("--display-crs needs --native-crs: %w", frequency.ErrInvalidInput)
	}
	return s, nil
}

// readerFromConfig builds the raster reader from [layers], with flags
// taking precedence per layer.
func readerFromConfig(cmd *cobra.Command, fileCfg config.LayersConfig, flags *analysisFlags) (raster.FileReader, error) {
	applyStringConfig(cmd, "elevation", &flags.elevation, fileCfg.Elevation)
	applyStringConfig(cmd, "flow-direction", &flags.flowDirection, fileCfg.FlowDirection)
	if flags.elevation == "" {
		return raster.FileReader{}, errors.New("no elevation raster: set --elevation or [layers] elevation")
	}
	if flags.flowDirection == "" {
		return raster.FileReader{}, errors.New("no flow-direction raster: set --flow-direction or [layers] flow-direction")
	}
	layers := make(map[string]string, len(fileCfg.Aux)+len(flags.layers))
	for name, path := range fileCfg.Aux {
		layers[name] = path
	}
	for name, path := range flags.layers {
		layers[name] = path
	}
	return raster.FileReader{
		ElevationPath: flags.elevation,
		FlowDirPath:   flags.flowDirection,
		LayerPaths:    layers,
	}, nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

// describeError maps domain sentinels to an exit code and a short message.
func describeError(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrRegionNotFound):
		return exitRegion, err.Error() + " (import regions with: hydrobasin regions import <file.yaml>)"
	case errors.Is(err, catchment.ErrOutOfBounds),
		errors.Is(err, catchment.ErrNoDataAtOutlet),
		errors.Is(err, raster.ErrOutsideRaster):
		return exitInput, "outlet cannot be analysed: " + err.Error()
	case errors.Is(err, frequency.ErrInvalidInput),
		errors.Is(err, rational.ErrInvalidInput),
		errors.Is(err, validation.ErrInvalidDocument):
		return exitInput, err.Error()
	case errors.Is(err, frequency.ErrInsufficientSamples),
		errors.Is(err, frequency.ErrFitFailure):
		return exitFit, err.Error()
	case errors.Is(err, catchment.ErrEmptyCatchment),
		errors.Is(err, contour.ErrEmptyGeometry),
		errors.Is(err, flowpath.ErrNotInCatchment):
		return exitFailure, "delineation failed: " + err.Error()
	}
	return exitFailure, err.Error()
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
