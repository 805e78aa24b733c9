package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/hydrobasin/internal/basin"
	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/logging"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/report"
)

// analysisFlags are shared by analyze and delineate.
type analysisFlags struct {
	bufferRadius    float64
	rationalMaxArea float64
	tcFormula       string
	nativeCRS       string
	displayCRS      string
	elevation       string
	flowDirection   string
	layers          map[string]string
	profile         bool
	geometry        bool
}

var (
	delineateFlags analysisFlags
	analyzeFlags   analysisFlags

	analyzePeriod float64
	analyzeRegion int64
)

func bindAnalysisFlags(cmd *cobra.Command, f *analysisFlags) {
	d := basin.DefaultSettings()
	cmd.Flags().Float64Var(&f.bufferRadius, "buffer-radius", d.BufferRadius, "half-width of the raster window (m)")
	cmd.Flags().Float64Var(&f.rationalMaxArea, "rational-max-area", d.RationalMaxArea, "largest area (km²) handled by the Rational Method")
	cmd.Flags().StringVar(&f.tcFormula, "tc-formula", "temez", "time of concentration: temez, california or an expression over L, H, S")
	cmd.Flags().StringVar(&f.nativeCRS, "native-crs", "", "PROJ string of the raster CRS")
	cmd.Flags().StringVar(&f.displayCRS, "display-crs", "", "PROJ string of the output geometry CRS")
	cmd.Flags().StringVar(&f.elevation, "elevation", "", "elevation raster (ESRI ASCII grid)")
	cmd.Flags().StringVar(&f.flowDirection, "flow-direction", "", "D8 flow-direction raster (ESRI ASCII grid)")
	cmd.Flags().StringToStringVar(&f.layers, "layer", nil, "auxiliary layer as name=path, repeatable")
	cmd.Flags().BoolVar(&f.profile, "profile", false, "include the flow path elevation profile")
	cmd.Flags().BoolVar(&f.geometry, "geometry", false, "include GeoJSON geometries")
}

func newDelineateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delineate <x> <y>",
		Short: "Delineate the catchment draining to an outlet",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelineateCmd,
	}
	bindAnalysisFlags(cmd, &delineateFlags)
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <x> <y>",
		Short: "Delineate an outlet and estimate design flows",
		Args:  cobra.ExactArgs(2),
		RunE:  runAnalyzeCmd,
	}
	bindAnalysisFlags(cmd, &analyzeFlags)
	cmd.Flags().Float64Var(&analyzePeriod, "t", 0, "return period of interest (years)")
	cmd.Flags().Int64Var(&analyzeRegion, "region", 0, "region id (default: located by outlet)")
	return cmd
}

func parseOutlet(args []string) (model.Coord, error) {
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return model.Coord{}, fmt.Errorf("invalid x %q: %w", args[0], frequency.ErrInvalidInput)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return model.Coord{}, fmt.Errorf("invalid y %q: %w", args[1], frequency.ErrInvalidInput)
	}
	return model.Coord{X: x, Y: y}, nil
}

func newAnalyzer(cmd *cobra.Command, e *env, f *analysisFlags) (*basin.Analyzer, error) {
	settings, err := settingsFromConfig(cmd, e.file.Analysis, f)
	if err != nil {
		return nil, err
	}
	reader, err := readerFromConfig(cmd, e.file.Layers, f)
	if err != nil {
		return nil, err
	}
	return &basin.Analyzer{Windows: reader, Settings: settings, Logger: e.logger}, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

func runDelineateCmd(cmd *cobra.Command, args []string) error {
	outlet, err := parseOutlet(args)
	if err != nil {
		return err
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	a, err := newAnalyzer(cmd, e, &delineateFlags)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()
	ctx = logging.NewRun(ctx)

	b, err := a.Delineate(ctx, outlet)
	if err != nil {
		return err
	}
	doc, err := report.FromBasin(b, report.Options{Profile: delineateFlags.profile, Geometry: delineateFlags.geometry})
	if err != nil {
		return err
	}
	return e.emit(cmd, doc)
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	outlet, err := parseOutlet(args)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("t") && analyzePeriod <= 1 {
		return fmt.Errorf("--t must be > 1: %w", frequency.ErrInvalidInput)
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	a, err := newAnalyzer(cmd, e, &analyzeFlags)
	if err != nil {
		return err
	}
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	a.Regions = st

	ctx, stop := signalContext(cmd)
	defer stop()

	rep, err := a.Analyze(ctx, basin.Request{Outlet: outlet, ReturnPeriod: analyzePeriod, RegionID: analyzeRegion})
	if err != nil {
		return err
	}
	doc, err := report.FromReport(rep, report.Options{Profile: analyzeFlags.profile, Geometry: analyzeFlags.geometry})
	if err != nil {
		return err
	}
	return e.emit(cmd, doc)
}
