package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/hydrobasin/internal/basin"
	"github.com/verte-zerg/hydrobasin/internal/frequency"
	"github.com/verte-zerg/hydrobasin/internal/model"
	"github.com/verte-zerg/hydrobasin/internal/rational"
	"github.com/verte-zerg/hydrobasin/internal/report"
	"github.com/verte-zerg/hydrobasin/internal/validation"
)

var (
	fitKind    string
	fitPeriods []float64

	interpolatePeriods []float64

	rationalIn rational.Input
)

func newFitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit <samples.yaml>",
		Short: "Fit a GEV or TCEV curve to (T, value) samples",
		Args:  cobra.ExactArgs(1),
		RunE:  runFitCmd,
	}
	cmd.Flags().StringVar(&fitKind, "kind", "", "distribution: gev or tcev (default: kind in file, else gev)")
	cmd.Flags().Float64SliceVar(&fitPeriods, "t", nil, "return periods to evaluate (default: standard and extrapolation periods)")
	return cmd
}

func newInterpolateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpolate <samples.yaml>",
		Short: "Interpolate samples linearly in the Gumbel variate",
		Args:  cobra.ExactArgs(1),
		RunE:  runInterpolateCmd,
	}
	cmd.Flags().Float64SliceVar(&interpolatePeriods, "t", nil, "return periods to evaluate")
	_ = cmd.MarkFlagRequired("t")
	return cmd
}

func newRationalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rational",
		Short: "Estimate a design flow with the modified Rational Method",
		Args:  cobra.NoArgs,
		RunE:  runRationalCmd,
	}
	cmd.Flags().Float64Var(&rationalIn.AreaKm2, "area", 0, "catchment area (km²)")
	cmd.Flags().Float64Var(&rationalIn.TcHours, "tc", 0, "time of concentration (h)")
	cmd.Flags().Float64Var(&rationalIn.I1Id, "i1id", 0, "hourly to daily intensity ratio")
	cmd.Flags().Float64Var(&rationalIn.P0, "p0", 0, "runoff threshold (mm)")
	cmd.Flags().Float64Var(&rationalIn.RegionCorrector, "beta", 1, "regional P0 corrector")
	cmd.Flags().Float64Var(&rationalIn.PeriodCorrector, "period-corrector", 1, "return-period P0 corrector")
	cmd.Flags().Float64Var(&rationalIn.RainfallMm, "rainfall", 0, "daily design rainfall (mm)")
	for _, name := range []string{"area", "tc", "i1id", "p0", "rainfall"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func readSamples(path string) (validation.SampleFile, error) {
	v, err := validation.New()
	if err != nil {
		return validation.SampleFile{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return validation.SampleFile{}, fmt.Errorf("failed to open samples: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close on read-only file.
			_ = cerr
		}
	}()
	doc, err := v.DecodeSamples(f)
	if err != nil {
		return validation.SampleFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func runFitCmd(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	doc, err := readSamples(args[0])
	if err != nil {
		return err
	}
	kindName := doc.Kind
	if cmd.Flags().Changed("kind") || kindName == "" {
		kindName = fitKind
	}
	kind := frequency.KindGEV
	if kindName != "" {
		if kind, err = frequency.ParseKind(kindName); err != nil {
			return err
		}
	}

	res, err := frequency.Fit(kind, doc.Samples)
	if err != nil {
		return err
	}
	if res.Fallback {
		e.logger.Warn("local search did not converge, kept grid search result",
			"kind", string(kind), "sse", res.SSE)
	}
	periods := fitPeriods
	if len(periods) == 0 {
		d := basin.DefaultSettings()
		if s := e.file.Analysis.StandardPeriods; len(s) > 0 {
			d.StandardPeriods = s
		}
		if s := e.file.Analysis.ExtrapolationPeriods; len(s) > 0 {
			d.ExtrapolationPeriods = s
		}
		periods = append(append(periods, d.StandardPeriods...), d.ExtrapolationPeriods...)
	}
	return e.emit(cmd, report.NewFitDocument(res, doc.Samples, periods))
}

func runInterpolateCmd(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	doc, err := readSamples(args[0])
	if err != nil {
		return err
	}
	rows := make([]model.FrequencySample, 0, len(interpolatePeriods))
	for _, t := range interpolatePeriods {
		v, err := frequency.InterpolateGumbel(t, doc.Samples)
		if err != nil {
			return fmt.Errorf("T=%g: %w", t, err)
		}
		rows = append(rows, model.FrequencySample{T: t, Value: v})
	}
	return e.emit(cmd, report.SampleList(rows))
}

func runRationalCmd(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	res, err := rational.Estimate(rationalIn)
	if err != nil {
		return err
	}
	return e.emit(cmd, report.RationalDocument{Input: rationalIn, Result: res})
}
