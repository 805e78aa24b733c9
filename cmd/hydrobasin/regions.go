package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/hydrobasin/internal/report"
	"github.com/verte-zerg/hydrobasin/internal/store"
	"github.com/verte-zerg/hydrobasin/internal/validation"
)

func newRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Manage the hydrological region catalogue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <regions.yaml>",
		Short: "Import or update regions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegionsImportCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List catalogued regions",
		Args:  cobra.NoArgs,
		RunE:  runRegionsListCmd,
	})
	return cmd
}

func runRegionsImportCmd(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open region file: %w", err)
	}
	doc, err := store.DecodeRegions(f)
	if cerr := f.Close(); cerr != nil {
		// Best-effort close on read-only file.
		_ = cerr
	}
	if err != nil {
		return err
	}
	v, err := validation.New()
	if err != nil {
		return err
	}
	if err := v.ValidateRegions(doc); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	n, err := st.ImportRegions(cmd.Context(), doc.Regions)
	if err != nil {
		return err
	}
	e.logger.Info("regions imported", "count", n, "file", args[0])
	return nil
}

func runRegionsListCmd(cmd *cobra.Command, _ []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	st, err := e.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	regions, err := st.ListRegions(cmd.Context())
	if err != nil {
		return err
	}
	list := make(report.RegionList, len(regions))
	for i, r := range regions {
		list[i] = report.Summarize(r)
	}
	return e.emit(cmd, list)
}
