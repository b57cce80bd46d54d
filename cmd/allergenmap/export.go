package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"allergen-map/internal/common"
)

func newExportCmd(g *globals) *cobra.Command {
	var dataset, outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a dataset GeoTIFF with its metadata as a ZIP archive",
		Long: `Export writes <base>.zip holding <base>.tif and infoMap.txt into the
output directory. The raster is re-read from storage at full resolution.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := g.services(cmd)
			if err != nil {
				return err
			}
			key, ok := svc.Catalog.Resolve(dataset)
			if !ok {
				return fmt.Errorf("unknown dataset %q: %w", dataset, common.ErrNotFound)
			}

			bundle, err := svc.Bundler.Export(cmd.Context(), key)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(outDir, bundle.ArchiveName)
			if err := bundle.WriteFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v -> %s\n", bundle.Key, bundle.Names(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "dataset label or key (required)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
