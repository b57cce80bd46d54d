package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"allergen-map/internal/common"
	"allergen-map/internal/utils/naming"
)

func newRenderCmd(g *globals) *cobra.Command {
	var dataset, out string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a dataset overlay to PNG",
		Long: `Render the colored overlay of one dataset, downsampled to the configured
size limit, and write it as PNG.

The dataset is a display label ("Alnus spp.") or a selection key ("Alnus").
Without --out the file is named after the dataset and its bounds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := g.services(cmd)
			if err != nil {
				return err
			}

			ctrl := svc.NewController()
			defer ctrl.Close()
			v, err := ctrl.Select(cmd.Context(), dataset)
			if err != nil {
				return err
			}
			if !v.HasOverlay() {
				return fmt.Errorf("nothing to render for %q: %w", dataset, common.ErrNoSelection)
			}

			b := v.Overlay.Bounds
			if out == "" {
				out = naming.OverlayFileName(v.Key, b.South, b.West, b.North, b.East)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := v.Overlay.EncodePNG(f); err != nil {
				f.Close()
				os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d (factor %d, %d bytes RGBA) bbox %s -> %s\n",
				v.Label, v.Image.Width, v.Image.Height, v.Image.Factor, v.Image.ByteSize,
				naming.GenerateBBoxString(b.South, b.West, b.North, b.East), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "dataset label or key (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG path")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
