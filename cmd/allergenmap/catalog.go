package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"allergen-map/internal/catalog"
)

func newCatalogCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the selectable datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// the catalog is static; no storage is opened
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tSOURCE\tARCHIVE")
			for _, e := range catalog.Default().Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Label, e.SourcePath, e.ArchiveFileName())
			}
			return tw.Flush()
		},
	}
}
