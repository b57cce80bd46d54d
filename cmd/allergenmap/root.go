package main

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"allergen-map/internal/bootstrap"
	"allergen-map/internal/config"
	"allergen-map/internal/logging"
)

// globals holds the persistent flags shared by every subcommand
type globals struct {
	configPath string
	dataDir    string
	verbose    bool
}

// newRootCmd builds a fresh command tree, so tests can run commands in isolation
func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "allergenmap",
		Short: "Allergenic tree species map",
		Long: `allergenmap shows the coverage of allergenic tree species as a colored
overlay on a web map.

It provides commands to:
  - Serve the interactive map and its HTTP API
  - List the available datasets
  - Render a dataset overlay to PNG
  - Export a dataset GeoTIFF together with its metadata as a ZIP archive`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "path to settings file (default ~/.allergen-map/settings/settings.json)")
	flags.StringVar(&g.dataDir, "data-dir", "", "directory holding the rasters and infoMap.txt; selects the fs storage driver")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "increase output verbosity")

	rootCmd.AddCommand(newServeCmd(g))
	rootCmd.AddCommand(newCatalogCmd(g))
	rootCmd.AddCommand(newRenderCmd(g))
	rootCmd.AddCommand(newExportCmd(g))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// settings loads the settings file and applies flag overrides
func (g *globals) settings() (*config.Settings, error) {
	s, err := config.LoadSettings(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.dataDir != "" {
		s.Storage.Driver = config.DriverFS
		s.Storage.DataDir = g.dataDir
	}
	if g.verbose {
		s.Verbose = true
	}
	return s, nil
}

func (g *globals) logger(cmd *cobra.Command, s *config.Settings) *log.Logger {
	return logging.New(cmd.ErrOrStderr(), s.Verbose)
}

// services loads settings and wires everything a command needs
func (g *globals) services(cmd *cobra.Command) (*bootstrap.Services, error) {
	s, err := g.settings()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cmd.Context(), s, g.logger(cmd, s))
}
