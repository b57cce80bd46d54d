package main

import (
	"fmt"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ExportDataset bundles the selected dataset with the metadata text and asks where
// to save the archive. It returns the saved path, or "" when the dialog was cancelled.
func (a *App) ExportDataset() (string, error) {
	key := a.session.Controller.Selection()
	bundle, err := a.services.Bundler.Export(a.ctx, key)
	if err != nil {
		a.TrackEvent("export_failed", map[string]interface{}{"dataset": key, "error": err.Error()})
		return "", err
	}

	path, err := wailsRuntime.SaveFileDialog(a.ctx, wailsRuntime.SaveDialogOptions{
		Title:           "Save Export",
		DefaultFilename: bundle.ArchiveName,
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: "ZIP archive (*.zip)", Pattern: "*.zip"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("save dialog: %w", err)
	}
	if path == "" {
		return "", nil
	}

	if err := bundle.WriteFile(path); err != nil {
		return "", err
	}
	a.emitLog(fmt.Sprintf("Export saved to %s", path))
	a.TrackEvent("export_completed", map[string]interface{}{
		"dataset": bundle.Key,
		"entries": bundle.Names(),
	})
	return path, nil
}
