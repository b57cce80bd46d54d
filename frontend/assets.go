// Package frontend embeds the built map page shared by the desktop window and the HTTP server.
package frontend

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var assets embed.FS

// Dist returns the page rooted at dist/, with index.html at the top
func Dist() fs.FS {
	sub, err := fs.Sub(assets, "dist")
	if err != nil {
		// dist is embedded at compile time
		panic(err)
	}
	return sub
}
