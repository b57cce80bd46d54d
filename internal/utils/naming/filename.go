package naming

import (
	"fmt"
	"strings"
	"unicode"
)

// MetadataFileName is the fixed archive entry name of the metadata text resource
const MetadataFileName = "infoMap.txt"

// FirstToken returns the first whitespace-delimited token of a display label.
// "Alnus spp." yields "Alnus"; taxonomic suffixes like "spp." never reach a filename.
func FirstToken(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// SanitizeToken keeps letters, digits, '-' and '_' so the token is safe as a file name
func SanitizeToken(token string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, token)
}

// BaseNameFromLabel derives the export base name of a catalog label
func BaseNameFromLabel(label string) string {
	return SanitizeToken(FirstToken(label))
}

// RasterFileName is the archive entry name of the exported raster
// Format: {base}.tif
func RasterFileName(base string) string {
	return base + ".tif"
}

// ArchiveFileName is the outer file name of an export bundle
// Format: {base}.zip
func ArchiveFileName(base string) string {
	return base + ".zip"
}

// OverlayFileName creates a PNG file name for a rendered overlay
// Format: {base}_overlay_{bbox}.png
func OverlayFileName(base string, south, west, north, east float64) string {
	bboxStr := fmt.Sprintf("%s-%s_%s-%s",
		SanitizeCoordinate(south, true),
		SanitizeCoordinate(north, true),
		SanitizeCoordinate(west, false),
		SanitizeCoordinate(east, false))

	return fmt.Sprintf("%s_overlay_%s.png", base, bboxStr)
}
