package naming

import (
	"fmt"
	"math"
	"strings"
)

// GenerateBBoxString creates a human-readable bbox string for log lines and headers
func GenerateBBoxString(south, west, north, east float64) string {
	return fmt.Sprintf("%.4f_%.4f_%.4f_%.4f", south, west, north, east)
}

// SanitizeCoordinate formats a coordinate for use in filenames (removes minus sign, uses N/S/E/W)
// Replaces decimal point with 'p' for Windows compatibility
func SanitizeCoordinate(coord float64, isLat bool) string {
	dir := "E"
	if isLat {
		dir = "N"
		if coord < 0 {
			dir = "S"
		}
	} else if coord < 0 {
		dir = "W"
	}
	coordStr := fmt.Sprintf("%.4f", math.Abs(coord))
	coordStr = strings.Replace(coordStr, ".", "p", 1)
	return coordStr + dir
}
