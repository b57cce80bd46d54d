package mapserver

import (
	"net/http"
	"strconv"

	"allergen-map/internal/catalog"
	"allergen-map/internal/colormap"
	"allergen-map/internal/config"
)

// LegendTitle heads the legend of every dataset
const LegendTitle = "Tree coverage (%)"

// DefaultLegendSteps is the number of labelled legend stops
const DefaultLegendSteps = 8

// ClientConfig is everything the frontend needs before the first selection
type ClientConfig struct {
	Map      config.MapSettings `json:"map"`
	Opacity  float64            `json:"opacity"`
	Datasets []catalog.Entry    `json:"datasets"`
	Legend   colormap.Legend    `json:"legend"`
}

// BuildClientConfig assembles the frontend bootstrap payload
func BuildClientConfig(settings *config.Settings, cat *catalog.Catalog, mapping *colormap.Mapping) ClientConfig {
	return ClientConfig{
		Map:      settings.Map,
		Opacity:  settings.Overlay.Opacity,
		Datasets: cat.Entries(),
		Legend:   mapping.Legend(LegendTitle, DefaultLegendSteps),
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildClientConfig(s.deps.Settings, s.deps.Catalog, s.deps.Mapping))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.Entries())
}

// handleLegend serves the legend
// URL format: /api/legend?steps={n}
func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	steps := DefaultLegendSteps
	if v := r.URL.Query().Get("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > 64 {
			http.Error(w, "Invalid steps, expected an integer within 2..64", http.StatusBadRequest)
			return
		}
		steps = n
	}
	writeJSON(w, http.StatusOK, s.deps.Mapping.Legend(LegendTitle, steps))
}

// handleMetadata serves the metadata text verbatim
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.Metadata.Read(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}
