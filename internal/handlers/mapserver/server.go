// Package mapserver serves the map view API, the export download and the static frontend.
package mapserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"allergen-map/internal/catalog"
	"allergen-map/internal/colormap"
	"allergen-map/internal/config"
	"allergen-map/internal/export"
	"allergen-map/internal/logging"
	"allergen-map/internal/session"
	"allergen-map/internal/storage"
)

// Deps are the shared services behind the routes
type Deps struct {
	Settings *config.Settings
	Catalog  *catalog.Catalog
	Mapping  *colormap.Mapping
	Metadata storage.Resource
	Bundler  *export.Bundler
	Sessions *session.Registry

	// Gatherer backs /metrics when set
	Gatherer prometheus.Gatherer

	// Assets is the static frontend served at / when set
	Assets fs.FS

	Logger *log.Logger
}

// Server manages the map HTTP server
type Server struct {
	deps   Deps
	router chi.Router
	logger *log.Logger

	httpServer *http.Server
	url        string
}

// NewServer creates a server and its routes
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: logging.Component(deps.Logger, "mapserver"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.requestLogger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/config", s.handleConfig)
		api.Get("/catalog", s.handleCatalog)
		api.Get("/legend", s.handleLegend)
		api.Get("/metadata", s.handleMetadata)

		api.Post("/sessions", s.handleCreateSession)
		api.Route("/sessions/{id}", func(sr chi.Router) {
			sr.Get("/", s.handleGetSession)
			sr.Put("/selection", s.handleSelect)
			sr.Get("/overlay.png", s.handleOverlay)
			sr.Get("/export", s.handleExport)
		})
	})

	if s.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.deps.Assets != nil {
		r.Handle("/*", http.FileServer(http.FS(s.deps.Assets)))
	}
	return r
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// URL returns the base URL once started
func (s *Server) URL() string {
	return s.url
}

// corsMiddleware adds CORS headers to allow requests from the Wails frontend,
// which uses the wails://wails origin on macOS/Linux
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Overlay-Bounds")

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Start listens on addr and serves in the background. Use "127.0.0.1:0" for a random local port.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start map server: %w", err)
	}

	s.url = "http://" + listener.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("map server started", "url", s.url)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("map server stopped", "err", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
