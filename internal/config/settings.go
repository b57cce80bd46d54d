// Package config loads and persists the application settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"allergen-map/internal/colormap"
	"allergen-map/internal/common"
)

// EnvPrefix of environment overrides, e.g. ALLERGENMAP_OVERLAY_MAXBYTES
const EnvPrefix = "ALLERGENMAP"

// Storage drivers
const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

// S3Settings locate the datasets in a bucket
type S3Settings struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Prefix    string `json:"prefix"`
	PathStyle bool   `json:"pathStyle"`
}

// StorageSettings select where rasters and the metadata text are read from
type StorageSettings struct {
	Driver       string     `json:"driver"` // "fs" or "s3"
	DataDir      string     `json:"dataDir"`
	MetadataPath string     `json:"metadataPath"`
	S3           S3Settings `json:"s3"`
}

// OverlaySettings bound the rendered overlay
type OverlaySettings struct {
	MaxBytes     int64   `json:"maxBytes"`
	MinDimension int     `json:"minDimension"`
	Opacity      float64 `json:"opacity"`
}

// MapSettings are the base map defaults handed to the frontend
type MapSettings struct {
	TileURL     string  `json:"tileUrl"`
	Attribution string  `json:"attribution"`
	CenterLat   float64 `json:"centerLat"`
	CenterLon   float64 `json:"centerLon"`
	Zoom        int     `json:"zoom"`
}

// ServerSettings configure the HTTP API of web mode
type ServerSettings struct {
	Addr              string `json:"addr"`
	SessionTTLMinutes int    `json:"sessionTTLMinutes"`
	MaxSessions       int    `json:"maxSessions"`
}

// ExportSettings configure archive building
type ExportSettings struct {
	TempDir string `json:"tempDir"` // empty uses the OS temp directory
}

// Settings is the complete configuration
type Settings struct {
	Storage StorageSettings `json:"storage"`
	Color   colormap.Domain `json:"color"`
	Overlay OverlaySettings `json:"overlay"`

	// Raster grids decoded at the same time across all sessions
	MaxResidentRasters int `json:"maxResidentRasters"`

	Map    MapSettings    `json:"map"`
	Server ServerSettings `json:"server"`
	Export ExportSettings `json:"export"`

	Verbose bool `json:"verbose"`

	// PostHog key for desktop usage analytics; empty disables reporting
	AnalyticsKey string `json:"analyticsKey"`
}

// DefaultSettings returns default settings
func DefaultSettings() *Settings {
	return &Settings{
		Storage: StorageSettings{
			Driver:       DriverFS,
			DataDir:      "data",
			MetadataPath: "infoMap.txt",
			S3:           S3Settings{Region: "us-east-1"},
		},
		Color: colormap.DefaultDomain(),
		Overlay: OverlaySettings{
			MaxBytes:     6_500_000,
			MinDimension: 1,
			Opacity:      0.8,
		},
		MaxResidentRasters: 2,
		Map: MapSettings{
			TileURL:     "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: "&copy; OpenStreetMap contributors",
			CenterLat:   50.0, // central Europe
			CenterLon:   10.0,
			Zoom:        4,
		},
		Server: ServerSettings{
			Addr:              "127.0.0.1:8080",
			SessionTTLMinutes: 30,
			MaxSessions:       256,
		},
	}
}

// GetSettingsPath returns the settings file path: ~/.allergen-map/settings/settings.json
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".allergen-map", "settings", "settings.json")
}

// LoadSettings reads the JSON settings file at path (GetSettingsPath when empty).
// A missing file yields defaults. ALLERGENMAP_* environment variables override both.
// The result is not validated.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = GetSettingsPath()
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := setDefaults(v, DefaultSettings()); err != nil {
		return nil, err
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings file: %v: %w", err, common.ErrConfig)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %v: %w", err, common.ErrConfig)
	}
	return &settings, nil
}

// setDefaults registers every leaf of defaults under its dotted key, which also makes
// each key visible to AutomaticEnv
func setDefaults(v *viper.Viper, defaults *Settings) error {
	data, err := json.Marshal(defaults)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return err
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
	return nil
}

// SaveSettings writes settings as indented JSON to path (GetSettingsPath when empty)
func SaveSettings(settings *Settings, path string) error {
	if path == "" {
		path = GetSettingsPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Validate reports the first invalid value, wrapping common.ErrConfig
func (s *Settings) Validate() error {
	if _, err := colormap.New(s.Color); err != nil {
		return err
	}

	switch s.Storage.Driver {
	case DriverFS:
		if s.Storage.DataDir == "" {
			return configError("storage.dataDir is required for the fs driver")
		}
	case DriverS3:
		if s.Storage.S3.Bucket == "" {
			return configError("storage.s3.bucket is required for the s3 driver")
		}
	default:
		return configError("unknown storage driver %q (must be fs or s3)", s.Storage.Driver)
	}
	if s.Storage.MetadataPath == "" {
		return configError("storage.metadataPath is required")
	}

	if s.Overlay.MaxBytes < 4 {
		return configError("overlay.maxBytes must hold at least one pixel, got %d", s.Overlay.MaxBytes)
	}
	if s.Overlay.MinDimension < 1 {
		return configError("overlay.minDimension must be positive, got %d", s.Overlay.MinDimension)
	}
	if s.Overlay.Opacity < 0 || s.Overlay.Opacity > 1 {
		return configError("overlay.opacity must be within 0..1, got %g", s.Overlay.Opacity)
	}
	if s.MaxResidentRasters < 1 {
		return configError("maxResidentRasters must be positive, got %d", s.MaxResidentRasters)
	}

	if s.Map.Zoom < 0 || s.Map.Zoom > 22 {
		return configError("map.zoom must be within 0..22, got %d", s.Map.Zoom)
	}
	if s.Map.CenterLat < -90 || s.Map.CenterLat > 90 || s.Map.CenterLon < -180 || s.Map.CenterLon > 180 {
		return configError("map center %g,%g is out of range", s.Map.CenterLat, s.Map.CenterLon)
	}

	if s.Server.SessionTTLMinutes < 1 {
		return configError("server.sessionTTLMinutes must be positive")
	}
	if s.Server.MaxSessions < 1 {
		return configError("server.maxSessions must be positive")
	}
	return nil
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), common.ErrConfig)
}
