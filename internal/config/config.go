package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"caseforge/internal/compositor"
)

// Config holds all configurable paths and render settings.
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`
	LogFile string `json:"log_file"`

	// Server settings
	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`

	// Render settings
	ExportSize    int    `json:"export_size"`
	ExportFormat  string `json:"export_format"`
	JPEGQuality   int    `json:"jpeg_quality"`
	PreviewWidth  int    `json:"preview_width"`
	PreviewHeight int    `json:"preview_height"`
	Workers       int    `json:"workers"`
}

// Load reads a JSON config file and returns Config.
// Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Resolve fills in any empty fields with defaults.
// CLI flags take priority when non-zero/non-empty.
func (c *Config) Resolve(flags Flags) {
	// CLI flags override config file
	if flags.DataDir != "" {
		c.DataDir = flags.DataDir
	}
	if flags.ListenAddr != "" {
		c.ListenAddr = flags.ListenAddr
	}
	if flags.Size > 0 {
		c.ExportSize = flags.Size
	}
	if flags.Format != "" {
		c.ExportFormat = flags.Format
	}
	if flags.Quality > 0 {
		c.JPEGQuality = flags.Quality
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}

	// Auto-detect data dir if still empty
	if c.DataDir == "" {
		c.DataDir = detectDataDir()
	}

	// Defaults for server and render settings
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ExportSize <= 0 {
		c.ExportSize = 1200
	}
	if c.ExportFormat == "" {
		c.ExportFormat = "png"
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = compositor.DefaultJPEGQuality
	}
	if c.PreviewWidth <= 0 {
		c.PreviewWidth = compositor.DefaultPreviewWidth
	}
	if c.PreviewHeight <= 0 {
		c.PreviewHeight = compositor.DefaultPreviewHeight
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	DataDir    string
	ListenAddr string
	Size       int
	Format     string
	Quality    int
	Workers    int
	LogLevel   string
}

func detectDataDir() string {
	// Try relative to executable
	exe, _ := os.Executable()
	if exe != "" {
		dir := filepath.Dir(exe)
		for _, base := range []string{dir, filepath.Dir(dir)} {
			if _, err := os.Stat(filepath.Join(base, "data", "mockups")); err == nil {
				return filepath.Join(base, "data")
			}
		}
	}

	// Try current working directory
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, "data", "mockups")); err == nil {
		return filepath.Join(cwd, "data")
	}

	return "data"
}
