package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend selects the Resampler implementation.
type Backend string

const (
	BackendImaging Backend = "imaging"
	BackendVips    Backend = "vips"
)

// Config is the top-level configuration struct. All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Layout.
	RootDir  string `mapstructure:"root_dir" yaml:"root_dir"`
	RootURI  string `mapstructure:"root_uri" yaml:"root_uri"`
	DirPerm  uint32 `mapstructure:"dir_perm" yaml:"dir_perm"`   // default 0770
	FilePerm uint32 `mapstructure:"file_perm" yaml:"file_perm"` // default 0640

	// Geometry applied to unset request dimensions.
	DefaultWidth  int `mapstructure:"default_width" yaml:"default_width"`
	DefaultHeight int `mapstructure:"default_height" yaml:"default_height"`

	// Resampler.
	Backend        Backend    `mapstructure:"backend" yaml:"backend"`
	DefaultQuality int        `mapstructure:"default_quality" yaml:"default_quality"` // 1-100; default 85
	MaxImageBytes  int64      `mapstructure:"max_image_bytes" yaml:"max_image_bytes"` // 0 = no limit
	Vips           VipsConfig `mapstructure:"vips" yaml:"vips"`

	// Warm worker pool controls.
	WorkerCount int           `mapstructure:"worker_count" yaml:"worker_count"` // default: runtime.NumCPU()
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`     // max queued jobs before backpressure; default 256
	JobTimeout  time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
	// Variants precomputed after each ingest, as "WxH[:opt,opt]" strings.
	Prewarm []string `mapstructure:"prewarm" yaml:"prewarm"`

	// In-process LRU of variant locators; 0 disables it. A remembered locator
	// is returned only after the file is confirmed on disk.
	HitCacheSize int `mapstructure:"hit_cache_size" yaml:"hit_cache_size"`

	// Catalog database path; empty disables the catalog.
	CatalogPath string `mapstructure:"catalog_path" yaml:"catalog_path"`

	// Logging.
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`   // "debug", "info", "warn", "error"
	LogFormat string `mapstructure:"log_format" yaml:"log_format"` // "text" or "json"
}

// VipsConfig configures the libvips backend.
type VipsConfig struct {
	MaxCacheSize int  `mapstructure:"max_cache_size" yaml:"max_cache_size"`
	MaxWorkers   int  `mapstructure:"max_workers" yaml:"max_workers"`
	ReportLeaks  bool `mapstructure:"report_leaks" yaml:"report_leaks"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		RootDir:        filepath.Join(string(os.PathSeparator), "upload", "images"),
		RootURI:        "/upload/images",
		DirPerm:        0o770,
		FilePerm:       0o640,
		DefaultWidth:   250,
		DefaultHeight:  250,
		Backend:        BackendImaging,
		DefaultQuality: 85,
		WorkerCount:    0, // resolved at runtime to NumCPU
		QueueSize:      256,
		JobTimeout:     30 * time.Second,
		HitCacheSize:   4096,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if strings.TrimSpace(c.RootDir) == "" {
		return errors.New("config: RootDir is required")
	}
	if c.DefaultWidth <= 0 || c.DefaultHeight <= 0 {
		return errors.New("config: DefaultWidth and DefaultHeight must be positive")
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	switch c.Backend {
	case BackendImaging, BackendVips:
	default:
		return errors.New("config: Backend must be \"imaging\" or \"vips\"")
	}
	if c.MaxImageBytes < 0 {
		return errors.New("config: MaxImageBytes must not be negative")
	}
	if c.HitCacheSize < 0 {
		return errors.New("config: HitCacheSize must not be negative")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return errors.New("config: LogFormat must be \"text\" or \"json\"")
	}
	return nil
}
