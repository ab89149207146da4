package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. IMAGESTORE_ROOT_DIR.
const EnvPrefix = "IMAGESTORE"

// NewViper returns a viper instance seeded with Default() and wired to the
// environment. When path is non-empty the file is read; a missing file at an
// explicit path is an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Dump writes c as YAML.
func Dump(w io.Writer, c Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("root_dir", d.RootDir)
	v.SetDefault("root_uri", d.RootURI)
	v.SetDefault("dir_perm", d.DirPerm)
	v.SetDefault("file_perm", d.FilePerm)
	v.SetDefault("default_width", d.DefaultWidth)
	v.SetDefault("default_height", d.DefaultHeight)
	v.SetDefault("backend", string(d.Backend))
	v.SetDefault("default_quality", d.DefaultQuality)
	v.SetDefault("max_image_bytes", d.MaxImageBytes)
	v.SetDefault("vips.max_cache_size", d.Vips.MaxCacheSize)
	v.SetDefault("vips.max_workers", d.Vips.MaxWorkers)
	v.SetDefault("vips.report_leaks", d.Vips.ReportLeaks)
	v.SetDefault("worker_count", d.WorkerCount)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("job_timeout", d.JobTimeout)
	v.SetDefault("prewarm", d.Prewarm)
	v.SetDefault("hit_cache_size", d.HitCacheSize)
	v.SetDefault("catalog_path", d.CatalogPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// HomeConfig returns the conventional per-user config file location, or ""
// when the home directory is unknown.
func HomeConfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "imagestore.yaml")
}
