package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	imagestore "github.com/Skryldev/image-store"
	"github.com/Skryldev/image-store/config"
	"github.com/Skryldev/image-store/core"
	"github.com/Skryldev/image-store/hooks"
)

type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	store   *imagestore.Store
	logger  core.Logger
	metrics *hooks.PrometheusMetrics
	reg     *prometheus.Registry
	stderr  io.Writer
}

// load reads the configuration; flags bound by bindFlags take precedence over
// the environment, which takes precedence over the config file.
func (a *app) load(flags *pflag.FlagSet) error {
	path := a.cfgFile
	if path == "" {
		if home := config.HomeConfig(); home != "" {
			if _, err := os.Stat(home); err == nil {
				path = home
			}
		}
	}
	v, err := config.NewViper(path)
	if err != nil {
		return err
	}
	bindFlags(v, flags)
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg
	a.logger = hooks.NewSlogLogger(hooks.NewSlog(a.stderr, cfg.LogLevel, cfg.LogFormat))
	return nil
}

// ensureStore builds the store on first use, so commands such as "config"
// run without touching the image root.
func (a *app) ensureStore() (*imagestore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	a.reg = prometheus.NewRegistry()
	a.metrics = hooks.MustNewPrometheusMetrics(a.reg)
	s, err := imagestore.New(a.cfg,
		imagestore.WithLogger(a.logger),
		imagestore.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store.close", "error", err.Error())
		}
	}
}

var flagKeys = map[string]string{
	"root":           "root_dir",
	"root-uri":       "root_uri",
	"backend":        "backend",
	"quality":        "default_quality",
	"default-width":  "default_width",
	"default-height": "default_height",
	"max-bytes":      "max_image_bytes",
	"catalog":        "catalog_path",
	"workers":        "worker_count",
	"prewarm":        "prewarm",
	"log-level":      "log_level",
	"log-format":     "log_format",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				panic(err)
			}
		}
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "imagestore",
		Short:         "Sharded image store with lazily cached variants",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}
	d := config.Default()
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	pf.String("root", d.RootDir, "filesystem root of the store")
	pf.String("root-uri", d.RootURI, "URI prefix of published locators")
	pf.String("backend", string(d.Backend), "resampler backend: imaging|vips")
	pf.Int("quality", d.DefaultQuality, "encode quality for lossy formats (1-100)")
	pf.Int("default-width", d.DefaultWidth, "width used when a request leaves it unset")
	pf.Int("default-height", d.DefaultHeight, "height used when a request leaves it unset")
	pf.Int64("max-bytes", d.MaxImageBytes, "reject ingested images larger than this (0 disables)")
	pf.String("catalog", d.CatalogPath, "path of the catalog database (empty disables)")
	pf.Int("workers", d.WorkerCount, "warm worker count (0 uses the CPU count)")
	pf.StringSlice("prewarm", d.Prewarm, "variants computed after ingest, e.g. 120x120:crop")
	pf.String("log-level", d.LogLevel, "log level: debug|info|warn|error")
	pf.String("log-format", d.LogFormat, "log format: text|json")

	root.AddCommand(
		newIngestCmd(a),
		newOriginalCmd(a),
		newVariantCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newStatCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return root
}

func main() {
	a := &app{stderr: os.Stderr}
	cmd := newRootCmd(a)
	err := cmd.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
