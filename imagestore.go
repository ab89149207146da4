// Package imagestore is a sharded image repository: originals are stored
// under opaque identifiers and resized variants are computed on first request
// and cached next to them.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Skryldev/image-store/adapters/catalog"
	"github.com/Skryldev/image-store/adapters/goimage"
	"github.com/Skryldev/image-store/adapters/idgen"
	"github.com/Skryldev/image-store/adapters/storage"
	"github.com/Skryldev/image-store/adapters/vips"
	"github.com/Skryldev/image-store/config"
	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/hooks"
	"github.com/Skryldev/image-store/pathscheme"
)

// Re-export geometry helpers for convenience.
var (
	Auto = core.Auto
	Px   = core.Px
	On   = core.On
	With = core.With
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Store is the primary entry point. Identifiers cross this API in their
// public "body|ext" form.
type Store struct {
	inner   *core.Store
	scheme  *pathscheme.Scheme
	storage *storage.Local
	catalog *catalog.Bolt
	vips    *vips.Backend
}

type options struct {
	fs        afero.Fs
	logger    core.Logger
	metrics   core.MetricsCollector
	hooks     []core.Hook
	ids       core.IDGenerator
	resampler core.Resampler
}

// Option customises New.
type Option func(*options)

// WithFs stores images on fs instead of the host filesystem.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithLogger attaches a structured logger to the store and its pipeline.
func WithLogger(l core.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics attaches a metrics collector to the store and its pipeline.
func WithMetrics(m core.MetricsCollector) Option { return func(o *options) { o.metrics = m } }

// WithHooks registers extra observers of pure-Go pipeline steps.
func WithHooks(h ...core.Hook) Option { return func(o *options) { o.hooks = append(o.hooks, h...) } }

// WithIDGenerator replaces the UUID identifier generator.
func WithIDGenerator(g core.IDGenerator) Option { return func(o *options) { o.ids = g } }

// WithResampler replaces the backend selected by cfg.Backend.
func WithResampler(r core.Resampler) Option { return func(o *options) { o.resampler = r } }

// New creates a fully wired Store. The worker pool is not started; call
// Start to enable background warming.
func New(cfg config.Config, opts ...Option) (*Store, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "imagestore.new", err)
	}
	o := options{fs: afero.NewOsFs(), ids: idgen.NewUUID()}
	for _, opt := range opts {
		opt(&o)
	}

	def := core.Geometry{Width: core.Px(cfg.DefaultWidth), Height: core.Px(cfg.DefaultHeight)}
	prewarm := make([]core.Geometry, 0, len(cfg.Prewarm))
	for _, spec := range cfg.Prewarm {
		g, err := core.ParseSpec(spec)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryConfig, "imagestore.prewarm", err)
		}
		prewarm = append(prewarm, g)
	}

	s := &Store{
		scheme:  pathscheme.New(cfg.RootDir, cfg.RootURI, def),
		storage: storage.NewLocal(o.fs, os.FileMode(cfg.DirPerm), os.FileMode(cfg.FilePerm)),
	}

	resampler := o.resampler
	if resampler == nil {
		stepHooks := o.hooks
		if o.logger != nil {
			stepHooks = append(stepHooks, hooks.NewLoggingHook(o.logger))
		}
		if o.metrics != nil {
			stepHooks = append(stepHooks, hooks.NewMetricsHook(o.metrics))
		}
		switch cfg.Backend {
		case config.BackendVips:
			s.vips = vips.NewBackend(vips.BackendConfig{
				DefaultQuality: cfg.DefaultQuality,
				MaxCacheSize:   cfg.Vips.MaxCacheSize,
				MaxWorkers:     cfg.Vips.MaxWorkers,
				ReportLeaks:    cfg.Vips.ReportLeaks,
			})
			resampler = s.vips
		default:
			resampler = goimage.New(cfg.DefaultQuality, stepHooks...)
		}
	}

	inner, err := core.NewStore(cfg, core.Deps{
		Layout:    s.scheme,
		Storage:   s.storage,
		Resampler: resampler,
		IDs:       o.ids,
	})
	if err != nil {
		return nil, err
	}
	inner.SetLogger(o.logger)
	inner.SetMetrics(o.metrics)
	inner.SetPrewarm(prewarm...)

	if cfg.CatalogPath != "" {
		cat, err := catalog.OpenBolt(catalog.BoltConfig{Path: cfg.CatalogPath})
		if err != nil {
			return nil, err
		}
		s.catalog = cat
		inner.SetCatalog(cat)
	}
	s.inner = inner
	return s, nil
}

// Start starts the background warm worker pool.
func (s *Store) Start() { s.inner.Start() }

// Close stops the worker pool and releases the catalog. When the libvips
// backend is in use it is shut down too, so Close belongs at process exit.
func (s *Store) Close() error {
	s.inner.Stop()
	var err error
	if s.catalog != nil {
		err = s.catalog.Close()
	}
	if s.vips != nil {
		s.vips.Shutdown()
	}
	return err
}

// Ingest stores the image file at sourcePath and returns its identifier.
// The source is removed afterwards unless retainSource is set.
func (s *Store) Ingest(ctx context.Context, sourcePath string, retainSource bool) (string, error) {
	id, err := s.inner.Ingest(ctx, sourcePath, retainSource)
	if id.Body == "" {
		return "", err
	}
	return id.String(), err
}

// IngestReader stores the image read from r. ext may be empty to sniff the
// type from the content.
func (s *Store) IngestReader(ctx context.Context, r io.Reader, ext string) (string, error) {
	id, err := s.inner.IngestReader(ctx, r, ext)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Original returns the locator of the original image.
func (s *Store) Original(ctx context.Context, id string) (string, error) {
	parsed, err := s.inner.ParseIdentifier(id)
	if err != nil {
		return "", err
	}
	return s.inner.FetchOriginal(ctx, parsed)
}

// Variant returns the locator of a variant, computing it on first request.
// width and height accept a positive integer, "auto", or "" for the default;
// options accept "crop", "fill", "crop=<anchor>" and "fill=<anchor>".
func (s *Store) Variant(ctx context.Context, id, width, height string, options ...string) (string, error) {
	g, err := core.ParseGeometry(width, height, options...)
	if err != nil {
		return "", err
	}
	return s.VariantOf(ctx, id, g)
}

// VariantOf is Variant with an already built geometry.
func (s *Store) VariantOf(ctx context.Context, id string, g core.Geometry) (string, error) {
	parsed, err := s.inner.ParseIdentifier(id)
	if err != nil {
		return "", err
	}
	return s.inner.FetchVariant(ctx, parsed, g)
}

// Variants fetches several variants of one image concurrently.
func (s *Store) Variants(ctx context.Context, id string, gs ...core.Geometry) ([]string, error) {
	parsed, err := s.inner.ParseIdentifier(id)
	if err != nil {
		return nil, err
	}
	return s.inner.FetchVariants(ctx, parsed, gs...)
}

// Delete removes the original and all of its variants.
func (s *Store) Delete(ctx context.Context, id string) error {
	parsed, err := s.inner.ParseIdentifier(id)
	if err != nil {
		return err
	}
	return s.inner.Delete(ctx, parsed)
}

// Stat returns what is known about an ingested original.
func (s *Store) Stat(ctx context.Context, id string) (core.Record, error) {
	parsed, err := s.inner.ParseIdentifier(id)
	if err != nil {
		return core.Record{}, err
	}
	return s.inner.Stat(ctx, parsed)
}

// List returns every catalogued original.
func (s *Store) List(ctx context.Context) ([]core.Record, error) { return s.inner.List(ctx) }

// Warm queues background computation of variants of id. Results, if wanted,
// arrive on resultCh.
func (s *Store) Warm(id string, resultCh chan<- core.WarmResult, gs ...core.Geometry) error {
	parsed, err := s.inner.ParseIdentifier(id)
	if err != nil {
		return err
	}
	if len(gs) == 0 {
		return apperrors.New(apperrors.CategoryValidation, "warm", fmt.Errorf("no geometries given"))
	}
	return s.inner.Submit(core.WarmJob{ID: parsed, Geometries: gs, ResultCh: resultCh})
}

// Path returns the filesystem path of the file behind a locator's file name.
func (s *Store) Path(fileName string) string {
	return filepath.Join(s.scheme.ShardDir(fileName), fileName)
}

// Root returns the filesystem root of the store.
func (s *Store) Root() string { return s.scheme.Root() }

// Stats returns lightweight processing statistics.
func (s *Store) Stats() (ingested, built, errors int64) {
	return s.inner.IngestedCount(), s.inner.BuiltCount(), s.inner.ErrorCount()
}
