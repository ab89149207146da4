package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Skryldev/image-store/config"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/utils"
)

// Layout is the subset of pathscheme.Scheme the store needs. It is declared
// here so that core does not import the pathscheme package (which imports
// core).
type Layout interface {
	Resolve(g Geometry) Geometry
	ShardDir(body string) string
	OriginalPath(id Identifier) string
	VariantFileName(id Identifier, g Geometry) string
	Locator(fileName string) string
}

// Deps groups the collaborators a Store cannot work without.
type Deps struct {
	Layout    Layout
	Storage   Storage
	Resampler Resampler
	IDs       IDGenerator
}

// Store is the central orchestrator. It is safe for concurrent use; request
// geometry is passed through every call and never kept on the Store.
type Store struct {
	cfg       config.Config
	layout    Layout
	storage   Storage
	resampler Resampler
	ids       IDGenerator
	catalog   Catalog
	logger    Logger
	metrics   MetricsCollector
	prewarm   []Geometry

	// Variant file name -> locator. Entries are only served after the file
	// has been found on disk.
	hits   *lru.Cache[string, string]
	flight singleflight.Group

	// Warm worker pool.
	jobQueue  chan WarmJob
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}
	running   atomic.Bool

	ingestedCount int64
	builtCount    int64
	errorCount    int64
}

// NewStore creates a Store. Call Start() before relying on background
// warming; call Stop() when done.
func NewStore(cfg config.Config, deps Deps) (*Store, error) {
	if deps.Layout == nil || deps.Storage == nil || deps.Resampler == nil || deps.IDs == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "store.new",
			errors.New("layout, storage, resampler and id generator are required"))
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &Store{
		cfg:       cfg,
		layout:    deps.Layout,
		storage:   deps.Storage,
		resampler: deps.Resampler,
		ids:       deps.IDs,
		logger:    nopLogger{},
		metrics:   nopMetrics{},
		jobQueue:  make(chan WarmJob, queueSize),
		shutdown:  make(chan struct{}),
	}
	if cfg.HitCacheSize > 0 {
		hits, err := lru.New[string, string](cfg.HitCacheSize)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryConfig, "store.hit_cache", err)
		}
		s.hits = hits
	}
	return s, nil
}

// SetLogger attaches a structured logger.
func (s *Store) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetMetrics attaches a metrics collector.
func (s *Store) SetMetrics(m MetricsCollector) {
	if m != nil {
		s.metrics = m
	}
}

// SetCatalog attaches the index of ingested originals.
func (s *Store) SetCatalog(c Catalog) { s.catalog = c }

// SetPrewarm sets the geometries queued for warming after every ingest.
// Only honoured while the worker pool is running.
func (s *Store) SetPrewarm(gs ...Geometry) { s.prewarm = append([]Geometry(nil), gs...) }

// ── Ingestion ─────────────────────────────────────────────────────────────────

// Ingest stores the file at sourcePath as a new original and returns its
// identifier. The extension comes from the file name, or is sniffed from the
// content when the name has none. Unless retainSource is set the source file
// is removed afterwards; if that removal fails the new identifier is returned
// together with the error, since the image itself was stored.
func (s *Store) Ingest(ctx context.Context, sourcePath string, retainSource bool) (id Identifier, err error) {
	start := time.Now()
	defer func() { s.observe("ingest", start, err) }()

	f, err := s.storage.Open(ctx, sourcePath)
	if err != nil {
		return Identifier{}, apperrors.Ingestion("ingest.open", err)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(sourcePath), "."))
	id, err = s.ingest(ctx, f, ext)
	f.Close()
	if err != nil {
		return Identifier{}, err
	}

	if !retainSource {
		if err := s.storage.Remove(ctx, sourcePath); err != nil {
			s.logger.Warn("ingest.remove_source", "id", id.String(), "source", sourcePath, "error", err.Error())
			return id, apperrors.Ingestion("ingest.remove_source", err)
		}
	}
	return id, nil
}

// IngestReader stores the stream r as a new original. ext may be empty, in
// which case it is sniffed from the content.
func (s *Store) IngestReader(ctx context.Context, r io.Reader, ext string) (id Identifier, err error) {
	start := time.Now()
	defer func() { s.observe("ingest", start, err) }()
	return s.ingest(ctx, r, strings.ToLower(strings.TrimPrefix(ext, ".")))
}

func (s *Store) ingest(ctx context.Context, r io.Reader, ext string) (Identifier, error) {
	if s.cfg.MaxImageBytes > 0 {
		r = &utils.LimitedReader{R: r, Max: s.cfg.MaxImageBytes}
	}
	data, err := utils.ReadAll(ctx, r)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return Identifier{}, apperrors.New(apperrors.CategoryIngestion, "ingest.read",
				fmt.Errorf("%w: limit is %d bytes", apperrors.ErrTooLarge, s.cfg.MaxImageBytes))
		}
		return Identifier{}, apperrors.Ingestion("ingest.read", err)
	}
	if len(data) == 0 {
		return Identifier{}, apperrors.New(apperrors.CategoryIngestion, "ingest.read", apperrors.ErrEmptyInput)
	}
	if ext == "" {
		if ext = utils.DetectExtBytes(data); ext == "" {
			return Identifier{}, apperrors.New(apperrors.CategoryIngestion, "ingest.detect", apperrors.ErrUnsupportedFormat)
		}
	}

	body, err := s.ids.Generate()
	if err != nil {
		return Identifier{}, err
	}
	id := Identifier{Body: body, Ext: ext}
	if err := s.validate(id); err != nil {
		return Identifier{}, err
	}

	if err := s.storage.EnsureDir(ctx, s.layout.ShardDir(id.Body)); err != nil {
		return Identifier{}, apperrors.Ingestion("ingest.mkdir", err)
	}
	var res ResampleResult
	err = s.storage.WriteAtomic(ctx, s.layout.OriginalPath(id), func(w io.Writer) error {
		var err error
		res, err = s.resampler.Resample(ctx, bytes.NewReader(data), w, Instruction{
			Mode:   ModeVerbatim,
			Format: FormatFromExt(ext),
		})
		return err
	})
	if err != nil {
		return Identifier{}, apperrors.Ingestion("ingest.write", err)
	}

	atomic.AddInt64(&s.ingestedCount, 1)
	s.metrics.RecordThroughput(res.Bytes)
	s.logger.Info("ingest.stored",
		"id", id.String(),
		"width", res.Width,
		"height", res.Height,
		"bytes", res.Bytes,
	)

	if s.catalog != nil {
		rec := Record{
			ID:         id.String(),
			Format:     res.Format,
			Width:      res.Width,
			Height:     res.Height,
			SizeBytes:  res.Bytes,
			IngestedAt: time.Now().UTC(),
		}
		// The original is already on disk; a catalog miss only degrades Stat/List.
		if err := s.catalog.Put(ctx, rec); err != nil {
			s.metrics.RecordError("catalog.put", string(apperrors.CategoryOf(err)))
			s.logger.Warn("ingest.catalog", "id", id.String(), "error", err.Error())
		}
	}

	if len(s.prewarm) > 0 && s.running.Load() {
		if err := s.Submit(WarmJob{ID: id, Geometries: s.prewarm}); err != nil {
			s.logger.Warn("ingest.prewarm", "id", id.String(), "error", err.Error())
		}
	}
	return id, nil
}

// ── Retrieval ─────────────────────────────────────────────────────────────────

// FetchOriginal returns the locator of the original image.
func (s *Store) FetchOriginal(ctx context.Context, id Identifier) (loc string, err error) {
	start := time.Now()
	defer func() { s.observe("fetch_original", start, err) }()

	if err := s.validate(id); err != nil {
		return "", err
	}
	ok, err := s.storage.Exists(ctx, s.layout.OriginalPath(id))
	if err != nil {
		return "", apperrors.Ingestion("fetch_original.stat", err)
	}
	if !ok {
		return "", notFound("fetch_original", id)
	}
	return s.layout.Locator(id.FileName()), nil
}

// FetchVariant returns the locator of the variant of id with geometry g,
// computing and caching it on first request. Unset dimensions of g take the
// store defaults.
func (s *Store) FetchVariant(ctx context.Context, id Identifier, g Geometry) (loc string, err error) {
	start := time.Now()
	defer func() { s.observe("fetch_variant", start, err) }()

	if err := s.validate(id); err != nil {
		return "", err
	}
	if err := g.Validate(); err != nil {
		return "", err
	}
	resolved := s.layout.Resolve(g)
	name := s.layout.VariantFileName(id, resolved)

	// The file is the cache. Other processes sharing the root may delete it,
	// so a remembered locator is only returned once the file is confirmed.
	path := filepath.Join(s.layout.ShardDir(id.Body), name)
	ok, err := s.storage.Exists(ctx, path)
	if err != nil {
		return "", apperrors.Ingestion("fetch_variant.stat", err)
	}
	if ok {
		s.metrics.RecordCacheHit()
		if loc, memo := s.lookupHit(name); memo {
			s.logger.Debug("variant.hit", "id", id.String(), "geometry", resolved.String(), "source", "memory")
			return loc, nil
		}
		s.logger.Debug("variant.hit", "id", id.String(), "geometry", resolved.String(), "source", "disk")
		return s.remember(name), nil
	}
	s.forget(name)
	s.metrics.RecordCacheMiss()

	// Identical misses in this process share one build.
	v, err, _ := s.flight.Do(name, func() (interface{}, error) {
		return s.build(ctx, id, resolved, path, name)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FetchVariants fetches several variants of one image concurrently and
// returns their locators in the order of gs. The first failure cancels the
// rest.
func (s *Store) FetchVariants(ctx context.Context, id Identifier, gs ...Geometry) ([]string, error) {
	locs := make([]string, len(gs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workerCount())
	for i, g := range gs {
		i, g := i, g
		eg.Go(func() error {
			loc, err := s.FetchVariant(egCtx, id, g)
			if err != nil {
				return err
			}
			locs[i] = loc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return locs, nil
}

func (s *Store) build(ctx context.Context, id Identifier, g Geometry, path, name string) (string, error) {
	// A concurrent build may have finished between the miss and this call.
	if ok, err := s.storage.Exists(ctx, path); err == nil && ok {
		return s.remember(name), nil
	}

	origPath := s.layout.OriginalPath(id)
	ok, err := s.storage.Exists(ctx, origPath)
	if err != nil {
		return "", apperrors.Ingestion("fetch_variant.stat_original", err)
	}
	if !ok {
		return "", notFound("fetch_variant", id)
	}
	src, err := s.storage.Open(ctx, origPath)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Deleted between the check and the open.
			return "", notFound("fetch_variant", id)
		}
		return "", apperrors.Ingestion("fetch_variant.open", err)
	}
	defer src.Close()

	in := InstructionFor(g, FormatFromExt(id.Ext), s.cfg.DefaultQuality)
	var res ResampleResult
	err = s.storage.WriteAtomic(ctx, path, func(w io.Writer) error {
		var err error
		res, err = s.resampler.Resample(ctx, src, w, in)
		return err
	})
	if err != nil {
		return "", apperrors.Ingestion("fetch_variant.resample", err)
	}

	atomic.AddInt64(&s.builtCount, 1)
	s.metrics.RecordThroughput(res.Bytes)
	s.logger.Info("variant.built",
		"id", id.String(),
		"geometry", g.String(),
		"width", res.Width,
		"height", res.Height,
		"bytes", res.Bytes,
	)
	return s.remember(name), nil
}

// ── Deletion and catalog ──────────────────────────────────────────────────────

// Delete removes the original and every cached variant of id. A missing
// image is not an error. Files already removed stay removed when a later
// removal fails.
func (s *Store) Delete(ctx context.Context, id Identifier) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	if err := s.validate(id); err != nil {
		return err
	}
	n, err := s.storage.RemoveOwned(ctx, s.layout.ShardDir(id.Body), id.Body)
	s.purgeHits(id.Body)
	if err != nil {
		return apperrors.New(apperrors.CategoryDeletion, "delete", err)
	}
	if s.catalog != nil {
		if err := s.catalog.Delete(ctx, id.String()); err != nil {
			s.logger.Warn("delete.catalog", "id", id.String(), "error", err.Error())
		}
	}
	s.logger.Info("delete.done", "id", id.String(), "removed", n)
	return nil
}

// Stat returns the catalog record of id. Without a catalog it reports only
// what the file layout knows.
func (s *Store) Stat(ctx context.Context, id Identifier) (Record, error) {
	if err := s.validate(id); err != nil {
		return Record{}, err
	}
	if s.catalog != nil {
		rec, err := s.catalog.Get(ctx, id.String())
		if err != nil && apperrors.IsNotFound(err) {
			return Record{}, notFound("stat", id)
		}
		return rec, err
	}
	if _, err := s.FetchOriginal(ctx, id); err != nil {
		return Record{}, err
	}
	return Record{ID: id.String(), Format: FormatFromExt(id.Ext)}, nil
}

// List returns every catalogued original; empty when no catalog is attached.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if s.catalog == nil {
		return []Record{}, nil
	}
	recs, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// ── Warm worker pool ──────────────────────────────────────────────────────────

// Start launches the worker pool. It is idempotent.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.workerCount(); i++ {
			s.wg.Add(1)
			go s.worker()
		}
		s.running.Store(true)
	})
}

// Stop shuts down all workers. Queued jobs that were not picked up are
// dropped. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.shutdown)
	})
	s.wg.Wait()
}

// Submit enqueues a warm job. Returns ErrWorkerPoolFull if the queue is full
// and ErrStopped after Stop. A non-nil ResultCh must be buffered or drained.
func (s *Store) Submit(job WarmJob) error {
	select {
	case <-s.shutdown:
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrStopped)
	default:
	}
	select {
	case s.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolFull)
	}
}

func (s *Store) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		case job := <-s.jobQueue:
			s.processJob(job)
		}
	}
}

func (s *Store) processJob(job WarmJob) {
	ctx := context.Background()
	if timeout := s.cfg.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locs, err := s.FetchVariants(ctx, job.ID, job.Geometries...)
	if err != nil {
		s.logger.Error("warm.failed", "id", job.ID.String(), "error", err.Error())
	}
	if job.ResultCh != nil {
		job.ResultCh <- WarmResult{ID: job.ID, Locators: locs, Err: err}
	}
}

func (s *Store) workerCount() int {
	if s.cfg.WorkerCount > 0 {
		return s.cfg.WorkerCount
	}
	return runtime.NumCPU()
}

// ParseIdentifier parses the public "body|ext" form and checks the body
// against the store's generator.
func (s *Store) ParseIdentifier(str string) (Identifier, error) {
	id, err := ParseIdentifier(str)
	if err != nil {
		return Identifier{}, err
	}
	if err := s.ids.Validate(id.Body); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

// ── internals ─────────────────────────────────────────────────────────────────

// validate accepts only identifiers whose body this store could have issued.
// A shorter body would match as a prefix of other images' files.
func (s *Store) validate(id Identifier) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return s.ids.Validate(id.Body)
}

func (s *Store) lookupHit(name string) (string, bool) {
	if s.hits == nil {
		return "", false
	}
	return s.hits.Get(name)
}

func (s *Store) remember(name string) string {
	loc := s.layout.Locator(name)
	if s.hits != nil {
		s.hits.Add(name, loc)
	}
	return loc
}

func (s *Store) forget(name string) {
	if s.hits != nil {
		s.hits.Remove(name)
	}
}

// purgeHits drops cached lookups for every file owned by body, mirroring the
// prefix rule used on disk.
func (s *Store) purgeHits(body string) {
	if s.hits == nil {
		return
	}
	for _, name := range s.hits.Keys() {
		if strings.HasPrefix(name, body) {
			s.hits.Remove(name)
		}
	}
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, time.Since(start))
	if err != nil {
		atomic.AddInt64(&s.errorCount, 1)
		s.metrics.RecordError(op, string(apperrors.CategoryOf(err)))
	}
}

func notFound(op string, id Identifier) error {
	return apperrors.New(apperrors.CategoryNotFound, op,
		fmt.Errorf("%w: %s", apperrors.ErrOriginalNotFound, id.String()))
}

// IngestedCount returns the number of originals stored by this process.
func (s *Store) IngestedCount() int64 { return atomic.LoadInt64(&s.ingestedCount) }

// BuiltCount returns the number of variants computed by this process.
func (s *Store) BuiltCount() int64 { return atomic.LoadInt64(&s.builtCount) }

// ErrorCount returns the number of failed store operations.
func (s *Store) ErrorCount() int64 { return atomic.LoadInt64(&s.errorCount) }
