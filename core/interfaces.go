package core

import (
	"context"
	"io"
	"time"
)

// Resampler produces image files for the store. It reads the source from src
// and writes the encoded result to dst; it never touches the store layout.
// Implementations live in adapters/.
type Resampler interface {
	Resample(ctx context.Context, src io.Reader, dst io.Writer, in Instruction) (ResampleResult, error)
}

// IDGenerator produces identifier bodies for newly ingested images. Validate
// reports whether body has the shape Generate produces; the store rejects any
// other body before it touches the file system, since deletion removes every
// file whose name starts with the body.
type IDGenerator interface {
	Generate() (string, error)
	Validate(body string) error
}

// Catalog indexes ingested originals.
type Catalog interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// MetricsCollector receives observations from the store.
type MetricsCollector interface {
	RecordOperation(op string, d time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
	RecordThroughput(bytes int64)
	RecordError(op string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, time.Duration) {}
func (nopMetrics) RecordCacheHit()                       {}
func (nopMetrics) RecordCacheMiss()                      {}
func (nopMetrics) RecordThroughput(int64)                {}
func (nopMetrics) RecordError(string, string)            {}

// Storage is the filesystem the store persists into. Paths are full paths as
// produced by the path scheme. Implementations live in adapters/storage/.
type Storage interface {
	// EnsureDir creates dir and its parents if absent. Safe to race.
	EnsureDir(ctx context.Context, dir string) error
	Exists(ctx context.Context, path string) (bool, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// WriteAtomic streams write's output into a temporary file next to path
	// and renames it into place only when write succeeds.
	WriteAtomic(ctx context.Context, path string, write func(w io.Writer) error) error
	Remove(ctx context.Context, path string) error
	// RemoveOwned deletes every entry of dir owned by the given identifier
	// body and returns how many were removed.
	RemoveOwned(ctx context.Context, dir, body string) (int, error)
}
