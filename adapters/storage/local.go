// Package storage provides core.Storage implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/pathscheme"
)

// Local stores images on a filesystem. It is backed by afero so tests can run
// against an in-memory filesystem.
type Local struct {
	fs       afero.Fs
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// NewLocal creates a Local storage adapter over fs.
func NewLocal(fs afero.Fs, dirPerm, filePerm os.FileMode) *Local {
	if dirPerm == 0 {
		dirPerm = 0o770
	}
	if filePerm == 0 {
		filePerm = 0o640
	}
	return &Local{fs: fs, dirPerm: dirPerm, filePerm: filePerm}
}

// NewOS creates a Local storage adapter over the host filesystem.
func NewOS(dirPerm, filePerm os.FileMode) *Local {
	return NewLocal(afero.NewOsFs(), dirPerm, filePerm)
}

// Fs exposes the underlying filesystem.
func (l *Local) Fs() afero.Fs { return l.fs }

func (l *Local) EnsureDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(dir, l.dirPerm); err != nil {
		return fmt.Errorf("local.mkdir %s: %w", dir, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := l.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("local.stat %s: %w", path, err)
}

func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := l.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryNotFound, "local.open", fmt.Errorf("%s: %w", path, err))
		}
		return nil, fmt.Errorf("local.open %s: %w", path, err)
	}
	return f, nil
}

func (l *Local) WriteAtomic(ctx context.Context, path string, write func(w io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, name := filepath.Split(path)
	// Dot prefix keeps temp files out of RemoveOwned and out of existence checks.
	tmp, err := afero.TempFile(l.fs, dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("local.tempfile %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = l.fs.Remove(tmpName) }

	if err := write(tmp); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("local.sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("local.close %s: %w", path, err)
	}
	if err := l.fs.Chmod(tmpName, l.filePerm); err != nil {
		cleanup()
		return fmt.Errorf("local.chmod %s: %w", path, err)
	}
	if err := l.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("local.rename %s: %w", path, err)
	}
	return nil
}

func (l *Local) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("local.remove %s: %w", path, err)
	}
	return nil
}

func (l *Local) RemoveOwned(ctx context.Context, dir, body string) (int, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("local.readdir %s: %w", dir, err)
	}
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !pathscheme.OwnedBy(e.Name(), body) {
			continue
		}
		// A concurrent delete may have won the race; that file is gone either way.
		if err := l.fs.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("local.remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

var _ core.Storage = (*Local)(nil)
