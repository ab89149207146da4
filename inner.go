package imagestore

import (
	"github.com/spf13/afero"

	"github.com/Skryldev/image-store/core"
)

// Inner exposes the underlying core.Store for advanced use (e.g., structured
// identifiers and geometries in tests). Prefer the high-level API for normal
// usage.
func (s *Store) Inner() *core.Store { return s.inner }

// Fs exposes the filesystem the store writes to.
func (s *Store) Fs() afero.Fs { return s.storage.Fs() }
