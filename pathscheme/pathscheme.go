// Package pathscheme maps identifiers and geometries to the on-disk layout and
// to public locators.
//
// Layout:
//
//	root/<shard>/<body>.<ext>                                 original
//	root/<shard>/<body><height><width>[crop][fill].<ext>      variant
//
// where shard is the first two characters of body. The order of the variant
// name components is part of the cache format: changing it orphans every
// cached variant.
package pathscheme

import (
	"path/filepath"
	"strings"

	"github.com/Skryldev/image-store/core"
)

const (
	CropLabel = "crop"
	FillLabel = "fill"
)

// Scheme is immutable after construction and safe for concurrent use.
type Scheme struct {
	root    string
	rootURI string
	def     core.Geometry
}

// New returns a Scheme rooted at the filesystem path root, publishing files
// under rootURI. def supplies dimensions for unset request fields.
func New(root, rootURI string, def core.Geometry) *Scheme {
	return &Scheme{
		root:    filepath.Clean(root),
		rootURI: strings.TrimRight(rootURI, "/"),
		def:     def,
	}
}

// Root returns the filesystem root.
func (s *Scheme) Root() string { return s.root }

// Defaults returns the geometry used for unset dimensions.
func (s *Scheme) Defaults() core.Geometry { return s.def }

// ShardDir returns the directory holding every file of the image with the
// given body.
func (s *Scheme) ShardDir(body string) string {
	return filepath.Join(s.root, shard(body))
}

// OriginalFileName returns "body.ext".
func (s *Scheme) OriginalFileName(id core.Identifier) string { return id.FileName() }

// OriginalPath returns the full path of the original.
func (s *Scheme) OriginalPath(id core.Identifier) string {
	return filepath.Join(s.ShardDir(id.Body), s.OriginalFileName(id))
}

// Resolve fills unset dimensions of g from the scheme defaults.
func (s *Scheme) Resolve(g core.Geometry) core.Geometry { return g.Resolve(s.def) }

// VariantFileName builds the cache file name of a variant. g must already be
// resolved; identical resolved geometries always yield identical names.
func (s *Scheme) VariantFileName(id core.Identifier, g core.Geometry) string {
	var b strings.Builder
	b.WriteString(id.Body)
	b.WriteString(g.Height.String())
	b.WriteString(g.Width.String())
	b.WriteString(g.Crop.Label(CropLabel))
	b.WriteString(g.Fill.Label(FillLabel))
	b.WriteByte('.')
	b.WriteString(id.Ext)
	return b.String()
}

// VariantPath returns the full path of a variant.
func (s *Scheme) VariantPath(id core.Identifier, g core.Geometry) string {
	return filepath.Join(s.ShardDir(id.Body), s.VariantFileName(id, g))
}

// Locator returns the public URI of a stored file. Every stored file name
// starts with its identifier body, so the shard is derived from the name.
func (s *Scheme) Locator(fileName string) string {
	return s.rootURI + "/" + shard(fileName) + "/" + fileName
}

// OwnedBy reports whether a file name in a shard directory belongs to the
// image with the given body. Temporary files are dot-prefixed and never match.
func OwnedBy(fileName, body string) bool {
	return !strings.HasPrefix(fileName, ".") && strings.HasPrefix(fileName, body)
}

func shard(name string) string {
	if len(name) < 2 {
		return name
	}
	return name[:2]
}
