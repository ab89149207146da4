package core

import (
	"fmt"
	"strings"

	apperrors "github.com/Skryldev/image-store/errors"
)

// Identifier is the structured form of an image identifier. Body is the
// sharding key and the prefix of every file stored for the image; Ext is the
// file extension of the original, without the dot.
type Identifier struct {
	Body string
	Ext  string
}

// String renders the public form, "body|ext".
func (id Identifier) String() string { return id.Body + "|" + id.Ext }

// FileName renders the original's file name, "body.ext".
func (id Identifier) FileName() string { return id.Body + "." + id.Ext }

// Shard returns the two-character shard key.
func (id Identifier) Shard() string { return id.Body[:2] }

// Validate checks that both parts are present and filename safe.
func (id Identifier) Validate() error {
	if len(id.Body) < 2 || !isToken(id.Body, true) {
		return apperrors.New(apperrors.CategoryValidation, "identifier.body",
			fmt.Errorf("%w: body %q", apperrors.ErrMalformedIdentifier, id.Body))
	}
	if id.Ext == "" || !isToken(id.Ext, false) {
		return apperrors.New(apperrors.CategoryValidation, "identifier.ext",
			fmt.Errorf("%w: extension %q", apperrors.ErrMalformedIdentifier, id.Ext))
	}
	return nil
}

// ParseIdentifier parses the public "body|ext" form.
func ParseIdentifier(s string) (Identifier, error) {
	body, ext, ok := strings.Cut(s, "|")
	if !ok {
		return Identifier{}, apperrors.New(apperrors.CategoryValidation, "identifier.parse",
			fmt.Errorf("%w: %q has no '|' separator", apperrors.ErrMalformedIdentifier, s))
	}
	id := Identifier{Body: body, Ext: ext}
	if err := id.Validate(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

func isToken(s string, allowPunct bool) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case allowPunct && (r == '-' || r == '_'):
		default:
			return false
		}
	}
	return true
}
