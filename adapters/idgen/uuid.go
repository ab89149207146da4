// Package idgen provides core.IDGenerator implementations.
package idgen

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
)

// UUID generates identifier bodies from random (version 4) UUIDs rendered as
// 32 lowercase hex characters. Random leading characters spread images
// evenly over the 256 two-character shards.
type UUID struct{}

const bodyLen = 32

// NewUUID returns a UUID generator.
func NewUUID() UUID { return UUID{} }

// Generate implements core.IDGenerator.
func (UUID) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", apperrors.New(apperrors.CategoryGeneration, "idgen.uuid", err)
	}
	return hex.EncodeToString(id[:]), nil
}

// Validate implements core.IDGenerator. Only bodies of exactly 32 lowercase
// hex characters are accepted.
func (UUID) Validate(body string) error {
	if len(body) != bodyLen || strings.Trim(body, "0123456789abcdef") != "" {
		return apperrors.New(apperrors.CategoryValidation, "idgen.uuid",
			fmt.Errorf("%w: body %q is not %d hex characters", apperrors.ErrMalformedIdentifier, body, bodyLen))
	}
	return nil
}

var _ core.IDGenerator = UUID{}
