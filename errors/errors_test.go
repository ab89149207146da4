package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Skryldev/image-store/errors"
)

func TestStoreError(t *testing.T) {
	err := apperrors.New(apperrors.CategoryValidation, "geometry.parse", apperrors.ErrInvalidDimension)
	assert.Equal(t, "[validation] geometry.parse: "+apperrors.ErrInvalidDimension.Error(), err.Error())
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimension)
	assert.True(t, apperrors.IsValidation(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestOutermostCategoryWins(t *testing.T) {
	inner := apperrors.New(apperrors.CategoryDecode, "decode", errors.New("bad header"))
	outer := apperrors.Ingestion("ingest.write", fmt.Errorf("write: %w", inner))

	assert.Equal(t, apperrors.CategoryIngestion, apperrors.CategoryOf(outer))
	assert.True(t, apperrors.IsIngestion(outer))
	assert.False(t, apperrors.IsCategory(outer, apperrors.CategoryDecode))
	assert.True(t, apperrors.IsRetryable(outer))

	var se *apperrors.StoreError
	assert.True(t, errors.As(outer, &se))
	assert.Equal(t, "ingest.write", se.Op)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, apperrors.Wrap(apperrors.CategoryCatalog, "catalog.put", nil))

	err := apperrors.Wrap(apperrors.CategoryDeletion, "delete", errors.New("permission denied"))
	assert.True(t, apperrors.IsDeletion(err))
	assert.Equal(t, apperrors.Category(""), apperrors.CategoryOf(errors.New("plain")))
	assert.False(t, apperrors.IsNotFound(nil))
}
