package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
)

func TestParseIdentifier(t *testing.T) {
	id, err := core.ParseIdentifier("3fa85f6457174562b3fc2c963f66afa6|jpg")
	require.NoError(t, err)
	assert.Equal(t, "3fa85f6457174562b3fc2c963f66afa6", id.Body)
	assert.Equal(t, "jpg", id.Ext)
	assert.Equal(t, "3f", id.Shard())
	assert.Equal(t, "3fa85f6457174562b3fc2c963f66afa6.jpg", id.FileName())
	assert.Equal(t, "3fa85f6457174562b3fc2c963f66afa6|jpg", id.String())
}

func TestParseIdentifier_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"noseparator",
		"|jpg",
		"a|jpg",
		"abcd|",
		"ab/cd|jpg",
		"abcd|j.pg",
		"../x|png",
		".hidden|png",
	} {
		_, err := core.ParseIdentifier(in)
		require.Error(t, err, "input %q", in)
		assert.ErrorIs(t, err, apperrors.ErrMalformedIdentifier, "input %q", in)
		assert.True(t, apperrors.IsValidation(err), "input %q", in)
	}
}

func TestIdentifierValidate_AllowsDashes(t *testing.T) {
	assert.NoError(t, core.Identifier{Body: "ab-01_x", Ext: "png"}.Validate())
	assert.Error(t, core.Identifier{Body: "ab01", Ext: "p-g"}.Validate())
}
