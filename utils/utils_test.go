package utils_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-store/utils"
)

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		srcW, srcH, tW, tH int
		wantW, wantH       int
	}{
		{400, 800, 0, 200, 100, 200},
		{400, 800, 100, 0, 100, 200},
		{400, 800, 0, 0, 400, 800},
		{400, 800, 50, 50, 50, 50},
		{1000, 1, 10, 0, 10, 1}, // never collapses to zero
		{3, 2, 0, 1, 2, 1},
	}
	for _, tc := range tests {
		w, h := utils.ScaleDimensions(tc.srcW, tc.srcH, tc.tW, tc.tH)
		assert.Equal(t, tc.wantW, w, "%+v", tc)
		assert.Equal(t, tc.wantH, h, "%+v", tc)
	}
}

func TestFitDimensions(t *testing.T) {
	w, h := utils.FitDimensions(800, 400, 250, 250)
	assert.Equal(t, 250, w)
	assert.Equal(t, 125, h)

	w, h = utils.FitDimensions(400, 800, 250, 250)
	assert.Equal(t, 125, w)
	assert.Equal(t, 250, h)
}

func TestLimitedReader(t *testing.T) {
	data := strings.Repeat("x", 100)

	got, err := io.ReadAll(&utils.LimitedReader{R: strings.NewReader(data), Max: 100})
	require.NoError(t, err, "a stream of exactly Max bytes is accepted")
	assert.Len(t, got, 100)

	_, err = io.ReadAll(&utils.LimitedReader{R: strings.NewReader(data), Max: 99})
	assert.ErrorIs(t, err, utils.ErrLimitExceeded)

	got, err = io.ReadAll(&utils.LimitedReader{R: strings.NewReader(data)})
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestReadAll(t *testing.T) {
	got, err := utils.ReadAll(context.Background(), strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = utils.ReadAll(ctx, strings.NewReader("payload"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectExt(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)

	var jpg, pngBuf, gifBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))
	require.NoError(t, png.Encode(&pngBuf, img))
	require.NoError(t, gif.Encode(&gifBuf, img, nil))

	assert.Equal(t, "jpg", utils.DetectExtBytes(jpg.Bytes()))
	assert.Equal(t, "png", utils.DetectExtBytes(pngBuf.Bytes()))
	assert.Equal(t, "gif", utils.DetectExtBytes(gifBuf.Bytes()))
	assert.Equal(t, "", utils.DetectExtBytes([]byte("plain text, not an image")))

	ext, err := utils.DetectExt(bytes.NewReader(pngBuf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
}
