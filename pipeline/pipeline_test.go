package pipeline_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/pipeline"
)

func newPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func run(t *testing.T, data []byte, steps ...core.Step) *core.ImageData {
	t.Helper()
	out, _, err := pipeline.New().
		Use(&pipeline.DecodeStep{}).
		Use(steps...).
		Use(&pipeline.EncodeStep{Format: core.FormatPNG}).
		Run(context.Background(), &core.ImageData{Data: data, Format: core.FormatPNG})
	require.NoError(t, err)
	return out
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// ── Steps ─────────────────────────────────────────────────────────────────────

func TestScaleStep(t *testing.T) {
	src := newPNG(t, 400, 800, color.White)

	out := run(t, src, &pipeline.ScaleStep{Height: 200})
	assert.Equal(t, 100, out.Meta.Width)
	assert.Equal(t, 200, out.Meta.Height)

	out = run(t, src, &pipeline.ScaleStep{})
	assert.Equal(t, 400, out.Meta.Width, "both axes free keeps the size")
	assert.Equal(t, core.FormatPNG, out.Format)
}

func TestFitStep(t *testing.T) {
	out := run(t, newPNG(t, 800, 400, color.White), &pipeline.FitStep{Width: 250, Height: 250})
	assert.Equal(t, 250, out.Meta.Width)
	assert.Equal(t, 125, out.Meta.Height)

	// Small images are enlarged to the box.
	out = run(t, newPNG(t, 10, 20, color.White), &pipeline.FitStep{Width: 100, Height: 100})
	assert.Equal(t, 50, out.Meta.Width)
	assert.Equal(t, 100, out.Meta.Height)
}

func TestCropStep(t *testing.T) {
	out := run(t, newPNG(t, 300, 100, color.White), &pipeline.CropStep{Width: 50, Height: 50, Anchor: core.AnchorRight})
	img := decode(t, out.Data)
	assert.Equal(t, image.Rect(0, 0, 50, 50), img.Bounds())
}

func TestFillStep_PlacesImageByAnchor(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	src := newPNG(t, 200, 100, red) // fits as 60x30 inside 60x60

	tests := []struct {
		anchor         core.Anchor
		paintedY, padY int
	}{
		{core.AnchorTop, 5, 50},
		{core.AnchorBottom, 50, 5},
		{core.AnchorCenter, 30, 5},
	}
	for _, tc := range tests {
		out := run(t, src, &pipeline.FillStep{Width: 60, Height: 60, Anchor: tc.anchor, Background: color.Transparent})
		img := decode(t, out.Data)
		require.Equal(t, image.Rect(0, 0, 60, 60), img.Bounds())

		_, _, _, a := img.At(30, tc.paintedY).RGBA()
		assert.NotZero(t, a, "anchor %s: image expected at y=%d", tc.anchor, tc.paintedY)
		_, _, _, a = img.At(30, tc.padY).RGBA()
		assert.Zero(t, a, "anchor %s: padding expected at y=%d", tc.anchor, tc.padY)
	}
}

func TestEncodeStep_UnsupportedFormat(t *testing.T) {
	_, _, err := pipeline.New().
		Use(&pipeline.DecodeStep{}, &pipeline.EncodeStep{Format: core.FormatWebP}).
		Run(context.Background(), &core.ImageData{Data: newPNG(t, 4, 4, color.White)})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryEncode))
}

func TestDecodeStep_Garbage(t *testing.T) {
	_, _, err := pipeline.New().Use(&pipeline.DecodeStep{}).
		Run(context.Background(), &core.ImageData{Data: []byte("garbage")})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
}

// ── Extensibility / hooks ─────────────────────────────────────────────────────

// invertStep is a custom pipeline step for testing extensibility.
type invertStep struct{}

func (invertStep) Name() string { return "invert" }
func (invertStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	bounds := img.Image.Bounds()
	dst := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.Image.At(x, y).RGBA()
			dst.Set(x, y, color.NRGBA{R: 255 - uint8(r>>8), G: 255 - uint8(g>>8), B: 255 - uint8(b>>8), A: uint8(a >> 8)})
		}
	}
	out := *img
	out.Image = dst
	return &out, nil
}

type recordingHook struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHook) BeforeStep(_ context.Context, name string, _ *core.ImageData) {
	h.mu.Lock()
	h.events = append(h.events, "before:"+name)
	h.mu.Unlock()
}

func (h *recordingHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, err error) {
	h.mu.Lock()
	suffix := ""
	if err != nil {
		suffix = "!"
	}
	h.events = append(h.events, "after:"+name+suffix)
	h.mu.Unlock()
}

func TestPipeline_CustomStepAndHooks(t *testing.T) {
	hook := &recordingHook{}
	p := pipeline.New().
		Use(&pipeline.DecodeStep{}, invertStep{}, &pipeline.EncodeStep{Format: core.FormatPNG}).
		AddHook(hook)
	assert.Equal(t, []string{"decode", "invert", "encode"}, p.Steps())

	out, timings, err := p.Run(context.Background(), &core.ImageData{Data: newPNG(t, 2, 2, color.White)})
	require.NoError(t, err)
	assert.Len(t, timings, 3)

	r, g, b, _ := decode(t, out.Data).At(0, 0).RGBA()
	assert.Zero(t, r|g|b, "white inverts to black")
	assert.Equal(t, []string{
		"before:decode", "after:decode",
		"before:invert", "after:invert",
		"before:encode", "after:encode",
	}, hook.events)
}

func TestPipeline_StopsOnErrorAndCancel(t *testing.T) {
	hook := &recordingHook{}
	_, _, err := pipeline.New().
		Use(&pipeline.DecodeStep{}, invertStep{}).
		AddHook(hook).
		Run(context.Background(), &core.ImageData{Data: []byte("nope")})
	require.Error(t, err)
	assert.Equal(t, []string{"before:decode", "after:decode!"}, hook.events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = pipeline.New().Use(&pipeline.DecodeStep{}).
		Run(ctx, &core.ImageData{Data: newPNG(t, 2, 2, color.White)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryPipeline))
}
