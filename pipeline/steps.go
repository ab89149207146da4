package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	// Decoders beyond the ones imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/utils"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into an image.Image, applying the
// EXIF orientation.
type DecodeStep struct{}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, s.Name(), err)
	}
	if img.Image != nil {
		return img, nil // already decoded
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}
	decoded, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, s.Name(), err)
	}
	out := *img
	out.Image = decoded
	out.Meta.Width = decoded.Bounds().Dx()
	out.Meta.Height = decoded.Bounds().Dy()
	return &out, nil
}

// ── Scale ─────────────────────────────────────────────────────────────────────

// ScaleStep resizes the image. A zero axis follows the aspect ratio; both
// zero leaves the image untouched.
type ScaleStep struct {
	Width, Height int
	Filter        imaging.ResampleFilter
}

func (s *ScaleStep) Name() string { return "scale" }

func (s *ScaleStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	src, err := decoded(ctx, s.Name(), img)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	dstW, dstH := utils.ScaleDimensions(b.Dx(), b.Dy(), s.Width, s.Height)
	if dstW == b.Dx() && dstH == b.Dy() {
		return img, nil // nothing to do
	}
	return withImage(img, imaging.Resize(src, dstW, dstH, filter(s.Filter))), nil
}

// ── Fit ───────────────────────────────────────────────────────────────────────

// FitStep scales the image to the largest size with its own aspect ratio that
// fits inside the box. Small images are enlarged.
type FitStep struct {
	Width, Height int
	Filter        imaging.ResampleFilter
}

func (s *FitStep) Name() string { return "fit" }

func (s *FitStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	src, err := decoded(ctx, s.Name(), img)
	if err != nil {
		return nil, err
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimension)
	}
	b := src.Bounds()
	dstW, dstH := utils.FitDimensions(b.Dx(), b.Dy(), s.Width, s.Height)
	if dstW == b.Dx() && dstH == b.Dy() {
		return img, nil
	}
	return withImage(img, imaging.Resize(src, dstW, dstH, filter(s.Filter))), nil
}

// ── Crop ──────────────────────────────────────────────────────────────────────

// CropStep scales the image to cover the box and cuts the excess, keeping
// the region named by Anchor.
type CropStep struct {
	Width, Height int
	Anchor        core.Anchor
	Filter        imaging.ResampleFilter
}

func (s *CropStep) Name() string { return "crop" }

func (s *CropStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	src, err := decoded(ctx, s.Name(), img)
	if err != nil {
		return nil, err
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimension)
	}
	return withImage(img, imaging.Fill(src, s.Width, s.Height, anchor(s.Anchor), filter(s.Filter))), nil
}

// ── Fill ──────────────────────────────────────────────────────────────────────

// FillStep fits the image inside the box and pads it to the exact box size
// with Background, placing the image according to Anchor.
type FillStep struct {
	Width, Height int
	Anchor        core.Anchor
	Background    color.Color
	Filter        imaging.ResampleFilter
}

func (s *FillStep) Name() string { return "fill" }

func (s *FillStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	fitted, err := (&FitStep{Width: s.Width, Height: s.Height, Filter: s.Filter}).Execute(ctx, img)
	if err != nil {
		return nil, err
	}
	src := fitted.Image
	bg := s.Background
	if bg == nil {
		bg = color.Transparent
	}
	canvas := imaging.New(s.Width, s.Height, bg)
	return withImage(img, imaging.Paste(canvas, src, placement(s.Anchor, canvas.Bounds(), src.Bounds()))), nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the image.Image into img.Data in the given format.
type EncodeStep struct {
	Format  core.Format
	Quality int // JPEG only; 0 = 85
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, s.Name(), err)
	}
	if img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}
	f, ok := imagingFormat(s.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s.Format))
	}
	quality := s.Quality
	if quality <= 0 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.Image, f, imaging.JPEGQuality(quality)); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, s.Name(), err)
	}
	out := *img
	out.Data = buf.Bytes()
	out.Format = s.Format
	out.Meta.Format = s.Format
	out.Meta.SizeBytes = int64(buf.Len())
	return &out, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func decoded(ctx context.Context, step string, img *core.ImageData) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, step, err)
	}
	if img == nil || img.Image == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, step, apperrors.ErrEmptyInput)
	}
	return img.Image, nil
}

func withImage(img *core.ImageData, dst image.Image) *core.ImageData {
	out := *img
	out.Image = dst
	out.Meta.Width = dst.Bounds().Dx()
	out.Meta.Height = dst.Bounds().Dy()
	return &out
}

func filter(f imaging.ResampleFilter) imaging.ResampleFilter {
	if f.Kernel == nil && f.Support == 0 {
		return imaging.Lanczos
	}
	return f
}

func anchor(a core.Anchor) imaging.Anchor {
	switch a {
	case core.AnchorTop:
		return imaging.Top
	case core.AnchorBottom:
		return imaging.Bottom
	case core.AnchorLeft:
		return imaging.Left
	case core.AnchorRight:
		return imaging.Right
	case core.AnchorTopLeft:
		return imaging.TopLeft
	case core.AnchorTopRight:
		return imaging.TopRight
	case core.AnchorBottomLeft:
		return imaging.BottomLeft
	case core.AnchorBottomRight:
		return imaging.BottomRight
	}
	return imaging.Center
}

// placement returns the top-left point of inner inside outer for the anchor.
func placement(a core.Anchor, outer, inner image.Rectangle) image.Point {
	return image.Pt(a.Offset(outer.Dx()-inner.Dx(), outer.Dy()-inner.Dy()))
}

func imagingFormat(f core.Format) (imaging.Format, bool) {
	switch f {
	case core.FormatJPEG:
		return imaging.JPEG, true
	case core.FormatPNG:
		return imaging.PNG, true
	case core.FormatGIF:
		return imaging.GIF, true
	case core.FormatBMP:
		return imaging.BMP, true
	case core.FormatTIFF:
		return imaging.TIFF, true
	}
	return 0, false
}
