// Package goimage provides a CGO-free Resampler built on the step pipeline.
package goimage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/pipeline"
	"github.com/Skryldev/image-store/utils"
)

// Resampler decodes, transforms and re-encodes images in process.
// Safe for concurrent use; every call builds its own pipeline.
type Resampler struct {
	hooks          []core.Hook
	defaultQuality int
}

// New returns a Resampler. Hooks observe every pipeline step it runs.
func New(defaultQuality int, hooks ...core.Hook) *Resampler {
	if defaultQuality <= 0 {
		defaultQuality = 85
	}
	return &Resampler{hooks: hooks, defaultQuality: defaultQuality}
}

// Resample implements core.Resampler.
func (r *Resampler) Resample(ctx context.Context, src io.Reader, dst io.Writer, in core.Instruction) (core.ResampleResult, error) {
	data, err := utils.ReadAll(ctx, src)
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryDecode, "goimage.read", err)
	}
	if len(data) == 0 {
		return core.ResampleResult{}, apperrors.New(apperrors.CategoryDecode, "goimage.read", apperrors.ErrEmptyInput)
	}

	if in.Mode == core.ModeVerbatim {
		return r.verbatim(data, dst, in)
	}

	p := Build(in, r.defaultQuality).AddHook(r.hooks...)
	out, _, err := p.Run(ctx, &core.ImageData{Data: data, Format: in.Format})
	if err != nil {
		return core.ResampleResult{}, err
	}
	n, err := dst.Write(out.Data)
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryEncode, "goimage.write", err)
	}
	return core.ResampleResult{
		Width:  out.Meta.Width,
		Height: out.Meta.Height,
		Format: out.Format,
		Bytes:  int64(n),
	}, nil
}

// verbatim checks that data decodes as an image and copies it unchanged.
func (r *Resampler) verbatim(data []byte, dst io.Writer, in core.Instruction) (core.ResampleResult, error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryDecode, "goimage.verbatim", err)
	}
	n, err := dst.Write(data)
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryEncode, "goimage.verbatim", err)
	}
	format := core.FormatFromExt(name)
	if format == core.FormatUnknown {
		format = in.Format
	}
	return core.ResampleResult{Width: cfg.Width, Height: cfg.Height, Format: format, Bytes: int64(n)}, nil
}

// Build translates a resize instruction into a pipeline. With both crop and
// fill requested, crop wins: it already covers the whole box, leaving nothing
// to pad.
func Build(in core.Instruction, defaultQuality int) *pipeline.Pipeline {
	p := pipeline.New().Use(&pipeline.DecodeStep{})

	switch {
	case in.Width > 0 && in.Height > 0 && in.Crop:
		p.Use(&pipeline.CropStep{Width: in.Width, Height: in.Height, Anchor: in.CropAnchor})
	case in.Width > 0 && in.Height > 0 && in.Fill:
		p.Use(&pipeline.FillStep{
			Width: in.Width, Height: in.Height,
			Anchor:     in.FillAnchor,
			Background: background(in.Format),
		})
	case in.Width > 0 && in.Height > 0 && in.KeepAspect:
		p.Use(&pipeline.FitStep{Width: in.Width, Height: in.Height})
	default:
		// One free axis, both free, or an exact stretch.
		p.Use(&pipeline.ScaleStep{Width: in.Width, Height: in.Height})
	}

	quality := in.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	return p.Use(&pipeline.EncodeStep{Format: in.Format, Quality: quality})
}

// background pads with white where the format has no alpha channel.
func background(f core.Format) color.Color {
	switch f {
	case core.FormatJPEG, core.FormatBMP:
		return color.White
	}
	return color.Transparent
}

var _ core.Resampler = (*Resampler)(nil)
