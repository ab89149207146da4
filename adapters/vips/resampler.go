package vips

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
	"github.com/Skryldev/image-store/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a libvips-powered Resampler.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

var startupOnce sync.Once

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	startupOnce.Do(func() {
		govips.Startup(&govips.Config{
			ConcurrencyLevel: cfg.MaxWorkers,
			MaxCacheSize:     cfg.MaxCacheSize,
			ReportLeaks:      cfg.ReportLeaks,
		})
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Resample implements core.Resampler. When crop and fill are both requested
// crop wins, as in the pure-Go backend.
func (b *Backend) Resample(ctx context.Context, src io.Reader, dst io.Writer, in core.Instruction) (core.ResampleResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.resample", err)
	}
	raw, err := utils.ReadAll(ctx, src)
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.read", err)
	}
	if len(raw) == 0 {
		return core.ResampleResult{}, apperrors.New(apperrors.CategoryDecode, "vips.read", apperrors.ErrEmptyInput)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	if in.Mode == core.ModeVerbatim {
		n, err := io.Copy(dst, bytes.NewReader(raw))
		if err != nil {
			return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryEncode, "vips.verbatim", err)
		}
		return core.ResampleResult{
			Width: ref.Width(), Height: ref.Height(),
			Format: vipsFormatToCore(ref.Format()), Bytes: n,
		}, nil
	}

	if err := ref.AutoRotate(); err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryPipeline, "vips.auto_rotate", err)
	}
	if err := b.transform(ref, in); err != nil {
		return core.ResampleResult{}, err
	}

	buf, err := b.export(ref, in)
	if err != nil {
		return core.ResampleResult{}, err
	}
	n, err := dst.Write(buf)
	if err != nil {
		return core.ResampleResult{}, apperrors.Wrap(apperrors.CategoryEncode, "vips.write", err)
	}
	return core.ResampleResult{Width: ref.Width(), Height: ref.Height(), Format: in.Format, Bytes: int64(n)}, nil
}

func (b *Backend) transform(ref *govips.ImageRef, in core.Instruction) error {
	srcW, srcH := ref.Width(), ref.Height()
	w, h := in.Width, in.Height

	switch {
	case w > 0 && h > 0 && in.Crop:
		scale := math.Max(float64(w)/float64(srcW), float64(h)/float64(srcH))
		if err := resize(ref, scale); err != nil {
			return err
		}
		x, y := in.CropAnchor.Offset(ref.Width()-w, ref.Height()-h)
		cw, ch := min(w, ref.Width()), min(h, ref.Height())
		if err := ref.ExtractArea(max(x, 0), max(y, 0), cw, ch); err != nil {
			return apperrors.Wrap(apperrors.CategoryPipeline, "vips.crop", err)
		}
	case w > 0 && h > 0 && in.Fill:
		scale := math.Min(float64(w)/float64(srcW), float64(h)/float64(srcH))
		if err := resize(ref, scale); err != nil {
			return err
		}
		x, y := in.FillAnchor.Offset(w-ref.Width(), h-ref.Height())
		if err := ref.Embed(max(x, 0), max(y, 0), w, h, extendFor(in.Format, ref)); err != nil {
			return apperrors.Wrap(apperrors.CategoryPipeline, "vips.fill", err)
		}
	case w > 0 && h > 0 && in.KeepAspect:
		fw, _ := utils.FitDimensions(srcW, srcH, w, h)
		return resize(ref, float64(fw)/float64(srcW))
	case w > 0 && h > 0:
		if err := ref.ResizeWithVScale(float64(w)/float64(srcW), float64(h)/float64(srcH), govips.KernelLanczos3); err != nil {
			return apperrors.Wrap(apperrors.CategoryPipeline, "vips.stretch", err)
		}
	case w > 0:
		return resize(ref, float64(w)/float64(srcW))
	case h > 0:
		return resize(ref, float64(h)/float64(srcH))
	}
	return nil
}

func resize(ref *govips.ImageRef, scale float64) error {
	if scale == 1 {
		return nil
	}
	if err := ref.Resize(scale, govips.KernelLanczos3); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "vips.resize", err)
	}
	return nil
}

func extendFor(f core.Format, ref *govips.ImageRef) govips.ExtendStrategy {
	if ref.HasAlpha() && f != core.FormatJPEG {
		return govips.ExtendBlack // transparent black once the alpha band is padded
	}
	return govips.ExtendWhite
}

func (b *Backend) export(ref *govips.ImageRef, in core.Instruction) ([]byte, error) {
	quality := in.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	switch in.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		buf, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		buf, _, err := ref.ExportPng(govips.NewPngExportParams())
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.png", err)
		}
		return buf, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		buf, _, err := ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
		}
		return buf, nil

	case core.FormatGIF, core.FormatTIFF:
		buf, _, err := ref.ExportNative()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.native", err)
		}
		return buf, nil

	default:
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, in.Format))
	}
}

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	case govips.ImageTypeBMP:
		return core.FormatBMP
	default:
		return core.FormatUnknown
	}
}

// compile-time interface check
var _ core.Resampler = (*Backend)(nil)
