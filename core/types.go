package core

import (
	"context"
	"image"
	"strings"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

// FormatFromExt maps a file extension (with or without the dot) to a Format.
func FormatFromExt(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg", "jpe":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "webp":
		return FormatWebP
	case "bmp":
		return FormatBMP
	case "tif", "tiff":
		return FormatTIFF
	}
	return FormatUnknown
}

// Metadata holds image information known without touching pixel data.
type Metadata struct {
	Width     int
	Height    int
	Format    Format
	SizeBytes int64
}

// ImageData is the in-memory representation passed through a pipeline.
// Data holds encoded bytes; Image holds the decoded pixel buffer once a
// decode step has run.
type ImageData struct {
	Data   []byte
	Format Format
	Image  image.Image
	Meta   Metadata
}

// Step is the pipeline building block. Each Step transforms an *ImageData
// value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// Mode selects what a Resampler does with its input.
type Mode int

const (
	// ModeVerbatim validates the input and stores it unchanged.
	ModeVerbatim Mode = iota
	// ModeResize scales the input according to the instruction's geometry.
	ModeResize
)

// Instruction is the Resampler input. Width or Height of 0 means the axis is
// free and follows the aspect ratio; both 0 means no scaling.
type Instruction struct {
	Mode       Mode
	Format     Format
	Width      int
	Height     int
	KeepAspect bool
	Crop       bool
	CropAnchor Anchor
	Fill       bool
	FillAnchor Anchor
	Quality    int
}

// InstructionFor translates a resolved geometry into a resize instruction.
func InstructionFor(g Geometry, format Format, quality int) Instruction {
	in := Instruction{
		Mode:       ModeResize,
		Format:     format,
		Width:      g.Width.Pixels(),
		Height:     g.Height.Pixels(),
		KeepAspect: true,
		Quality:    quality,
	}
	if g.Crop.Enabled {
		in.Crop, in.CropAnchor = true, g.Crop.Anchor()
	}
	if g.Fill.Enabled {
		in.Fill, in.FillAnchor = true, g.Fill.Anchor()
	}
	return in
}

// ResampleResult reports what a Resampler produced.
type ResampleResult struct {
	Width  int
	Height int
	Format Format
	Bytes  int64
}

// Record is the catalog entry of an ingested original.
type Record struct {
	ID         string    `json:"id" yaml:"id"`
	Format     Format    `json:"format" yaml:"format"`
	Width      int       `json:"width" yaml:"width"`
	Height     int       `json:"height" yaml:"height"`
	SizeBytes  int64     `json:"size_bytes" yaml:"size_bytes"`
	IngestedAt time.Time `json:"ingested_at" yaml:"ingested_at"`
}

// WarmJob asks the worker pool to precompute variants of one image.
type WarmJob struct {
	ID         Identifier
	Geometries []Geometry
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- WarmResult
}

// WarmResult wraps the outcome of an async warm job.
type WarmResult struct {
	ID       Identifier
	Locators []string
	Err      error
}
