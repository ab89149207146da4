package utils

import (
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectExt sniffs the head of r and returns the canonical extension of the
// image type, without the dot, or "" when r does not look like an image.
func DetectExt(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	return extForMIME(mt), nil
}

// DetectExtBytes is DetectExt for in-memory data.
func DetectExtBytes(data []byte) string {
	return extForMIME(mimetype.Detect(data))
}

func extForMIME(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		if !strings.HasPrefix(m.String(), "image/") {
			continue
		}
		switch m.Extension() {
		case ".jpg", ".jpeg":
			return "jpg"
		case "":
			continue
		default:
			return strings.TrimPrefix(m.Extension(), ".")
		}
	}
	return ""
}

// ScaleDimensions computes output (w, h) preserving aspect ratio.
// Pass 0 for either axis to calculate it from the other.
func ScaleDimensions(srcW, srcH, targetW, targetH int) (int, int) {
	if targetW == 0 && targetH == 0 {
		return srcW, srcH
	}
	if targetW == 0 {
		ratio := float64(targetH) / float64(srcH)
		return atLeastOne(float64(srcW) * ratio), targetH
	}
	if targetH == 0 {
		ratio := float64(targetW) / float64(srcW)
		return targetW, atLeastOne(float64(srcH) * ratio)
	}
	return targetW, targetH
}

// FitDimensions computes the largest (w, h) with the source aspect ratio that
// fits inside the box (boxW, boxH).
func FitDimensions(srcW, srcH, boxW, boxH int) (int, int) {
	if srcW*boxH > srcH*boxW {
		return ScaleDimensions(srcW, srcH, boxW, 0)
	}
	return ScaleDimensions(srcW, srcH, 0, boxH)
}

func atLeastOne(f float64) int {
	n := int(f + 0.5)
	if n < 1 {
		return 1
	}
	return n
}
