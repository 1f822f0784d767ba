// Package image prepares rendered page images for OCR.
package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Smallest edge a resampled page may shrink to; below this OCR returns
// nothing useful.
const minEdge = 16

// Scale resamples img by factor. A factor of 1 (or a non-positive one)
// returns img untouched.
func Scale(img stdimage.Image, factor float64) stdimage.Image {
	if factor <= 0 || factor == 1 {
		return img
	}
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w < minEdge {
		w = minEdge
	}
	if h < minEdge {
		h = minEdge
	}

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	scaler := draw.Interpolator(draw.CatmullRom)
	if factor < 1 {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG encodes img uncompressed for handoff to the OCR engine.
func EncodePNG(img stdimage.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
