// Package extractor gives the local engine page-level access to a document:
// the embedded text layer and a raster rendering of each page.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/toricodesthings/document-conversion-service/internal/format"
)

// Pages is an open document. Page numbers are 0-indexed.
type Pages interface {
	NumPage() int
	// Text returns the page's embedded text layer, empty when there is none.
	Text(n int) (string, error)
	// Render rasterizes the page at dpi.
	Render(n int, dpi float64) (image.Image, error)
	// Bound is the page size in points.
	Bound(n int) (image.Rectangle, error)
	Close() error
}

// Opener opens in-memory documents of the supported input formats.
type Opener interface {
	Open(data []byte, f format.InputFormat) (Pages, error)
	Version() string
}

var ErrPageRange = errors.New("page out of range")

// DecodeImage opens a raster upload as a single page with no text layer.
func DecodeImage(data []byte) (Pages, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &imagePages{img: img}, nil
}

type imagePages struct {
	img image.Image
}

func (p *imagePages) NumPage() int { return 1 }

func (p *imagePages) Text(n int) (string, error) {
	if n != 0 {
		return "", ErrPageRange
	}
	return "", nil
}

// Render ignores dpi: an image is already at its native resolution.
func (p *imagePages) Render(n int, _ float64) (image.Image, error) {
	if n != 0 {
		return nil, ErrPageRange
	}
	return p.img, nil
}

func (p *imagePages) Bound(n int) (image.Rectangle, error) {
	if n != 0 {
		return image.Rectangle{}, ErrPageRange
	}
	b := p.img.Bounds()
	return image.Rect(0, 0, b.Dx(), b.Dy()), nil
}

func (p *imagePages) Close() error { return nil }
