package extractor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func sample() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 30, 20))
	img.Set(3, 3, color.White)
	return img
}

func TestDecodeImage(t *testing.T) {
	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, sample()) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, sample()) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, sample(), nil) },
	}
	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, enc(&buf))

			p, err := DecodeImage(buf.Bytes())
			require.NoError(t, err)
			defer p.Close()

			assert.Equal(t, 1, p.NumPage())

			text, err := p.Text(0)
			require.NoError(t, err)
			assert.Empty(t, text)

			img, err := p.Render(0, 300)
			require.NoError(t, err)
			assert.Equal(t, 30, img.Bounds().Dx())

			b, err := p.Bound(0)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 30, 20), b)

			_, err = p.Render(1, 300)
			assert.ErrorIs(t, err, ErrPageRange)
		})
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("definitely not an image"))
	assert.Error(t, err)
}
