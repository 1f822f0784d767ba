package format

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var minimalPDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	pngData := pngBytes(t)
	jpegHeader := append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)

	tests := []struct {
		name       string
		data       []byte
		filename   string
		wantOK     bool
		wantFormat InputFormat
	}{
		{"pdf", minimalPDF, "report.pdf", true, PDF},
		{"pdf upper ext", minimalPDF, "REPORT.PDF", true, PDF},
		{"png", pngData, "scan.png", true, Image},
		{"jpeg", jpegHeader, "scan.jpeg", true, Image},
		{"jpg", jpegHeader, "scan.jpg", true, Image},
		{"empty", nil, "report.pdf", false, ""},
		{"no extension", minimalPDF, "report", false, ""},
		{"text renamed to pdf", []byte("just some plain text\n"), "notes.pdf", false, ""},
		{"pdf renamed to png", minimalPDF, "scan.png", false, ""},
		{"png renamed to pdf", pngData, "scan.pdf", false, ""},
		{"html", []byte("<!DOCTYPE html><html><body>x</body></html>"), "page.html", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _, ok := Detect(tt.data, tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFormat, f)
			assert.Equal(t, tt.wantOK, IsSupported(tt.data, tt.filename))
		})
	}
}

func TestDetectMIME(t *testing.T) {
	_, mime, ok := Detect(minimalPDF, "a.pdf")
	require.True(t, ok)
	assert.Equal(t, "application/pdf", mime)
}

func TestExtensions(t *testing.T) {
	assert.Contains(t, Extensions(), ".pdf")
	assert.Contains(t, Extensions(), ".tiff")
}
