// Package format decides whether an upload is a document the converter
// accepts. The content signature is authoritative; the filename extension
// must agree with it.
package format

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// InputFormat is the document family handed to the engine.
type InputFormat string

const (
	PDF   InputFormat = "pdf"
	Image InputFormat = "image"
)

type kind struct {
	mime   string
	format InputFormat
	exts   []string
}

var supported = []kind{
	{mime: "application/pdf", format: PDF, exts: []string{".pdf"}},
	{mime: "image/png", format: Image, exts: []string{".png"}},
	{mime: "image/jpeg", format: Image, exts: []string{".jpg", ".jpeg"}},
	{mime: "image/tiff", format: Image, exts: []string{".tif", ".tiff"}},
	{mime: "image/bmp", format: Image, exts: []string{".bmp"}},
}

// Detect sniffs data and checks it against filename. It returns the input
// format, the canonical MIME type, and whether the pair is accepted.
func Detect(data []byte, filename string) (InputFormat, string, bool) {
	if len(data) == 0 {
		return "", "", false
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext == "" {
		return "", "", false
	}

	m := mimetype.Detect(data)
	for _, k := range supported {
		if !m.Is(k.mime) {
			continue
		}
		for _, e := range k.exts {
			if e == ext {
				return k.format, k.mime, true
			}
		}
		return "", "", false
	}
	return "", "", false
}

// IsSupported reports whether the upload may be converted.
func IsSupported(data []byte, filename string) bool {
	_, _, ok := Detect(data, filename)
	return ok
}

// Extensions lists every accepted filename extension.
func Extensions() []string {
	var out []string
	for _, k := range supported {
		out = append(out, k.exts...)
	}
	return out
}
