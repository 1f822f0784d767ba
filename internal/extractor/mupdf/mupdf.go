// Package mupdf opens documents with go-fitz.
package mupdf

import (
	"fmt"
	"image"
	"runtime/debug"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/toricodesthings/document-conversion-service/internal/extractor"
	"github.com/toricodesthings/document-conversion-service/internal/format"
)

const modulePath = "github.com/gen2brain/go-fitz"

type Opener struct{}

func (Opener) Open(data []byte, f format.InputFormat) (extractor.Pages, error) {
	switch f {
	case format.Image:
		return extractor.DecodeImage(data)
	case format.PDF:
		doc, err := fitz.NewFromMemory(data)
		if err != nil {
			return nil, fmt.Errorf("open pdf: %w", err)
		}
		return &pages{doc: doc}, nil
	default:
		return nil, fmt.Errorf("unsupported input format %q", f)
	}
}

// Version reports the linked go-fitz module version.
func (Opener) Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "mupdf"
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return "mupdf " + dep.Version
		}
	}
	return "mupdf"
}

type pages struct {
	mu  sync.Mutex
	doc *fitz.Document
}

func (p *pages) NumPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.NumPage()
}

func (p *pages) Text(n int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Text(n)
}

func (p *pages) Render(n int, dpi float64) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.ImageDPI(n, dpi)
}

func (p *pages) Bound(n int) (image.Rectangle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Bound(n)
}

func (p *pages) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Close()
}
