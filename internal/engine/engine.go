// Package engine defines the contract between the conversion service and a
// document conversion backend. Backends live in sub-packages.
package engine

import (
	"context"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/format"
)

// Stream binds an in-memory document to its declared input format.
type Stream struct {
	Name     string
	Format   format.InputFormat
	MIMEType string
	Data     []byte
}

type OutputMode string

const (
	OutputJSON     OutputMode = "json"
	OutputMarkdown OutputMode = "markdown"
)

// Options is the per-request pipeline configuration. It is built once per
// request and not modified afterwards.
type Options struct {
	OCR              bool
	ForceFullPageOCR bool
	Languages        []string

	TableStructure bool
	CellMatching   bool

	ImageScale float64
	Device     accel.Device

	DocBatchSize         int
	DocBatchConcurrency  int
	PageBatchSize        int
	PageBatchConcurrency int

	Output OutputMode
}

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
)

// ErrorItem is one problem the engine reported while still returning.
type ErrorItem struct {
	Component string
	Message   string
}

// Exporter renders a converted document.
type Exporter interface {
	ExportToDict() (map[string]any, error)
	ExportToMarkdown() (string, error)
}

type Result struct {
	Status   Status
	Errors   []ErrorItem
	Document Exporter
}

// Engine converts one document synchronously. A returned error means the
// engine could not run at all; problems found during a run are reported in
// Result.Errors.
type Engine interface {
	Name() string
	Version(ctx context.Context) string
	Convert(ctx context.Context, in Stream, opts Options) (*Result, error)
}
