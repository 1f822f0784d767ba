// Package local converts documents in-process: the embedded text layer is
// read with MuPDF and pages whose text layer is unusable go through OCR.
package local

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/document-conversion-service/internal/document"
	"github.com/toricodesthings/document-conversion-service/internal/engine"
	"github.com/toricodesthings/document-conversion-service/internal/extractor"
	"github.com/toricodesthings/document-conversion-service/internal/image"
	"github.com/toricodesthings/document-conversion-service/internal/ocr"
	"github.com/toricodesthings/document-conversion-service/internal/quality"
)

const Name = "local"

var ErrNoPages = errors.New("document has no pages")

const (
	methodTextLayer = "text-layer"
	methodOCR       = "ocr"
)

type Config struct {
	DPI       int    // render resolution for OCR
	MinWords  int    // words a healthy text-layer page is expected to have
	PageBreak string // inserted between pages in markdown output

	// MinConfidence is the mean word confidence (0..1) OCR output needs to
	// replace a non-empty text layer. Backends reporting no confidence pass.
	MinConfidence float64
}

func (c Config) withDefaults() Config {
	if c.DPI <= 0 {
		c.DPI = 216
	}
	if c.MinWords <= 0 {
		c.MinWords = 10
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.4
	}
	return c
}

type Engine struct {
	opener extractor.Opener
	ocr    ocr.Recognizer
	cfg    Config
	log    *zap.Logger

	mu    sync.Mutex
	slots map[int]*semaphore.Weighted
}

func New(opener extractor.Opener, rec ocr.Recognizer, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		opener: opener,
		ocr:    rec,
		cfg:    cfg.withDefaults(),
		log:    log.Named("local"),
		slots:  map[int]*semaphore.Weighted{},
	}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) Version(context.Context) string {
	v := e.opener.Version()
	if e.ocr != nil {
		v += " + " + e.ocr.Name() + " " + e.ocr.Version()
	}
	return v
}

type pageResult struct {
	no     int
	width  float64
	height float64
	text   string
	method string
	err    error
}

func (e *Engine) Convert(ctx context.Context, in engine.Stream, opts engine.Options) (*engine.Result, error) {
	slots := e.docSlots(docCapacity(opts))
	if err := slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer slots.Release(1)

	if opts.TableStructure {
		e.log.Debug("table structure limited to delimited grids in the text layer")
	}
	if opts.OCR && opts.Device.IsAccelerator() {
		e.log.Debug("ocr runs on cpu", zap.Stringer("device", opts.Device))
	}

	pages, err := e.opener.Open(in.Data, in.Format)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Name, err)
	}
	defer pages.Close()

	n := pages.NumPage()
	if n <= 0 {
		return nil, ErrNoPages
	}

	results := make([]pageResult, n)
	batch := atLeastOne(opts.PageBatchSize)
	for start := 0; start < n; start += batch {
		end := min(start+batch, n)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(atLeastOne(opts.PageBatchConcurrency))
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				// errgroup does not carry panics back to Wait.
				defer func() {
					if rec := recover(); rec != nil {
						e.log.Error("page worker panicked",
							zap.Int("page", i+1),
							zap.Any("panic", rec),
							zap.Stack("stack"),
						)
						results[i] = pageResult{no: i + 1, err: fmt.Errorf("page %d: %v", i+1, rec)}
					}
				}()
				results[i] = e.page(gctx, pages, i, opts)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return e.assemble(in, results, opts.TableStructure), nil
}

// docCapacity is how many documents may convert at once: a batch never runs
// more documents in parallel than it holds.
func docCapacity(opts engine.Options) int {
	return min(atLeastOne(opts.DocBatchSize), atLeastOne(opts.DocBatchConcurrency))
}

func (e *Engine) docSlots(n int) *semaphore.Weighted {
	n = atLeastOne(n)
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[n]
	if !ok {
		s = semaphore.NewWeighted(int64(n))
		e.slots[n] = s
	}
	return s
}

// page reads one page: text layer first, OCR when the text layer fails the
// quality check or full-page OCR is forced.
func (e *Engine) page(ctx context.Context, pages extractor.Pages, i int, opts engine.Options) pageResult {
	r := pageResult{no: i + 1, method: methodTextLayer}

	if b, err := pages.Bound(i); err == nil {
		r.width, r.height = float64(b.Dx()), float64(b.Dy())
	}

	raw, err := pages.Text(i)
	if err != nil {
		e.log.Debug("text layer unavailable", zap.Int("page", r.no), zap.Error(err))
	}
	r.text = quality.Normalize(raw)

	if !opts.OCR {
		return r
	}
	if !opts.ForceFullPageOCR {
		a := quality.Assess(r.text, e.cfg.MinWords)
		if !a.NeedsOCR {
			return r
		}
		e.log.Debug("text layer rejected",
			zap.Int("page", r.no),
			zap.Float64("score", a.Score),
			zap.Strings("reasons", a.Reasons),
		)
	}

	res, err := e.recognize(ctx, pages, i, opts)
	switch {
	case err != nil && r.text == "":
		r.err = fmt.Errorf("page %d: %w", r.no, err)
	case err != nil:
		e.log.Warn("ocr failed, keeping text layer", zap.Int("page", r.no), zap.Error(err))
	case res.Text == "":
	case r.text != "" && res.Confidence > 0 && res.Confidence < e.cfg.MinConfidence:
		e.log.Debug("ocr confidence too low, keeping text layer",
			zap.Int("page", r.no),
			zap.Float64("confidence", res.Confidence),
		)
	default:
		e.log.Debug("page recognized", zap.Int("page", r.no), zap.Float64("confidence", res.Confidence))
		r.text = res.Text
		r.method = methodOCR
	}
	return r
}

func (e *Engine) recognize(ctx context.Context, pages extractor.Pages, i int, opts engine.Options) (ocr.Result, error) {
	if e.ocr == nil {
		return ocr.Result{}, errors.New("no ocr backend configured")
	}

	img, err := pages.Render(i, float64(e.cfg.DPI))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("render: %w", err)
	}
	img = image.Scale(img, opts.ImageScale)

	png, err := image.EncodePNG(img)
	if err != nil {
		return ocr.Result{}, err
	}

	dpi := e.cfg.DPI
	if opts.ImageScale > 0 {
		dpi = int(math.Round(float64(dpi) * opts.ImageScale))
	}

	res, err := e.ocr.Recognize(ctx, ocr.Input{
		Page:      i + 1,
		Image:     png,
		Languages: ocr.TesseractLanguages(opts.Languages),
		DPI:       dpi,
	})
	if err != nil {
		return ocr.Result{}, err
	}
	res.Text = quality.Normalize(res.Text)
	return res, nil
}

// assemble builds the document tree from page results in page order.
func (e *Engine) assemble(in engine.Stream, results []pageResult, tables bool) *engine.Result {
	doc := document.New(in.Name, in.MIMEType, in.Data)
	doc.SetPageBreak(e.cfg.PageBreak)

	res := &engine.Result{Status: engine.StatusSuccess, Document: doc}
	titleFree := true
	failed, ocrPages, words := 0, 0, 0

	for _, r := range results {
		doc.AddPage(r.no, r.width, r.height)
		if r.err != nil {
			failed++
			res.Errors = append(res.Errors, engine.ErrorItem{Component: "page", Message: r.err.Error()})
			continue
		}
		if r.method == methodOCR {
			ocrPages++
		}
		words += quality.CountWords(r.text)

		prov := document.Prov{
			PageNo: r.no,
			BBox:   document.BBox{L: 0, T: 0, R: r.width, B: r.height},
		}
		for _, b := range layout(r.text, titleFree, tables) {
			switch b.label {
			case document.LabelTable:
				doc.AddTable(b.rows, prov)
				continue
			case document.LabelTitle:
				titleFree = false
			}
			doc.AddText(b.label, b.text, prov)
		}
	}

	switch {
	case failed == len(results):
		res.Status = engine.StatusFailure
	case failed > 0:
		res.Status = engine.StatusPartialSuccess
	}

	e.log.Debug("document assembled",
		zap.String("name", in.Name),
		zap.Int("pages", len(results)),
		zap.Int("ocr_pages", ocrPages),
		zap.Int("failed_pages", failed),
		zap.Int("words", words),
	)
	return res
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
