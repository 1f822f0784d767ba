// Package converter runs one upload through the configured engine and maps
// every outcome onto a types.Result.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/config"
	"github.com/toricodesthings/document-conversion-service/internal/engine"
	"github.com/toricodesthings/document-conversion-service/internal/format"
	"github.com/toricodesthings/document-conversion-service/internal/types"
)

var ErrEmptyDocument = errors.New("engine returned no document")

type Service struct {
	engine  engine.Engine
	preset  config.Preset
	device  accel.Device
	timeout time.Duration
	log     *zap.Logger

	reclaim func() // runs before every engine call
}

// New binds an engine to a preset. device is the one selected at startup;
// timeout of zero lets the engine run to completion.
func New(e engine.Engine, preset config.Preset, device accel.Device, timeout time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		engine:  e,
		preset:  preset,
		device:  device,
		timeout: timeout,
		log:     log.Named("converter"),
		reclaim: device.Reclaim,
	}
}

func (s *Service) Device() accel.Device { return s.device }

func (s *Service) Preset() config.Preset { return s.preset }

func (s *Service) EngineVersion(ctx context.Context) string {
	return s.engine.Name() + " " + s.engine.Version(ctx)
}

// Convert runs the document through the engine with the preset's output mode.
func (s *Service) Convert(ctx context.Context, filename string, r io.Reader) types.Result {
	return s.ConvertAs(ctx, filename, r, "")
}

// ConvertAs is Convert with an output override; an empty mode keeps the
// preset's.
func (s *Service) ConvertAs(ctx context.Context, filename string, r io.Reader, mode engine.OutputMode) (res types.Result) {
	id := uuid.NewString()
	log := s.log.With(zap.String("conversion_id", id), zap.String("filename", filename))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("conversion panicked", zap.Any("panic", rec), zap.Stack("stack"))
			res = types.ErrorResult(fmt.Sprint(rec))
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		log.Error("read upload", zap.Error(err))
		return types.ErrorResult(fmt.Sprintf("read upload: %v", err))
	}

	in, mime, ok := format.Detect(data, filename)
	if !ok {
		in, mime = format.PDF, "application/pdf"
	}

	opts := BuildOptions(s.preset, s.device)
	if mode != "" {
		opts.Output = mode
	}

	log.Info("conversion started",
		zap.String("engine", s.engine.Name()),
		zap.String("preset", s.preset.Name),
		zap.String("format", string(in)),
		zap.Int("bytes", len(data)),
		zap.Bool("ocr", opts.OCR),
		zap.Bool("force_full_page_ocr", opts.ForceFullPageOCR),
		zap.Strings("ocr_languages", opts.Languages),
		zap.Bool("table_structure", opts.TableStructure),
		zap.Stringer("device", opts.Device),
		zap.String("output", string(opts.Output)),
	)

	s.reclaim()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.engine.Convert(ctx, engine.Stream{Name: filename, Format: in, MIMEType: mime, Data: data}, opts)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && s.timeout > 0 {
			err = fmt.Errorf("conversion timed out after %s", s.timeout)
		}
		log.Warn("conversion failed", zap.Duration("duration", elapsed), zap.Error(err))
		return types.ErrorResult(err.Error())
	}

	res = export(out, opts.Output)
	if res.Failed() {
		log.Warn("conversion failed",
			zap.Duration("duration", elapsed),
			zap.String("status", string(statusOf(out))),
			zap.String("error", res.ErrorMessage()),
		)
		return res
	}

	log.Info("conversion finished",
		zap.Duration("duration", elapsed),
		zap.String("status", string(out.Status)),
	)
	return res
}

// export maps an engine result onto the response union. Any reported error
// wins over partial output.
func export(out *engine.Result, mode engine.OutputMode) types.Result {
	if out == nil {
		return types.ErrorResult(ErrEmptyDocument.Error())
	}
	if len(out.Errors) > 0 {
		return types.ErrorResult(out.Errors[0].Message)
	}
	if out.Status == engine.StatusFailure {
		return types.ErrorResult("")
	}
	if out.Document == nil {
		return types.ErrorResult(ErrEmptyDocument.Error())
	}

	if mode == engine.OutputMarkdown {
		md, err := out.Document.ExportToMarkdown()
		if err != nil {
			return types.ErrorResult(err.Error())
		}
		return types.TextResult(md)
	}

	dict, err := out.Document.ExportToDict()
	if err != nil {
		return types.ErrorResult(err.Error())
	}
	return types.DataResult(dict)
}

func statusOf(out *engine.Result) engine.Status {
	if out == nil {
		return engine.StatusFailure
	}
	return out.Status
}
