package commands

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/config"
	"github.com/toricodesthings/document-conversion-service/internal/engine"
	"github.com/toricodesthings/document-conversion-service/internal/engine/docling"
	"github.com/toricodesthings/document-conversion-service/internal/engine/local"
	"github.com/toricodesthings/document-conversion-service/internal/extractor/mupdf"
	"github.com/toricodesthings/document-conversion-service/internal/logging"
	"github.com/toricodesthings/document-conversion-service/internal/ocr/tesseract"
)

type runtimeEnv struct {
	cfg    config.Config
	log    *zap.Logger
	preset config.Preset
	device accel.Device
}

// bootstrap loads configuration, builds the logger and resolves the preset
// and device. The device is chosen here once for the life of the process.
func bootstrap(probe accel.Prober) (*runtimeEnv, error) {
	cfg := config.Load()
	if presetName != "" {
		cfg.Preset = presetName
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return nil, err
	}

	preset, device, err := resolve(presets, cfg.Preset, probe())
	if err != nil {
		return nil, err
	}

	return &runtimeEnv{cfg: cfg, log: log, preset: preset, device: device}, nil
}

// resolve picks the preset and device. "auto" takes the best device the
// host offers and the preset built for it; a named preset gets the device
// it asks for, or CPU when the host cannot provide it.
func resolve(presets config.Presets, name string, probe accel.Probe) (config.Preset, accel.Device, error) {
	if name == "" || name == config.PresetAuto {
		device := accel.Detect(probe)
		preset, err := presets.Get(config.PresetAuto, device.String())
		return preset, device, err
	}

	preset, err := presets.Get(name, "")
	if err != nil {
		return config.Preset{}, accel.Device{}, err
	}
	return preset, accel.Select(accel.ParsePreference(preset.Accelerator), probe), nil
}

func buildEngine(cfg config.Config, log *zap.Logger) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EngineLocal:
		return local.New(mupdf.Opener{}, tesseract.New(), local.Config{
			DPI:           cfg.OCRDPI,
			MinWords:      cfg.OCRMinWords,
			PageBreak:     cfg.MarkdownPageBreak,
			MinConfidence: cfg.OCRMinConfidence,
		}, log), nil
	case config.EngineDocling:
		return docling.New(docling.Config{
			BaseURL:    cfg.DoclingURL,
			APIKey:     cfg.DoclingAPIKey,
			Timeout:    cfg.DoclingTimeout,
			PDFBackend: cfg.DoclingPDFBackend,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
