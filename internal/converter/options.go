package converter

import (
	"strings"

	"github.com/toricodesthings/document-conversion-service/internal/accel"
	"github.com/toricodesthings/document-conversion-service/internal/config"
	"github.com/toricodesthings/document-conversion-service/internal/engine"
)

// BuildOptions turns a preset and the device chosen at startup into the
// pipeline options for one conversion. It never fails: out-of-range knobs
// are clamped, and an accelerator the device cannot provide resolves to CPU.
func BuildOptions(p config.Preset, dev accel.Device) engine.Options {
	pref := accel.ParsePreference(p.Accelerator)
	device := accel.Device{Kind: accel.CPU, Preference: pref}
	if (pref == accel.PreferGPU && dev.Kind == accel.CUDA) || (pref == accel.PreferMetal && dev.Kind == accel.MPS) {
		device.Kind = dev.Kind
	}

	scale := p.ImageScale
	if scale <= 0 {
		scale = 1.0
	}

	output := engine.OutputJSON
	if p.Output == config.OutputMarkdown {
		output = engine.OutputMarkdown
	}

	return engine.Options{
		OCR:                  p.OCR,
		ForceFullPageOCR:     p.ForceFullPageOCR,
		Languages:            languages(p.Languages),
		TableStructure:       p.TableStructure,
		CellMatching:         p.CellMatching,
		ImageScale:           scale,
		Device:               device,
		DocBatchSize:         atLeastOne(p.DocBatchSize),
		DocBatchConcurrency:  atLeastOne(p.DocBatchConcurrency),
		PageBatchSize:        atLeastOne(p.PageBatchSize),
		PageBatchConcurrency: atLeastOne(p.PageBatchConcurrency),
		Output:               output,
	}
}

func languages(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, l := range in {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ParseOutput reads an output override. ok is false for unknown values.
func ParseOutput(s string) (engine.OutputMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "dict", "data":
		return engine.OutputJSON, true
	case "markdown", "md", "text":
		return engine.OutputMarkdown, true
	default:
		return "", false
	}
}
