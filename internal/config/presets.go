package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	PresetAuto = "auto"
	PresetCUDA = "cuda"
	PresetCPU  = "cpu"
	PresetMPS  = "mps"
	PresetText = "text"
)

const (
	OutputJSON     = "json"
	OutputMarkdown = "markdown"
)

// Preset is one deployment variant of the conversion pipeline.
type Preset struct {
	Name                 string   `yaml:"name"`
	Accelerator          string   `yaml:"accelerator"` // none | gpu | metal
	OCR                  bool     `yaml:"ocr"`
	ForceFullPageOCR     bool     `yaml:"force_full_page_ocr"`
	Languages            []string `yaml:"languages"`
	TableStructure       bool     `yaml:"table_structure"`
	CellMatching         bool     `yaml:"cell_matching"`
	ImageScale           float64  `yaml:"image_scale"`
	DocBatchSize         int      `yaml:"doc_batch_size"`
	DocBatchConcurrency  int      `yaml:"doc_batch_concurrency"`
	PageBatchSize        int      `yaml:"page_batch_size"`
	PageBatchConcurrency int      `yaml:"page_batch_concurrency"`
	Output               string   `yaml:"output"` // json | markdown
}

type Presets map[string]Preset

func DefaultPresets() Presets {
	return Presets{
		PresetCUDA: {
			Name:                 PresetCUDA,
			Accelerator:          "gpu",
			OCR:                  true,
			Languages:            []string{"en", "id"},
			TableStructure:       true,
			CellMatching:         true,
			ImageScale:           1.0,
			DocBatchSize:         1,
			DocBatchConcurrency:  1,
			PageBatchSize:        4,
			PageBatchConcurrency: 4,
			Output:               OutputJSON,
		},
		PresetCPU: {
			Name:                 PresetCPU,
			Accelerator:          "none",
			OCR:                  true,
			Languages:            []string{"en"},
			TableStructure:       true,
			CellMatching:         true,
			ImageScale:           1.0,
			DocBatchSize:         1,
			DocBatchConcurrency:  1,
			PageBatchSize:        4,
			PageBatchConcurrency: 2,
			Output:               OutputJSON,
		},
		PresetMPS: {
			Name:                 PresetMPS,
			Accelerator:          "metal",
			OCR:                  true,
			Languages:            []string{"en", "id"},
			TableStructure:       true,
			CellMatching:         false,
			ImageScale:           1.0,
			DocBatchSize:         1,
			DocBatchConcurrency:  1,
			PageBatchSize:        4,
			PageBatchConcurrency: 2,
			Output:               OutputJSON,
		},
		PresetText: {
			Name:                 PresetText,
			Accelerator:          "none",
			OCR:                  false,
			Languages:            []string{"en"},
			TableStructure:       false,
			CellMatching:         false,
			ImageScale:           1.0,
			DocBatchSize:         2,
			DocBatchConcurrency:  2,
			PageBatchSize:        4,
			PageBatchConcurrency: 2,
			Output:               OutputMarkdown,
		},
	}
}

// LoadPresets returns the built-in presets, overridden by any entries in
// the YAML file at path. An empty path yields the built-ins.
func LoadPresets(path string) (Presets, error) {
	out := DefaultPresets()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}

	var file struct {
		Presets []Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}

	for _, p := range file.Presets {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return nil, fmt.Errorf("parse presets %s: preset without name", path)
		}
		if name == PresetAuto {
			return nil, fmt.Errorf("parse presets %s: %q is reserved", path, PresetAuto)
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", name, err)
		}
		p.Name = name
		out[name] = p
	}
	return out, nil
}

func (p Preset) validate() error {
	switch strings.ToLower(p.Accelerator) {
	case "", "none", "gpu", "metal":
	default:
		return fmt.Errorf("unknown accelerator %q", p.Accelerator)
	}
	switch strings.ToLower(p.Output) {
	case "", OutputJSON, OutputMarkdown:
	default:
		return fmt.Errorf("unknown output %q", p.Output)
	}
	return nil
}

// Get looks up a preset by name. "auto" picks the preset matching the kind
// of the device selected at startup.
func (ps Presets) Get(name, deviceKind string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == PresetAuto {
		name = AutoPresetName(deviceKind)
	}
	p, ok := ps[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (have %s)", name, strings.Join(ps.Names(), ", "))
	}
	return p, nil
}

func (ps Presets) Names() []string {
	names := make([]string, 0, len(ps))
	for n := range ps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AutoPresetName maps a detected device kind ("cuda", "mps", "cpu") to the
// preset built for it.
func AutoPresetName(deviceKind string) string {
	switch deviceKind {
	case "cuda":
		return PresetCUDA
	case "mps":
		return PresetMPS
	default:
		return PresetCPU
	}
}

// MarshalYAML renders the presets sorted by name, in the same shape
// LoadPresets accepts.
func (ps Presets) MarshalYAML() (any, error) {
	list := make([]Preset, 0, len(ps))
	for _, n := range ps.Names() {
		list = append(list, ps[n])
	}
	return struct {
		Presets []Preset `yaml:"presets"`
	}{Presets: list}, nil
}
