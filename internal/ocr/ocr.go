// Package ocr is the seam between the local engine and an OCR backend.
package ocr

import (
	"context"
	"regexp"
	"strings"
)

// Input is one page image to recognize.
type Input struct {
	Page      int // 1-indexed
	Image     []byte
	Languages []string // Tesseract codes, see TesseractLanguages
	DPI       int
}

type Result struct {
	Page       int
	Text       string
	Confidence float64 // 0..1, zero when the backend reports none
}

// Recognizer runs OCR over a single page image. Implementations must be
// safe for concurrent use.
type Recognizer interface {
	Name() string
	Version() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// ISO 639-1 codes used in presets mapped to Tesseract traineddata names.
var tesseractCodes = map[string]string{
	"en": "eng", "id": "ind", "ms": "msa", "de": "deu", "fr": "fra",
	"es": "spa", "it": "ita", "pt": "por", "nl": "nld", "pl": "pol",
	"ru": "rus", "uk": "ukr", "tr": "tur", "ar": "ara", "hi": "hin",
	"th": "tha", "vi": "vie", "ja": "jpn", "ko": "kor",
	"zh": "chi_sim", "ch_sim": "chi_sim", "ch_tra": "chi_tra",
}

// TesseractLanguages maps preset language codes to Tesseract names,
// keeping order and dropping duplicates. Unknown codes pass through so
// installed traineddata can be named directly.
func TesseractLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if mapped, ok := tesseractCodes[l]; ok {
			l = mapped
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

var (
	zeroWidthChars     = regexp.MustCompile("[\u200B-\u200D\uFEFF\u00AD\u2060]")
	standaloneImgName  = regexp.MustCompile(`(?mi)^[\w-]*(?:img|image|figure|fig|photo|pic)[\w-]*\.(jpeg|jpg|png|gif|webp|svg|bmp|tiff?)[ \t]*$`)
	standaloneFileName = regexp.MustCompile(`(?mi)^[\w-]+\.(jpeg|jpg|png|gif|webp|svg|bmp|tiff?)[ \t]*$`)
	excessiveNewlines  = regexp.MustCompile(`\n{4,}`)
	trailingSpaces     = regexp.MustCompile(`(?m)[ \t]+$`)
)

// CleanText applies light cleanup to raw OCR output:
//   - strips zero-width and soft-hyphen characters
//   - drops lines that are only an image filename
//   - normalises line endings and caps blank-line runs
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = zeroWidthChars.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = standaloneImgName.ReplaceAllString(text, "")
	text = standaloneFileName.ReplaceAllString(text, "")
	text = trailingSpaces.ReplaceAllString(text, "")
	text = excessiveNewlines.ReplaceAllString(text, "\n\n\n")

	return strings.TrimSpace(text)
}
