// Package quality judges whether a page's embedded text layer is usable or
// the page has to go through OCR.
package quality

import (
	"math"
	"strings"
	"unicode"
)

// Assessment is the verdict for one page of text.
type Assessment struct {
	Score    float64
	NeedsOCR bool
	Reasons  []string
	Words    int
}

// signals are the raw measurements a verdict is computed from.
type signals struct {
	words       int
	alpha       float64
	digit       float64
	punct       float64
	space       float64
	garbage     float64
	shortLines  float64
	avgLineLen  float64
	uniqueWords float64
	singleChars float64
	bullets     float64
	runs        bool
	formulaic   bool
}

// Threshold below which a page is sent to OCR.
const Threshold = 0.5

func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Assess scores text in [0,1]. minWords is the word count a healthy page is
// expected to reach.
func Assess(text string, minWords int) Assessment {
	clean := Normalize(text)
	if clean == "" {
		return Assessment{NeedsOCR: true, Reasons: []string{"empty_text"}}
	}

	s := measure(clean)
	score := 1.0
	var reasons []string
	penalize := func(reason string, amount float64) {
		score -= amount
		reasons = append(reasons, reason)
	}
	reward := func(reason string, amount float64) {
		score += amount
		reasons = append(reasons, reason)
	}

	structured := s.bullets > 0.3 || s.formulaic

	if s.words < minWords {
		p := 0.45
		if s.words < minWords/2 {
			p = 0.60
		}
		if structured {
			p /= 2
		}
		penalize("low_word_count", p)
	}
	if s.alpha < 0.25 {
		p := 0.35
		if s.alpha < 0.15 {
			p = 0.50
		}
		if s.digit > 0.20 {
			p *= 0.6
		}
		penalize("low_alpha_ratio", p)
	}
	if s.garbage > 0.01 {
		penalize("garbage_chars", math.Min(0.50, s.garbage*50))
	}
	if s.shortLines > 0.75 && s.avgLineLen < 12 && s.alpha < 0.40 {
		penalize("fragmented_lines", 0.25)
	}
	if s.words > 50 && s.uniqueWords < 0.20 {
		penalize("low_unique_words", 0.15)
	}
	if s.runs {
		penalize("repeated_patterns", 0.20)
	}
	if s.singleChars > 0.30 {
		penalize("scrambled_text", 0.25)
	}
	if s.punct > 0.50 && s.alpha < 0.20 {
		penalize("excessive_punctuation", 0.20)
	}
	if s.space > 0.60 || (s.words > 10 && s.space < 0.05) {
		penalize("abnormal_spacing", 0.15)
	}

	if s.digit > 0.25 && s.alpha > 0.15 && s.words >= minWords/2 {
		reward("numeric_heavy", 0.10)
	}
	if s.alpha > 0.60 && s.words >= minWords && s.uniqueWords > 0.30 {
		reward("good_prose", 0.10)
	}
	if s.bullets > 0.2 || s.formulaic {
		reward("structured_content", 0.15)
	}
	if s.alpha > 0.40 && s.digit > 0.10 && s.words >= minWords {
		reward("mixed_content", 0.10)
	}

	score = math.Max(0, math.Min(1, score))
	return Assessment{
		Score:    score,
		NeedsOCR: score < Threshold,
		Reasons:  reasons,
		Words:    s.words,
	}
}

// Normalize unifies line endings, collapses runs of spaces inside lines and
// caps blank-line runs at one.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := 0
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func measure(clean string) signals {
	var total, alpha, digit, punct, space, garbage float64
	var run int
	var last rune
	s := signals{}
	for _, r := range clean {
		total++
		switch {
		case unicode.IsLetter(r):
			alpha++
		case unicode.IsDigit(r):
			digit++
		case unicode.IsSpace(r):
			space++
		case unicode.IsPunct(r):
			punct++
		}
		if r == '\uFFFD' || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			garbage++
		}
		if r == last {
			run++
			if run >= 5 {
				s.runs = true
			}
		} else {
			run, last = 1, r
		}
	}

	words := strings.Fields(clean)
	s.words = len(words)
	s.alpha = alpha / total
	s.digit = digit / total
	s.punct = punct / total
	s.space = space / total
	s.garbage = garbage / total

	seen := make(map[string]struct{}, len(words))
	single := 0
	for _, w := range words {
		seen[strings.ToLower(w)] = struct{}{}
		if len([]rune(w)) == 1 {
			single++
		}
	}
	if len(words) > 0 {
		s.uniqueWords = float64(len(seen)) / float64(len(words))
		s.singleChars = float64(single) / float64(len(words))
	}

	var lines []string
	for _, ln := range strings.Split(clean, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	s.avgLineLen, s.shortLines, s.bullets = lineShape(lines)
	s.formulaic = formulaic(clean)
	return s
}

func lineShape(lines []string) (avg, short, bullets float64) {
	if len(lines) == 0 {
		return 0, 0, 0
	}
	var sum, nShort, nBullet int
	for _, ln := range lines {
		rs := []rune(ln)
		sum += len(rs)
		if len(rs) < 15 {
			nShort++
		}
		if isBullet(rs) {
			nBullet++
		}
	}
	n := float64(len(lines))
	return float64(sum) / n, float64(nShort) / n, float64(nBullet) / n
}

func isBullet(rs []rune) bool {
	switch rs[0] {
	case '•', '◦', '▪', '–', '-':
		return true
	}
	return len(rs) > 2 && (unicode.IsDigit(rs[0]) || unicode.IsLetter(rs[0])) && rs[1] == '.'
}

var mathSymbols = []string{
	"=", "≈", "≠", "±", "×", "÷", "∑", "∫", "∂", "√",
	"α", "β", "γ", "θ", "λ", "π", "σ", "Δ", "Ω",
	"∈", "∉", "⊂", "⊃", "∪", "∩", "∀", "∃",
}

// formulaic spots math or code, where short lines and symbols are normal.
func formulaic(text string) bool {
	distinct := 0
	for _, sym := range mathSymbols {
		if strings.Contains(text, sym) {
			distinct++
			if distinct >= 3 {
				return true
			}
		}
	}
	if len(text) <= 100 {
		return false
	}
	if strings.Count(text, "=") > 5 {
		return true
	}
	return strings.Count(text, "{")+strings.Count(text, "[")+strings.Count(text, "(") > 10
}
