package local

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/toricodesthings/document-conversion-service/internal/document"
)

// Longest single line still treated as a heading.
const maxHeadingWords = 10

type block struct {
	label string
	text  string
	rows  [][]string // tables only
}

// layout splits normalized page text into labelled blocks. titleFree is true
// while the document has no title yet. With tables set, pipe-delimited grids
// become table blocks.
func layout(text string, titleFree, tables bool) []block {
	var out []block
	for _, para := range strings.Split(text, "\n\n") {
		lines := nonEmptyLines(para)
		if len(lines) == 0 {
			continue
		}

		if tables {
			if rows := grid(lines); rows != nil {
				out = append(out, block{label: document.LabelTable, rows: rows})
				continue
			}
		}

		if allBullets(lines) {
			for _, ln := range lines {
				out = append(out, block{label: document.LabelListItem, text: stripBullet(ln)})
			}
			continue
		}

		if len(lines) == 1 && isHeading(lines[0]) {
			if titleFree && len(out) == 0 {
				out = append(out, block{label: document.LabelTitle, text: lines[0]})
				titleFree = false
				continue
			}
			out = append(out, block{label: document.LabelSectionHeader, text: lines[0]})
			continue
		}

		out = append(out, block{label: document.LabelText, text: joinLines(lines)})
	}
	return out
}

// grid parses lines of "a | b | c" cells. All rows must have the same number
// of cells, at least two; markdown separator rows are dropped.
func grid(lines []string) [][]string {
	if len(lines) < 2 {
		return nil
	}
	var rows [][]string
	for _, ln := range lines {
		if !strings.Contains(ln, "|") {
			return nil
		}
		cells := strings.Split(strings.Trim(ln, "|"), "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if len(cells) < 2 || (len(rows) > 0 && len(cells) != len(rows[0])) {
			return nil
		}
		if separatorRow(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) < 2 {
		return nil
	}
	return rows
}

func separatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, ":-") != "" || !strings.Contains(c, "-") {
			return false
		}
	}
	return true
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func isHeading(ln string) bool {
	words := strings.Fields(ln)
	if len(words) == 0 || len(words) > maxHeadingWords {
		return false
	}
	first, _ := utf8.DecodeRuneInString(ln)
	if !unicode.IsUpper(first) && !unicode.IsDigit(first) {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(ln)
	return !strings.ContainsRune(".,;:!?", last)
}

func allBullets(lines []string) bool {
	for _, ln := range lines {
		if bulletLen(ln) == 0 {
			return false
		}
	}
	return true
}

// bulletLen is the byte length of the list marker prefix of ln, including
// the space after it, or 0 when ln is not a list item.
func bulletLen(ln string) int {
	r, size := utf8.DecodeRuneInString(ln)
	switch r {
	case '•', '◦', '▪', '-', '*', '–':
		if strings.HasPrefix(ln[size:], " ") {
			return size + 1
		}
		return 0
	}

	i := 0
	for i < len(ln) && i < 3 && ln[i] >= '0' && ln[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(ln) {
		return 0
	}
	if (ln[i] == '.' || ln[i] == ')') && ln[i+1] == ' ' {
		return i + 2
	}
	return 0
}

func stripBullet(ln string) string {
	return strings.TrimSpace(ln[bulletLen(ln):])
}

// joinLines reflows a paragraph, rejoining words hyphenated across lines.
func joinLines(lines []string) string {
	var b strings.Builder
	for i, ln := range lines {
		if i > 0 {
			prev := lines[i-1]
			next, _ := utf8.DecodeRuneInString(ln)
			if strings.HasSuffix(prev, "-") && unicode.IsLower(next) {
				s := b.String()
				b.Reset()
				b.WriteString(strings.TrimSuffix(s, "-"))
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(ln)
	}
	return b.String()
}
