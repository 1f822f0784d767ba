package document

import (
	"fmt"
	"strconv"
	"strings"
)

type block struct {
	page int
	text string
}

// ExportToMarkdown walks the body in reading order. Blocks are separated by
// a blank line; when a page break is set it is written between pages.
func (d *Document) ExportToMarkdown() (string, error) {
	blocks := make([]block, 0, len(d.Body.Children))
	for _, child := range d.Body.Children {
		b, err := d.renderRef(child.Ref)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(b.text) == "" {
			continue
		}
		blocks = append(blocks, b)
	}
	return combine(blocks, d.pageBreak), nil
}

func combine(blocks []block, pageBreak string) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
			if pageBreak != "" && blk.page != blocks[i-1].page {
				b.WriteString(pageBreak)
				b.WriteString("\n\n")
			}
		}
		b.WriteString(strings.TrimSpace(blk.text))
	}
	return strings.TrimSpace(b.String())
}

func (d *Document) renderRef(ref string) (block, error) {
	kind, idx, err := parseRef(ref)
	if err != nil {
		return block{}, err
	}
	switch kind {
	case "texts":
		if idx >= len(d.Texts) {
			return block{}, fmt.Errorf("dangling reference %s", ref)
		}
		it := d.Texts[idx]
		return block{page: firstPage(it.Prov), text: renderText(it)}, nil
	case "tables":
		if idx >= len(d.Tables) {
			return block{}, fmt.Errorf("dangling reference %s", ref)
		}
		it := d.Tables[idx]
		return block{page: firstPage(it.Prov), text: renderTable(it.Data)}, nil
	default:
		return block{}, fmt.Errorf("unsupported reference %s", ref)
	}
}

func parseRef(ref string) (string, int, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed reference %q", ref)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("malformed reference %q", ref)
	}
	return parts[0], idx, nil
}

func firstPage(prov []Prov) int {
	if len(prov) == 0 {
		return 0
	}
	return prov[0].PageNo
}

func renderText(it TextItem) string {
	txt := strings.TrimSpace(it.Text)
	switch it.Label {
	case LabelTitle:
		return "# " + txt
	case LabelSectionHeader:
		level := it.Level
		if level < 1 {
			level = 1
		}
		return strings.Repeat("#", level+1) + " " + txt
	case LabelListItem:
		return "- " + txt
	default:
		return txt
	}
}

func renderTable(t TableData) string {
	if t.NumRows == 0 || t.NumCols == 0 {
		return ""
	}
	grid := make([][]string, t.NumRows)
	for r := range grid {
		grid[r] = make([]string, t.NumCols)
	}
	for _, c := range t.TableCells {
		if c.StartRowOffset < t.NumRows && c.StartColOffset < t.NumCols {
			grid[c.StartRowOffset][c.StartColOffset] = escapeCell(c.Text)
		}
	}

	var b strings.Builder
	for r, row := range grid {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if r == 0 {
			seps := make([]string, t.NumCols)
			for i := range seps {
				seps[i] = "---"
			}
			b.WriteString("| " + strings.Join(seps, " | ") + " |\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
