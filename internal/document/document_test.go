package document

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Document {
	d := New("/tmp/uploads/report.pdf", "application/pdf", []byte("%PDF-1.4"))
	d.AddPage(1, 612, 792)
	d.AddPage(2, 612, 792)
	d.AddText(LabelTitle, "Quarterly Report", Prov{PageNo: 1})
	d.AddText(LabelText, "Revenue grew.", Prov{PageNo: 1})
	d.AddTable([][]string{{"Region", "Q1"}, {"EU", "1|2"}}, Prov{PageNo: 2})
	d.AddText(LabelListItem, "follow up", Prov{PageNo: 2})
	return d
}

func TestExportToDict(t *testing.T) {
	d := sample()

	out, err := d.ExportToDict()
	require.NoError(t, err)

	assert.Equal(t, SchemaName, out["schema_name"])
	assert.Equal(t, "report", out["name"])

	origin := out["origin"].(map[string]any)
	assert.Equal(t, "report.pdf", origin["filename"])
	assert.Equal(t, "application/pdf", origin["mimetype"])
	assert.Equal(t, json.Number(strconv.FormatUint(BinaryHash([]byte("%PDF-1.4")), 10)), origin["binary_hash"])

	texts := out["texts"].([]any)
	require.Len(t, texts, 3)
	first := texts[0].(map[string]any)
	assert.Equal(t, "#/texts/0", first["self_ref"])
	assert.Equal(t, "Quarterly Report", first["text"])

	body := out["body"].(map[string]any)
	assert.Len(t, body["children"].([]any), 4)

	pages := out["pages"].(map[string]any)
	assert.Contains(t, pages, "1")
	assert.Contains(t, pages, "2")

	tables := out["tables"].([]any)
	require.Len(t, tables, 1)
	data := tables[0].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, json.Number("2"), data["num_rows"])
	assert.Equal(t, json.Number("2"), data["num_cols"])
}

func TestExportToDictEmptyDocument(t *testing.T) {
	out, err := New("blank.pdf", "application/pdf", nil).ExportToDict()
	require.NoError(t, err)
	assert.Empty(t, out["texts"])
	assert.NotNil(t, out["texts"], "empty lists serialize as [] not null")
}

func TestExportToMarkdown(t *testing.T) {
	md, err := sample().ExportToMarkdown()
	require.NoError(t, err)

	want := "# Quarterly Report\n\n" +
		"Revenue grew.\n\n" +
		"| Region | Q1 |\n| --- | --- |\n| EU | 1\\|2 |\n\n" +
		"- follow up"
	assert.Equal(t, want, md)
}

func TestExportToMarkdownPageBreak(t *testing.T) {
	d := sample()
	d.SetPageBreak("<!-- page break -->")

	md, err := d.ExportToMarkdown()
	require.NoError(t, err)
	assert.Contains(t, md, "Revenue grew.\n\n<!-- page break -->\n\n| Region")
	assert.NotContains(t, md, "Report\n\n<!-- page break -->")
}

func TestExportToMarkdownSkipsBlankBlocks(t *testing.T) {
	d := New("a.pdf", "application/pdf", nil)
	d.AddText(LabelText, "   ", Prov{PageNo: 1})
	d.AddText(LabelSectionHeader, "Scope", Prov{PageNo: 1})

	md, err := d.ExportToMarkdown()
	require.NoError(t, err)
	assert.Equal(t, "## Scope", md)
}

func TestExportToMarkdownDanglingRef(t *testing.T) {
	d := New("a.pdf", "application/pdf", nil)
	d.Body.Children = append(d.Body.Children, Ref{Ref: "#/texts/7"})

	_, err := d.ExportToMarkdown()
	assert.Error(t, err)
}

func TestExportToDictKeepsLargeHashes(t *testing.T) {
	for _, in := range []string{"%PDF-1.4", "%PDF-1.7 scanned invoice", "\x89PNG\r\n\x1a\n"} {
		want := BinaryHash([]byte(in))

		out, err := New("a.pdf", "application/pdf", []byte(in)).ExportToDict()
		require.NoError(t, err)
		got := out["origin"].(map[string]any)["binary_hash"].(json.Number)
		n, err := strconv.ParseUint(got.String(), 10, 64)
		require.NoError(t, err)
		assert.Equal(t, want, n)

		// and survives the response encoding
		body, err := json.Marshal(out)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"binary_hash":`+strconv.FormatUint(want, 10))
	}
}

func TestBinaryHashStable(t *testing.T) {
	assert.Equal(t, BinaryHash([]byte("abc")), BinaryHash([]byte("abc")))
	assert.NotEqual(t, BinaryHash([]byte("abc")), BinaryHash([]byte("abd")))
}
