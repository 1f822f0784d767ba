// Package document holds the document tree produced by in-process engines.
// The JSON shape follows the docling document schema so clients get the same
// structure regardless of which engine ran.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	SchemaName    = "DoclingDocument"
	SchemaVersion = "1.3.0"
)

// Item labels.
const (
	LabelTitle         = "title"
	LabelSectionHeader = "section_header"
	LabelText          = "text"
	LabelListItem      = "list_item"
	LabelTable         = "table"
)

type Ref struct {
	Ref string `json:"$ref"`
}

type BBox struct {
	L           float64 `json:"l"`
	T           float64 `json:"t"`
	R           float64 `json:"r"`
	B           float64 `json:"b"`
	CoordOrigin string  `json:"coord_origin"`
}

type Prov struct {
	PageNo   int    `json:"page_no"`
	BBox     BBox   `json:"bbox"`
	Charspan [2]int `json:"charspan"`
}

type Origin struct {
	MIMEType   string `json:"mimetype"`
	BinaryHash uint64 `json:"binary_hash"`
	Filename   string `json:"filename"`
}

type Group struct {
	SelfRef      string `json:"self_ref"`
	Children     []Ref  `json:"children"`
	ContentLayer string `json:"content_layer"`
	Name         string `json:"name"`
	Label        string `json:"label"`
}

type TextItem struct {
	SelfRef      string `json:"self_ref"`
	Parent       Ref    `json:"parent"`
	Children     []Ref  `json:"children"`
	ContentLayer string `json:"content_layer"`
	Label        string `json:"label"`
	Prov         []Prov `json:"prov"`
	Orig         string `json:"orig"`
	Text         string `json:"text"`
	Level        int    `json:"level,omitempty"`
}

type TableCell struct {
	Text           string `json:"text"`
	StartRowOffset int    `json:"start_row_offset_idx"`
	EndRowOffset   int    `json:"end_row_offset_idx"`
	StartColOffset int    `json:"start_col_offset_idx"`
	EndColOffset   int    `json:"end_col_offset_idx"`
	ColumnHeader   bool   `json:"column_header"`
	RowHeader      bool   `json:"row_header"`
	RowSpan        int    `json:"row_span"`
	ColSpan        int    `json:"col_span"`
}

type TableData struct {
	NumRows    int         `json:"num_rows"`
	NumCols    int         `json:"num_cols"`
	TableCells []TableCell `json:"table_cells"`
}

type TableItem struct {
	SelfRef      string    `json:"self_ref"`
	Parent       Ref       `json:"parent"`
	Children     []Ref     `json:"children"`
	ContentLayer string    `json:"content_layer"`
	Label        string    `json:"label"`
	Prov         []Prov    `json:"prov"`
	Data         TableData `json:"data"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Page struct {
	Size   Size `json:"size"`
	PageNo int  `json:"page_no"`
}

type Document struct {
	SchemaName string          `json:"schema_name"`
	Version    string          `json:"version"`
	Name       string          `json:"name"`
	Origin     Origin          `json:"origin"`
	Furniture  Group           `json:"furniture"`
	Body       Group           `json:"body"`
	Groups     []Group         `json:"groups"`
	Texts      []TextItem      `json:"texts"`
	Pictures   []any           `json:"pictures"`
	Tables     []TableItem     `json:"tables"`
	KeyValues  []any           `json:"key_value_items"`
	FormItems  []any           `json:"form_items"`
	Pages      map[string]Page `json:"pages"`

	pageBreak string
}

// New starts an empty document for the named upload.
func New(filename, mimeType string, data []byte) *Document {
	base := filepath.Base(filename)
	return &Document{
		SchemaName: SchemaName,
		Version:    SchemaVersion,
		Name:       strings.TrimSuffix(base, filepath.Ext(base)),
		Origin: Origin{
			MIMEType:   mimeType,
			BinaryHash: BinaryHash(data),
			Filename:   base,
		},
		Furniture: Group{SelfRef: "#/furniture", Children: []Ref{}, ContentLayer: "furniture", Name: "_root_", Label: "unspecified"},
		Body:      Group{SelfRef: "#/body", Children: []Ref{}, ContentLayer: "body", Name: "_root_", Label: "unspecified"},
		Groups:    []Group{},
		Texts:     []TextItem{},
		Pictures:  []any{},
		Tables:    []TableItem{},
		KeyValues: []any{},
		FormItems: []any{},
		Pages:     map[string]Page{},
	}
}

// BinaryHash is a stable 64-bit fingerprint of the source bytes.
func BinaryHash(data []byte) uint64 {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint64(sum[:8])
}

// SetPageBreak sets the text inserted between pages by ExportToMarkdown.
// Empty means pages are separated like any other block.
func (d *Document) SetPageBreak(s string) { d.pageBreak = s }

func (d *Document) AddPage(pageNo int, width, height float64) {
	d.Pages[strconv.Itoa(pageNo)] = Page{Size: Size{Width: width, Height: height}, PageNo: pageNo}
}

// AddText appends a text item under the body and returns its reference.
func (d *Document) AddText(label, text string, prov Prov) string {
	ref := fmt.Sprintf("#/texts/%d", len(d.Texts))
	if prov.Charspan == [2]int{} {
		prov.Charspan = [2]int{0, len([]rune(text))}
	}
	if prov.BBox.CoordOrigin == "" {
		prov.BBox.CoordOrigin = "TOPLEFT"
	}
	d.Texts = append(d.Texts, TextItem{
		SelfRef:      ref,
		Parent:       Ref{Ref: d.Body.SelfRef},
		Children:     []Ref{},
		ContentLayer: "body",
		Label:        label,
		Prov:         []Prov{prov},
		Orig:         text,
		Text:         text,
	})
	d.Body.Children = append(d.Body.Children, Ref{Ref: ref})
	return ref
}

// AddTable appends a table given as rows of cell text. The first row is
// marked as the column header.
func (d *Document) AddTable(rows [][]string, prov Prov) string {
	ref := fmt.Sprintf("#/tables/%d", len(d.Tables))
	data := TableData{NumRows: len(rows)}
	for r, row := range rows {
		if len(row) > data.NumCols {
			data.NumCols = len(row)
		}
		for c, txt := range row {
			data.TableCells = append(data.TableCells, TableCell{
				Text:           txt,
				StartRowOffset: r,
				EndRowOffset:   r + 1,
				StartColOffset: c,
				EndColOffset:   c + 1,
				ColumnHeader:   r == 0,
				RowSpan:        1,
				ColSpan:        1,
			})
		}
	}
	if prov.BBox.CoordOrigin == "" {
		prov.BBox.CoordOrigin = "TOPLEFT"
	}
	d.Tables = append(d.Tables, TableItem{
		SelfRef:      ref,
		Parent:       Ref{Ref: d.Body.SelfRef},
		Children:     []Ref{},
		ContentLayer: "body",
		Label:        LabelTable,
		Prov:         []Prov{prov},
		Data:         data,
	})
	d.Body.Children = append(d.Body.Children, Ref{Ref: ref})
	return ref
}

// ExportToDict renders the tree as a nested map, the shape clients receive
// in the "data" field.
func (d *Document) ExportToDict() (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	// Numbers stay json.Number so uint64 hashes survive the round trip.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return out, nil
}
