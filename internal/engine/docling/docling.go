// Package docling converts documents through a docling-serve deployment.
package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toricodesthings/document-conversion-service/internal/engine"
)

const Name = "docling"

var ErrNoDocument = errors.New("docling-serve returned no document")

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	PDFBackend string // dlparse_v4, pypdfium2, ...
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named("docling"),
	}
}

func (c *Client) Name() string { return Name }

// Version asks the server for its version, falling back to the engine name.
func (c *Client) Version(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/version", nil)
	if err != nil {
		return "docling-serve"
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "docling-serve"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "docling-serve"
	}

	var versions map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&versions); err != nil {
		return "docling-serve"
	}
	for _, key := range []string{"docling-serve", "docling"} {
		if v, ok := versions[key].(string); ok && v != "" {
			return key + " " + v
		}
	}
	return "docling-serve"
}

type convertResponse struct {
	Document struct {
		Filename    string         `json:"filename"`
		MDContent   *string        `json:"md_content"`
		JSONContent map[string]any `json:"json_content"`
	} `json:"document"`
	Status         string     `json:"status"`
	Errors         []errorDoc `json:"errors"`
	ProcessingTime float64    `json:"processing_time"`
}

type errorDoc struct {
	ComponentType string `json:"component_type"`
	ModuleName    string `json:"module_name"`
	ErrorMessage  string `json:"error_message"`
}

func (c *Client) Convert(ctx context.Context, in engine.Stream, opts engine.Options) (*engine.Result, error) {
	body, contentType, err := c.form(in, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/convert/file", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docling-serve request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("docling-serve error %d: %s", resp.StatusCode, detail(slurp))
	}

	var parsed convertResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode docling-serve response: %w", err)
	}

	c.log.Debug("docling-serve conversion",
		zap.String("name", in.Name),
		zap.String("status", parsed.Status),
		zap.Float64("processing_time", parsed.ProcessingTime),
	)

	res := &engine.Result{Status: status(parsed.Status)}
	for _, e := range parsed.Errors {
		res.Errors = append(res.Errors, engine.ErrorItem{Component: e.ComponentType, Message: e.ErrorMessage})
	}
	if res.Status == engine.StatusFailure && len(res.Errors) == 0 {
		res.Errors = []engine.ErrorItem{{Component: Name, Message: "conversion " + parsed.Status}}
	}
	if len(res.Errors) > 0 {
		return res, nil
	}

	if parsed.Document.JSONContent == nil && parsed.Document.MDContent == nil {
		return nil, ErrNoDocument
	}
	res.Document = &remoteDocument{dict: parsed.Document.JSONContent, markdown: parsed.Document.MDContent}
	return res, nil
}

func (c *Client) form(in engine.Stream, opts engine.Options) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("files", in.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(in.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"to_formats", toFormat(opts.Output)},
		{"do_ocr", strconv.FormatBool(opts.OCR)},
		{"force_ocr", strconv.FormatBool(opts.ForceFullPageOCR)},
		{"do_table_structure", strconv.FormatBool(opts.TableStructure)},
		{"table_cell_matching", strconv.FormatBool(opts.CellMatching)},
		{"include_images", "false"},
		{"image_export_mode", "placeholder"},
	}
	if opts.ImageScale > 0 {
		fields = append(fields, [2]string{"images_scale", strconv.FormatFloat(opts.ImageScale, 'f', -1, 64)})
	}
	if c.cfg.PDFBackend != "" {
		fields = append(fields, [2]string{"pdf_backend", c.cfg.PDFBackend})
	}
	for _, l := range opts.Languages {
		fields = append(fields, [2]string{"ocr_lang", l})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}
}

func toFormat(m engine.OutputMode) string {
	if m == engine.OutputMarkdown {
		return "md"
	}
	return "json"
}

func status(s string) engine.Status {
	switch s {
	case "success":
		return engine.StatusSuccess
	case "partial_success":
		return engine.StatusPartialSuccess
	default:
		return engine.StatusFailure
	}
}

// detail pulls the FastAPI "detail" message out of an error body.
func detail(body []byte) string {
	var e struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil {
		if s, ok := e.Detail.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(body))
}

type remoteDocument struct {
	dict     map[string]any
	markdown *string
}

func (d *remoteDocument) ExportToDict() (map[string]any, error) {
	if d.dict == nil {
		return nil, fmt.Errorf("%w: json content not requested", ErrNoDocument)
	}
	return d.dict, nil
}

func (d *remoteDocument) ExportToMarkdown() (string, error) {
	if d.markdown == nil {
		return "", fmt.Errorf("%w: markdown content not requested", ErrNoDocument)
	}
	return *d.markdown, nil
}
