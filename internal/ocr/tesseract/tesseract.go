// Package tesseract implements ocr.Recognizer with gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"github.com/toricodesthings/document-conversion-service/internal/ocr"
)

// Recognizer opens one gosseract client per call; a client is not safe for
// concurrent use, the Recognizer is.
type Recognizer struct {
	newClient func() *gosseract.Client
	variables map[string]string
}

func New() *Recognizer {
	return &Recognizer{
		newClient: gosseract.NewClient,
		variables: map[string]string{
			"tessedit_ocr_engine_mode":  "1", // LSTM only
			"tessedit_pageseg_mode":     "3", // automatic page segmentation
			"preserve_interword_spaces": "1",
		},
	}
}

func (r *Recognizer) Name() string { return "tesseract" }

func (r *Recognizer) Version() string { return gosseract.Version() }

func (r *Recognizer) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	c := r.newClient()
	defer c.Close()

	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range r.variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", strconv.Itoa(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize page %d: %w", in.Page, err)
	}

	return ocr.Result{
		Page:       in.Page,
		Text:       ocr.CleanText(text),
		Confidence: meanConfidence(c),
	}, nil
}

func meanConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100
}
