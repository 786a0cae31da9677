// Package ocr provides OCR (Optical Character Recognition) for table cells.
package ocr

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// Options configures a Tesseract engine.
type Options struct {
	Language string
	// PageSegMode is a Tesseract PSM value; 3 (fully automatic) by default.
	PageSegMode int
	// Whitelist restricts recognised characters when non-empty.
	Whitelist string
	// DisableDictionary turns off dictionary-based word correction, useful
	// for codes and names that are not dictionary words.
	DisableDictionary bool
}

// DefaultOptions returns the English, automatic-segmentation configuration.
func DefaultOptions() Options {
	return Options{
		Language:    "eng",
		PageSegMode: int(gosseract.PSM_AUTO),
	}
}

// Engine provides OCR functionality using Tesseract. An Engine is not safe
// for concurrent use; give each worker its own.
type Engine struct {
	client *gosseract.Client
	opts   Options
}

// NewEngine creates a new OCR engine.
func NewEngine(opts Options) (*Engine, error) {
	client := gosseract.NewClient()

	lang := opts.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}

	if opts.DisableDictionary {
		_ = client.SetVariable("load_system_dawg", "false")
		_ = client.SetVariable("load_freq_dawg", "false")
		_ = client.SetVariable("language_model_penalty_non_dict_word", "0")
		_ = client.SetVariable("language_model_penalty_non_freq_dict_word", "0")
	}

	return &Engine{client: client, opts: opts}, nil
}

// NewEngines creates n independent engines, one per worker. On failure the
// engines created so far are closed.
func NewEngines(n int, opts Options) ([]*Engine, error) {
	engines := make([]*Engine, 0, n)
	for i := 0; i < n; i++ {
		e, err := NewEngine(opts)
		if err != nil {
			CloseAll(engines)
			return nil, err
		}
		engines = append(engines, e)
	}
	return engines, nil
}

// CloseAll closes every engine, returning the first error.
func CloseAll(engines []*Engine) error {
	var first error
	for _, e := range engines {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// Recognize runs OCR on a small, already normalised image and returns the
// text with whitespace collapsed.
func (e *Engine) Recognize(img gocv.Mat) (string, error) {
	if e.client == nil {
		return "", fmt.Errorf("engine closed")
	}

	buf, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	if err := e.client.SetImageFromBytes(buf); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}

	return normalizeText(text), nil
}

// normalizeText trims and collapses runs of whitespace into single spaces.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
