// Package ocr turns provider-specific document analysis results into a spatial.Index.
//
// Each provider owns its own response types and a pure Normalize function; Analyze
// wraps the network (or local engine) call around it. All providers emit the same
// canonical shape, so callers only ever see spatial.Index.
package ocr

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

// ErrOCRNotEnabled is returned by the local Tesseract provider when the binary was
// built without the "ocr" tag.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// UserAgent identifies this service to providers that accept a caller header.
const UserAgent = "polygon-locator/1.0"

// Document is one file submitted for analysis.
type Document struct {
	Name string
	Data []byte
}

// Ext is the normalized file extension, e.g. "pdf".
func (d Document) Ext() string {
	return constants.NormalizeExt(filepath.Ext(d.Name))
}

// Analyzer produces the spatial index of a document.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, doc Document) (spatial.Index, error)
}

// New builds the analyzer selected by cfg.OCR.Provider. Missing credentials are
// reported here, before any network call. opts only apply to Mistral.
func New(cfg *common.Config, logger *slog.Logger, opts ...MistralOption) (Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		a   Analyzer
		err error
	)
	switch cfg.OCR.Provider {
	case common.ProviderDocIntel, "":
		a, err = NewDocIntel(cfg.DocIntel, logger)
	case common.ProviderMistral:
		a, err = NewMistral(cfg.Mistral, logger, opts...)
	case common.ProviderTesseract:
		a, err = NewTesseract(cfg.OCR, logger)
	default:
		return nil, common.ConfigError("unknown OCR provider %q", cfg.OCR.Provider)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
