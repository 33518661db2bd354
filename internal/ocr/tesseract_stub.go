//go:build !ocr

package ocr

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

// Tesseract is the stand-in used when the binary is built without the "ocr" tag.
// To enable local OCR, rebuild with:
//
//	go build -tags ocr
//
// which requires the Tesseract libraries to be installed.
type Tesseract struct{}

// NewTesseract returns ErrOCRNotEnabled.
func NewTesseract(common.OCRConfig, *slog.Logger) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

func (*Tesseract) Name() string { return common.ProviderTesseract }

func (*Tesseract) Analyze(context.Context, Document) (spatial.Index, error) {
	return spatial.Index{}, ErrOCRNotEnabled
}
