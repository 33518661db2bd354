//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
)

func TestTesseractNotEnabled(t *testing.T) {
	if _, err := NewTesseract(common.OCRConfig{}, nil); !errors.Is(err, ErrOCRNotEnabled) {
		t.Fatalf("NewTesseract err = %v", err)
	}
	if _, err := New(&common.Config{OCR: common.OCRConfig{Provider: common.ProviderTesseract}}, nil); !errors.Is(err, ErrOCRNotEnabled) {
		t.Fatalf("New err = %v", err)
	}
	var tess *Tesseract
	if _, err := tess.Analyze(context.Background(), Document{}); !errors.Is(err, ErrOCRNotEnabled) {
		t.Fatalf("Analyze err = %v", err)
	}
}
