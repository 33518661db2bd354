//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

// Tesseract runs the local Tesseract engine through gosseract. It reads words and
// text lines with their boxes; it has no key-value or paragraph output.
type Tesseract struct {
	cfg    common.OCRConfig
	logger *slog.Logger
}

func NewTesseract(cfg common.OCRConfig, logger *slog.Logger) (*Tesseract, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{cfg: cfg, logger: logger}, nil
}

func (t *Tesseract) Name() string { return common.ProviderTesseract }

// Analyze recognizes a single-page image. PDFs need rasterizing first and are rejected.
func (t *Tesseract) Analyze(ctx context.Context, doc Document) (spatial.Index, error) {
	if constants.MapExtToFormat(doc.Ext()) != constants.IMAGE {
		return spatial.Index{}, common.NewAppError(common.CodeValidation, "tesseract accepts jpg, jpeg or png, got "+doc.Ext(), common.ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return spatial.Index{}, err
	}
	start := time.Now()

	c := gosseract.NewClient()
	defer c.Close()
	if t.cfg.TessdataDir != "" {
		c.TessdataPrefix = t.cfg.TessdataDir
	}
	if err := c.SetLanguage(t.cfg.Language); err != nil {
		return spatial.Index{}, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(doc.Data); err != nil {
		return spatial.Index{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return spatial.Index{}, fmt.Errorf("recognize text: %w", err)
	}

	ix := spatial.Empty()
	ix.Content = CleanText(text)

	words, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return spatial.Index{}, fmt.Errorf("word boxes: %w", err)
	}
	for _, b := range words {
		ix.Words = append(ix.Words, spatial.Word{
			Content:    b.Word,
			Confidence: spatial.Float(b.Confidence / 100.0),
			PageNumber: 1,
			Points:     boxPoints(b),
		})
	}

	lines, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return spatial.Index{}, fmt.Errorf("line boxes: %w", err)
	}
	for _, b := range lines {
		ix.Lines = append(ix.Lines, spatial.Line{
			Content:    CleanText(b.Word),
			Confidence: spatial.Float(b.Confidence / 100.0),
			PageNumber: 1,
			Points:     boxPoints(b),
		})
	}

	t.logger.Info("ocr.tesseract.complete",
		"document", doc.Name,
		"words", len(ix.Words),
		"lines", len(ix.Lines),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ix, nil
}

func boxPoints(b gosseract.BoundingBox) []float64 {
	return spatial.NormalizeBBox([]float64{
		float64(b.Box.Min.X), float64(b.Box.Min.Y),
		float64(b.Box.Dx()), float64(b.Box.Dy()),
	})
}
