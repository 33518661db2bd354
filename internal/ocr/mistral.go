package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

const (
	mistralProvider     = "Mistral Document AI"
	DefaultMistralModel = "mistral-document-ai-2505"
	mistralTimeout      = 300 * time.Second
)

// Mistral analyzes documents with Mistral Document AI. Documents are sent inline as
// data URLs.
type Mistral struct {
	cfg    common.MistralConfig
	schema json.RawMessage
	logger *slog.Logger
}

type MistralOption func(*Mistral)

// WithAnnotationSchema asks the service to annotate bounding boxes against schema.
func WithAnnotationSchema(schema json.RawMessage) MistralOption {
	return func(m *Mistral) { m.schema = schema }
}

func NewMistral(cfg common.MistralConfig, logger *slog.Logger, opts ...MistralOption) (*Mistral, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultMistralModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = mistralTimeout
	}
	m := &Mistral{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Mistral) Name() string { return common.ProviderMistral }

// Payload builds the request body for doc.
func (m *Mistral) Payload(doc Document) map[string]any {
	dataURL, urlType := DataURL(doc)
	payload := map[string]any{
		"model": m.cfg.Model,
		"document": map[string]any{
			"type":  urlType,
			urlType: dataURL,
		},
		"include_image_base64": false,
	}
	switch {
	case len(m.schema) > 0:
		payload["bbox_annotation_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"schema": m.schema,
				"name":   "document_annotation",
				"strict": true,
			},
		}
	case m.cfg.IncludePolygons:
		payload["include_bboxes"] = true
	}
	return payload
}

func (m *Mistral) Analyze(ctx context.Context, doc Document) (spatial.Index, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	start := time.Now()
	client := &http.Client{Timeout: m.cfg.Timeout}

	m.logger.Info("ocr.mistral.submit", "document", doc.Name, "bytes", len(doc.Data), "model", m.cfg.Model)
	headers := map[string]string{"Authorization": "Bearer " + m.cfg.APIKey}
	raw, status, err := SendJSON(ctx, client, m.cfg.Endpoint, m.Payload(doc), headers, m.logger)
	if err != nil {
		if status != 0 {
			m.logger.Error("ocr.mistral.http_error", "status", status, "body", string(raw))
			return spatial.Index{}, common.NewProviderError(mistralProvider, status, strings.TrimSpace(string(raw)), nil)
		}
		return spatial.Index{}, common.NewProviderError(mistralProvider, 0, "post document", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return spatial.Index{}, common.NewProviderError(mistralProvider, status, "decode response", err)
	}

	ix, err := NormalizeMistral(body)
	if errors.Is(err, ErrUnrecognizedResponse) {
		m.logger.Warn("ocr.mistral.unrecognized_response", "document", doc.Name)
	}

	c := ix.Counts()
	m.logger.Info("ocr.mistral.complete",
		"document", doc.Name,
		"chars", len(ix.Content),
		"words", c.Words,
		"lines", c.Lines,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ix, nil
}

// ErrUnrecognizedResponse marks a well-formed response without any known content
// field. NormalizeMistral still returns a usable (empty) index alongside it.
var ErrUnrecognizedResponse = errors.New("response has no recognized content field")

// NormalizeMistral builds the canonical index from a decoded Mistral response.
// Text comes from pages[].markdown joined by a blank line, else content, else text,
// else choices[0].message.content. Words, lines and blocks without a bbox are left
// out of the index. Key-value pairs and paragraphs are always empty.
func NormalizeMistral(body map[string]any) (spatial.Index, error) {
	ix := spatial.Empty()

	pages, hasPages := body["pages"].([]any)
	content, ok := mistralContent(body, pages, hasPages)
	ix.Content = content

	for i, p := range pages {
		page, isMap := p.(map[string]any)
		if !isMap {
			continue
		}
		pageNumber := i + 1
		for _, w := range boxed(page["words"]) {
			ix.Words = append(ix.Words, spatial.Word{
				Content:    w.text,
				Confidence: w.confidence,
				PageNumber: pageNumber,
				Points:     w.points,
			})
		}
		for _, key := range []string{"lines", "blocks"} {
			for _, l := range boxed(page[key]) {
				ix.Lines = append(ix.Lines, spatial.Line{
					Content:    l.text,
					PageNumber: pageNumber,
					Points:     l.points,
				})
			}
		}
	}

	if !ok {
		return ix, ErrUnrecognizedResponse
	}
	return ix, nil
}

func mistralContent(body map[string]any, pages []any, hasPages bool) (string, bool) {
	if hasPages {
		var parts []string
		for _, p := range pages {
			if page, ok := p.(map[string]any); ok {
				if md, ok := page["markdown"].(string); ok {
					parts = append(parts, md)
				}
			}
		}
		return strings.Join(parts, "\n\n"), true
	}
	for _, key := range []string{"content", "text"} {
		if s, ok := body[key].(string); ok {
			return s, true
		}
	}
	if choices, ok := body["choices"].([]any); ok && len(choices) > 0 {
		if c, ok := choices[0].(map[string]any); ok {
			msg, _ := c["message"].(map[string]any)
			s, _ := msg["content"].(string)
			return s, true
		}
	}
	return "", false
}

type boxedText struct {
	text       string
	confidence *float64
	points     []float64
}

// boxed reads a list of {text|content, bbox|bounding_box, confidence?} entries,
// keeping only those with a non-empty box.
func boxed(v any) []boxedText {
	items, _ := v.([]any)
	var out []boxedText
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		box, ok := m["bbox"]
		if !ok {
			box = m["bounding_box"]
		}
		pts := spatial.NormalizeBBox(spatial.ToFloats(box))
		if len(pts) == 0 {
			continue
		}
		text, ok := m["text"].(string)
		if !ok {
			text, _ = m["content"].(string)
		}
		var conf *float64
		if c, ok := m["confidence"].(float64); ok {
			conf = spatial.Float(c)
		}
		out = append(out, boxedText{text: text, confidence: conf, points: pts})
	}
	return out
}
