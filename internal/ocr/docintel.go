package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

const docIntelProvider = "Document Intelligence"

// cognitiveServicesScope is the AAD scope accepted by Document Intelligence.
const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// DocIntelResult is the body of a prebuilt-layout analyze operation.
type DocIntelResult struct {
	Status        string                 `json:"status"`
	Error         *docIntelError         `json:"error,omitempty"`
	AnalyzeResult *DocIntelAnalyzeResult `json:"analyzeResult,omitempty"`
}

type docIntelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DocIntelAnalyzeResult is the analyzeResult part of the response. Every collection
// and nested object is optional.
type DocIntelAnalyzeResult struct {
	APIVersion    string              `json:"apiVersion"`
	ModelID       string              `json:"modelId"`
	Content       string              `json:"content"`
	Pages         []DocIntelPage      `json:"pages"`
	Paragraphs    []DocIntelParagraph `json:"paragraphs"`
	KeyValuePairs []DocIntelKeyValue  `json:"keyValuePairs"`
}

type DocIntelPage struct {
	PageNumber int            `json:"pageNumber"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Unit       string         `json:"unit"`
	Words      []DocIntelWord `json:"words"`
	Lines      []DocIntelLine `json:"lines"`
}

type DocIntelWord struct {
	Content    string    `json:"content"`
	Polygon    []float64 `json:"polygon"`
	Confidence *float64  `json:"confidence"`
}

type DocIntelLine struct {
	Content string    `json:"content"`
	Polygon []float64 `json:"polygon"`
}

type DocIntelBoundingRegion struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}

type DocIntelElement struct {
	Content         string                   `json:"content"`
	BoundingRegions []DocIntelBoundingRegion `json:"boundingRegions"`
}

type DocIntelKeyValue struct {
	Key        *DocIntelElement `json:"key"`
	Value      *DocIntelElement `json:"value"`
	Confidence *float64         `json:"confidence"`
}

type DocIntelParagraph struct {
	Content         string                   `json:"content"`
	Role            *string                  `json:"role"`
	BoundingRegions []DocIntelBoundingRegion `json:"boundingRegions"`
}

// NormalizeDocIntel maps an analyze result onto the canonical index. Absent pages,
// regions or key/value halves become empty content and empty lists.
func NormalizeDocIntel(r DocIntelAnalyzeResult) spatial.Index {
	ix := spatial.Empty()
	ix.Content = r.Content

	for _, p := range r.Pages {
		page := spatial.PageOrDefault(p.PageNumber)
		for _, w := range p.Words {
			ix.Words = append(ix.Words, spatial.Word{
				Content:    w.Content,
				Confidence: w.Confidence,
				PageNumber: page,
				Points:     points(w.Polygon),
			})
		}
		for _, l := range p.Lines {
			ix.Lines = append(ix.Lines, spatial.Line{
				Content:    l.Content,
				PageNumber: page,
				Points:     points(l.Polygon),
			})
		}
	}

	for _, kv := range r.KeyValuePairs {
		ix.KeyValuePairs = append(ix.KeyValuePairs, spatial.KeyValuePair{
			Key:        region(kv.Key),
			Value:      region(kv.Value),
			Confidence: kv.Confidence,
		})
	}

	for _, p := range r.Paragraphs {
		ix.Paragraphs = append(ix.Paragraphs, spatial.Paragraph{
			Content:          p.Content,
			Role:             p.Role,
			BoundingPolygons: polygons(p.BoundingRegions),
		})
	}
	return ix
}

func region(e *DocIntelElement) spatial.Region {
	if e == nil {
		return spatial.Region{BoundingPolygons: []spatial.Polygon{}}
	}
	return spatial.Region{Content: e.Content, BoundingPolygons: polygons(e.BoundingRegions)}
}

func polygons(regions []DocIntelBoundingRegion) []spatial.Polygon {
	out := make([]spatial.Polygon, 0, len(regions))
	for _, r := range regions {
		out = append(out, spatial.Polygon{Points: points(r.Polygon), PageNumber: spatial.PageOrDefault(r.PageNumber)})
	}
	return out
}

func points(p []float64) []float64 {
	if p == nil {
		return []float64{}
	}
	return p
}

// DocIntel analyzes documents with the Azure Document Intelligence prebuilt-layout model.
type DocIntel struct {
	cfg    common.DocIntelConfig
	logger *slog.Logger
}

func NewDocIntel(cfg common.DocIntelConfig, logger *slog.Logger) (*DocIntel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-11-30"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &DocIntel{cfg: cfg, logger: logger}, nil
}

func (d *DocIntel) Name() string { return common.ProviderDocIntel }

// Analyze submits doc, polls the operation until it settles and normalizes the result.
// Every call builds its own HTTP client.
func (d *DocIntel) Analyze(ctx context.Context, doc Document) (spatial.Index, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	// submit and polls share one req_id
	ctx = common.WithRequestID(ctx, common.RequestIDFromContext(ctx))
	start := time.Now()
	client := &http.Client{Timeout: d.cfg.Timeout}

	headers, err := d.authHeaders(ctx, client)
	if err != nil {
		return spatial.Index{}, err
	}
	headers["x-ms-useragent"] = UserAgent

	d.logger.Info("ocr.docintel.submit", "document", doc.Name, "bytes", len(doc.Data))
	submit := map[string]string{"Content-Type": "application/octet-stream"}
	for k, v := range headers {
		submit[k] = v
	}
	resp, err := send(ctx, client, http.MethodPost, d.analyzeURL(), doc.Data, submit, d.logger)
	if err != nil {
		return spatial.Index{}, common.NewProviderError(docIntelProvider, 0, "submit document", err)
	}
	if resp.Status != http.StatusAccepted && resp.Status != http.StatusOK {
		return spatial.Index{}, common.NewProviderError(docIntelProvider, resp.Status, strings.TrimSpace(string(resp.Body)), nil)
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return spatial.Index{}, common.NewProviderError(docIntelProvider, resp.Status, "response carried no Operation-Location", nil)
	}

	result, err := d.poll(ctx, client, opURL, headers)
	if err != nil {
		return spatial.Index{}, err
	}
	var ar DocIntelAnalyzeResult
	if result.AnalyzeResult != nil {
		ar = *result.AnalyzeResult
	} else {
		d.logger.Warn("ocr.docintel.empty_result", "document", doc.Name)
	}
	ix := NormalizeDocIntel(ar)

	c := ix.Counts()
	d.logger.Info("ocr.docintel.complete",
		"document", doc.Name,
		"chars", len(ix.Content),
		"words", c.Words,
		"lines", c.Lines,
		"kv_pairs", c.KeyValuePairs,
		"paragraphs", c.Paragraphs,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ix, nil
}

func (d *DocIntel) analyzeURL() string {
	q := url.Values{}
	q.Set("api-version", d.cfg.APIVersion)
	q.Set("features", "keyValuePairs")
	return d.cfg.Endpoint + "/documentintelligence/documentModels/prebuilt-layout:analyze?" + q.Encode()
}

func (d *DocIntel) poll(ctx context.Context, client *http.Client, opURL string, headers map[string]string) (DocIntelResult, error) {
	for {
		resp, err := send(ctx, client, http.MethodGet, opURL, nil, headers, d.logger)
		if err != nil {
			return DocIntelResult{}, common.NewProviderError(docIntelProvider, 0, "poll operation", err)
		}
		if resp.Status/100 != 2 {
			return DocIntelResult{}, common.NewProviderError(docIntelProvider, resp.Status, strings.TrimSpace(string(resp.Body)), nil)
		}
		var r DocIntelResult
		if err := json.Unmarshal(resp.Body, &r); err != nil {
			return DocIntelResult{}, common.NewProviderError(docIntelProvider, resp.Status, "decode operation", err)
		}

		switch strings.ToLower(r.Status) {
		case "succeeded":
			return r, nil
		case "failed", "canceled":
			msg := "analysis " + strings.ToLower(r.Status)
			if r.Error != nil {
				msg = fmt.Sprintf("%s: %s: %s", msg, r.Error.Code, r.Error.Message)
			}
			return DocIntelResult{}, common.NewProviderError(docIntelProvider, 0, msg, nil)
		}

		wait := d.cfg.PollInterval
		if n, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && n > 0 {
			wait = time.Duration(n) * time.Second
		}
		d.logger.Debug("ocr.docintel.poll", "status", r.Status, "wait_ms", wait.Milliseconds())
		select {
		case <-ctx.Done():
			return DocIntelResult{}, common.NewProviderError(docIntelProvider, 0, "waiting for analysis", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// authHeaders returns the API-key header, or a bearer token obtained through the
// AAD client-credentials flow.
func (d *DocIntel) authHeaders(ctx context.Context, client *http.Client) (map[string]string, error) {
	if d.cfg.APIKey != "" {
		return map[string]string{"Ocp-Apim-Subscription-Key": d.cfg.APIKey}, nil
	}
	tokenURL := d.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://login.microsoftonline.com/" + d.cfg.TenantID + "/oauth2/v2.0/token"
	}
	cc := clientcredentials.Config{
		ClientID:     d.cfg.ClientID,
		ClientSecret: d.cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{cognitiveServicesScope},
	}
	tok, err := cc.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, client)).Token()
	if err != nil {
		return nil, common.NewProviderError(docIntelProvider, 0, "acquire AAD token", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok.AccessToken}, nil
}
