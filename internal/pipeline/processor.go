// Package pipeline runs one document through analysis, validation, enrichment
// and run bookkeeping.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/enrich"
	"github.com/joseph-ayodele/polygon-locator/internal/matcher"
	"github.com/joseph-ayodele/polygon-locator/internal/ocr"
	"github.com/joseph-ayodele/polygon-locator/internal/repository"
	"github.com/joseph-ayodele/polygon-locator/internal/schema"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

// Request names a document and the extraction to enrich against it. Locations
// are local paths or afs URLs (file://, mem://, http(s)://).
type Request struct {
	Document      string
	Extraction    *tree.Value // takes precedence over ExtractionURL
	ExtractionURL string
	ContentHash   string   // computed from the document bytes when empty
	Threshold     *float64 // 0.0-1.0 fraction; the processor default when nil
}

// Outcome is a processed document.
type Outcome struct {
	RunID  uuid.UUID // uuid.Nil when no run store is configured
	Name   string
	Index  spatial.Index
	Result enrich.Result
}

// Processor coordinates provider analysis then enrichment.
type Processor struct {
	analyzer  ocr.Analyzer
	fs        afs.Service
	schema    *schema.Schema
	runs      repository.RunRepository
	threshold float64
	logger    *slog.Logger
}

type Option func(*Processor)

func WithLogger(l *slog.Logger) Option { return func(p *Processor) { p.logger = l } }

// WithSchema validates every extraction before the provider is called.
func WithSchema(s *schema.Schema) Option { return func(p *Processor) { p.schema = s } }

// WithRunRepository records every processed document.
func WithRunRepository(r repository.RunRepository) Option { return func(p *Processor) { p.runs = r } }

// WithThreshold sets the default 0.0-1.0 correlation threshold.
func WithThreshold(fraction float64) Option { return func(p *Processor) { p.threshold = fraction } }

func WithFS(fs afs.Service) Option { return func(p *Processor) { p.fs = fs } }

func NewProcessor(analyzer ocr.Analyzer, opts ...Option) *Processor {
	p := &Processor{
		analyzer:  analyzer,
		threshold: matcher.DefaultThreshold / 100,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.fs == nil {
		p.fs = afs.New()
	}
	return p
}

// Index analyzes the document at location and returns its spatial index only.
func (p *Processor) Index(ctx context.Context, location string) (spatial.Index, error) {
	doc, err := p.loadDocument(ctx, location)
	if err != nil {
		return spatial.Index{}, err
	}
	return p.analyzer.Analyze(ctx, doc)
}

// Process runs the whole pipeline for one document. Once a run has been started,
// every failure is recorded against it before being returned.
func (p *Processor) Process(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()

	extraction, err := p.loadExtraction(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.schema != nil {
		if err := p.schema.Validate(extraction); err != nil {
			p.logger.Warn("processor.schema.invalid", "document", req.Document, "err", err)
			return nil, err
		}
	}

	doc, err := p.loadDocument(ctx, req.Document)
	if err != nil {
		return nil, err
	}
	hash := req.ContentHash
	if hash == "" {
		sum := sha256.Sum256(doc.Data)
		hash = hex.EncodeToString(sum[:])
	}

	fraction := p.threshold
	if req.Threshold != nil {
		fraction = *req.Threshold
	}
	threshold := matcher.PercentFromFraction(fraction)

	out := &Outcome{Name: doc.Name}
	if p.runs != nil {
		run, err := p.runs.Start(ctx, doc.Name, hash, p.analyzer.Name(), threshold)
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
		ctx = common.WithRunID(ctx, run.ID.String())
	}
	logger := common.LoggerWith(ctx, p.logger)

	ix, err := p.analyzer.Analyze(ctx, doc)
	if err != nil {
		logger.Error("processor.analyze.failed", "document", doc.Name, "provider", p.analyzer.Name(), "err", err)
		return nil, p.fail(ctx, out.RunID, err)
	}
	out.Index = ix

	out.Result = enrich.Enrich(extraction, ix, enrich.WithThreshold(threshold), enrich.WithLogger(logger))

	if p.runs != nil {
		body, err := json.Marshal(out.Result.Tree)
		if err != nil {
			return nil, p.fail(ctx, out.RunID, fmt.Errorf("encode result: %w", err))
		}
		err = p.runs.Finish(ctx, out.RunID, repository.RunSummary{
			TotalFields:        out.Result.Report.TotalFields,
			FieldsWithPolygons: out.Result.Report.FieldsWithPolygons,
			Result:             body,
		})
		if err != nil {
			logger.Error("processor.finish.failed", "document", doc.Name, "err", err)
			return nil, p.fail(ctx, out.RunID, err)
		}
	}

	logger.Info("processor.ok",
		"document", doc.Name,
		"provider", p.analyzer.Name(),
		"total_fields", out.Result.Report.TotalFields,
		"with_polygons", out.Result.Report.FieldsWithPolygons,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *Processor) fail(ctx context.Context, runID uuid.UUID, cause error) error {
	if p.runs == nil || runID == uuid.Nil {
		return cause
	}
	if err := p.runs.Fail(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
		p.logger.Error("processor.run.fail_not_recorded", "run_id", runID, "err", err)
	}
	return cause
}

func (p *Processor) loadExtraction(ctx context.Context, req Request) (tree.Value, error) {
	if req.Extraction != nil {
		return *req.Extraction, nil
	}
	if req.ExtractionURL == "" {
		return tree.Value{}, common.NewAppError(common.CodeValidation, "no extraction given", common.ErrInvalidInput)
	}
	data, err := p.download(ctx, req.ExtractionURL)
	if err != nil {
		return tree.Value{}, err
	}
	v, err := tree.Parse(data)
	if err != nil {
		return tree.Value{}, common.NewAppError(common.CodeValidation, "parse extraction "+req.ExtractionURL, errors.Join(common.ErrInvalidInput, err))
	}
	return v, nil
}

func (p *Processor) loadDocument(ctx context.Context, location string) (ocr.Document, error) {
	data, err := p.download(ctx, location)
	if err != nil {
		return ocr.Document{}, err
	}
	return ocr.Document{Name: path.Base(url.Path(toURL(location))), Data: data}, nil
}

func (p *Processor) download(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, common.NewAppError(common.CodeValidation, "empty location", common.ErrInvalidInput)
	}
	URL := toURL(location)
	data, err := p.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		ok, _ := p.fs.Exists(ctx, URL)
		if !ok {
			return nil, common.NewAppError(common.CodeValidation, "not found: "+location, common.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", location, err)
	}
	return data, nil
}

// toURL turns plain paths into file URLs and leaves URLs untouched.
func toURL(location string) string {
	if url.Scheme(location, "") != "" {
		return location
	}
	if abs, err := filepath.Abs(location); err == nil {
		location = abs
	}
	return url.ToFileURL(location)
}
