package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/export"
	"github.com/joseph-ayodele/polygon-locator/internal/ingest"
	"github.com/joseph-ayodele/polygon-locator/internal/ocr"
	"github.com/joseph-ayodele/polygon-locator/internal/pipeline"
	"github.com/joseph-ayodele/polygon-locator/internal/repository"
	"github.com/joseph-ayodele/polygon-locator/internal/schema"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "config file (yaml/json/toml); environment variables override it")
		doc        = flag.String("doc", "", "document path or URL (required)")
		extraction = flag.String("extraction", "", "extraction JSON path or URL (defaults to the document's .extraction.json sidecar)")
		out        = flag.String("out", "", "write output here instead of stdout")
		xlsx       = flag.String("xlsx", "", "also export the located fields as XLSX")
		indexOnly  = flag.Bool("index-only", false, "print the spatial index and skip enrichment")
		threshold  = flag.Float64("threshold", -1, "correlation threshold 0.0-1.0 (defaults to config)")
		provider   = flag.String("provider", "", "OCR provider: docintel, mistral or tesseract (defaults to config)")
		logJSON    = flag.Bool("log-json", false, "log as JSON")
	)
	flag.Parse()

	if *doc == "" {
		printError("Error: --doc is required\n")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *provider != "" {
		cfg.OCR.Provider = *provider
	}
	if *threshold >= 0 {
		cfg.Matching.Threshold = *threshold
	}

	logger := common.NewLogger(os.Stderr, cfg.LogLevel, *logJSON)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *doc, *extraction, *out, *xlsx, *indexOnly); err != nil {
		logger.Error("locate failed", "document", *doc, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger, doc, extraction, out, xlsx string, indexOnly bool) error {
	var (
		opts     []pipeline.Option
		ocrOpts  []ocr.MistralOption
		compiled *schema.Schema
	)
	if cfg.Matching.SchemaPath != "" {
		s, err := schema.Load(cfg.Matching.SchemaPath)
		if err != nil {
			return err
		}
		compiled = s
		opts = append(opts, pipeline.WithSchema(s))
		ocrOpts = append(ocrOpts, ocr.WithAnnotationSchema(s.Raw()))
	}

	analyzer, err := ocr.New(cfg, logger, ocrOpts...)
	if err != nil {
		return err
	}

	runs, err := repository.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	if runs != nil {
		defer func() { _ = runs.Close() }()
		opts = append(opts, pipeline.WithRunRepository(runs))
	}

	opts = append(opts, pipeline.WithLogger(logger), pipeline.WithThreshold(cfg.Matching.Threshold))
	proc := pipeline.NewProcessor(analyzer, opts...)

	if indexOnly {
		ix, err := proc.Index(ctx, doc)
		if err != nil {
			return err
		}
		return writeJSON(out, ix)
	}

	if extraction == "" {
		extraction = ingest.SidecarFor(doc)
	}
	res, err := proc.Process(ctx, pipeline.Request{Document: doc, ExtractionURL: extraction})
	if err != nil {
		return err
	}
	logger.Info("locate.ok",
		"document", res.Name,
		"run_id", res.RunID,
		"schema", compiled != nil,
		"coverage", res.Result.Report.Coverage(),
	)

	if xlsx != "" {
		b, err := export.NewService(logger).ExportXLSX(ctx, []export.Document{{Name: res.Name, Result: res.Result}})
		if err != nil {
			return err
		}
		if err := os.WriteFile(xlsx, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", xlsx, err)
		}
	}
	return writeJSON(out, res.Result.Tree)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
