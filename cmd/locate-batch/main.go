package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/polygon-locator/internal/async"
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
		dir        = flag.String("dir", "", "directory of documents and .extraction.json sidecars (required)")
		out        = flag.String("out", "", "output XLSX file path (defaults to config, then <dir>/polygon-locations.xlsx)")
		skipHidden = flag.Bool("skip-hidden", true, "skip hidden files and directories")
		watch      = flag.Bool("watch", false, "keep running and process documents as they appear")
		healthAddr = flag.String("health-addr", "", "serve gRPC health checks on this address")
		logJSON    = flag.Bool("log-json", true, "log as JSON")
		listRuns   = flag.Int("runs", 0, "print the N most recent stored runs as JSON lines and exit")
		showRun    = flag.String("run", "", "print one stored run by ID and exit")
	)
	flag.Parse()

	if *dir == "" && *listRuns <= 0 && *showRun == "" {
		printError("Error: --dir is required\n")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	listing := *listRuns > 0 || *showRun != ""
	logOut := io.Writer(os.Stdout)
	if listing {
		logOut = os.Stderr
	}
	logger := common.NewLogger(logOut, cfg.LogLevel, *logJSON)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *out == "" {
		*out = cfg.Batch.ExportPath
	}
	if *out == "" {
		*out = filepath.Join(*dir, "polygon-locations.xlsx")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if listing {
		if err := printRuns(ctx, cfg, logger, *listRuns, *showRun); err != nil {
			logger.Error("listing runs failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger, *dir, *out, *skipHidden, *watch, *healthAddr); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}
}

// results gathers finished jobs for the export.
type results struct {
	logger    *slog.Logger
	mu        sync.Mutex
	docs      []export.Document
	succeeded int
	failed    int
}

func (r *results) add(job async.Job, out *pipeline.Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		st := common.ToStatus(err)
		r.logger.Warn("batch.job.failed", "job_id", job.ID, "document", job.Request.Document, "code", st.Code().String(), "error", st.Message())
		r.failed++
		r.docs = append(r.docs, export.Document{Name: filepath.Base(job.Request.Document), Err: err})
		return
	}
	r.succeeded++
	r.docs = append(r.docs, export.Document{Name: out.Name, Result: out.Result})
}

func run(ctx context.Context, cfg *common.Config, logger *slog.Logger, dir, out string, skipHidden, watch bool, healthAddr string) error {
	start := time.Now()

	var (
		opts    []pipeline.Option
		ocrOpts []ocr.MistralOption
	)
	if cfg.Matching.SchemaPath != "" {
		s, err := schema.Load(cfg.Matching.SchemaPath)
		if err != nil {
			return err
		}
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

	if healthAddr != "" {
		stopHealth, err := serveHealth(healthAddr, logger)
		if err != nil {
			return err
		}
		defer stopHealth()
	}

	res := &results{logger: logger}
	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Batch.Workers),
		async.WithQueueSize(cfg.Batch.QueueSize),
		async.WithProcessTimeout(cfg.Batch.JobTimeout),
		async.WithResultHandler(res.add),
	)

	ingestor := ingest.NewFSIngestor(logger)
	items, stats, err := ingestor.IngestDirectory(ctx, dir, skipHidden)
	if err != nil {
		queue.Shutdown(context.Background())
		return err
	}
	for _, it := range items {
		if err := enqueue(ctx, queue, it, logger); err != nil {
			break
		}
	}

	if watch {
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{Roots: []string{dir}, Debounce: 500 * time.Millisecond, Logger: logger})
		if err != nil {
			queue.Shutdown(context.Background())
			return err
		}
		logger.Info("watching for documents", "dir", dir)
		for path := range events {
			it, err := ingestor.IngestPath(ctx, path)
			if err != nil {
				logger.Warn("ingest failed", "path", path, "error", err)
				continue
			}
			_ = enqueue(ctx, queue, it, logger)
		}
		for err := range errs {
			logger.Warn("watcher error", "error", err)
		}
	}

	queue.Shutdown(context.Background())

	res.mu.Lock()
	docs := res.docs
	succeeded, failed := res.succeeded, res.failed
	res.mu.Unlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	b, err := export.NewService(logger).ExportXLSX(context.Background(), docs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	logger.Info("batch.complete",
		"dir", dir,
		"matched", stats.Matched,
		"unpaired", stats.Unpaired,
		"deduplicated", stats.Deduplicated,
		"succeeded", succeeded,
		"failed", failed,
		"out", out,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// printRuns writes stored runs to stdout, either one by ID or the most recent n.
func printRuns(ctx context.Context, cfg *common.Config, logger *slog.Logger, n int, id string) error {
	runs, err := repository.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	if runs == nil {
		return common.NewAppError(common.CodeConfig, "no run store configured; set DB_DRIVER and DB_URL", common.ErrInvalidInput)
	}
	defer func() { _ = runs.Close() }()

	var list []repository.Run
	if id != "" {
		runID, err := uuid.Parse(id)
		if err != nil {
			return common.NewAppError(common.CodeValidation, fmt.Sprintf("invalid run id %q", id), common.ErrInvalidInput)
		}
		r, err := runs.GetByID(ctx, runID)
		if err != nil {
			return err
		}
		list = []repository.Run{*r}
	} else {
		if list, err = runs.ListRecent(ctx, n); err != nil {
			return err
		}
	}

	b, err := export.RunsJSON(list)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

func enqueue(ctx context.Context, q *async.ProcessorQueue, it ingest.Item, logger *slog.Logger) error {
	switch {
	case it.Err != "":
		return nil
	case it.Deduplicated:
		logger.Info("skipping duplicate document", "path", it.Path)
		return nil
	case !it.Paired():
		logger.Warn("skipping document without extraction sidecar", "path", it.Path)
		return nil
	}
	return q.Enqueue(ctx, async.Job{Request: pipeline.Request{
		Document:      it.Path,
		ExtractionURL: it.SidecarPath,
		ContentHash:   it.HashHex,
	}})
}

func serveHealth(addr string, logger *slog.Logger) (func(), error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		return nil, err
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("health server listening", "addr", addr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
		}
	}()
	return func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}, nil
}
