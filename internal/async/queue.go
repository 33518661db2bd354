package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/polygon-locator/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document to locate.
type Job struct {
	ID          string
	Request     pipeline.Request
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor is the work each job runs; *pipeline.Processor satisfies it.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// ResultHandler receives every finished job. It is called from worker goroutines.
type ResultHandler func(job Job, out *pipeline.Outcome, err error)
