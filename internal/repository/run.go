package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/polygon-locator/constants"
)

// Run is one locate_run row: a document analyzed and enriched once.
type Run struct {
	ID                 uuid.UUID
	Document           string
	ContentHash        string
	Provider           string
	Status             constants.RunStatus
	Threshold          float64
	TotalFields        int
	FieldsWithPolygons int
	ErrorMessage       string
	Result             []byte
	StartedAt          time.Time
	FinishedAt         *time.Time
}

// RunSummary is what a successful run records besides its enriched tree.
type RunSummary struct {
	TotalFields        int
	FieldsWithPolygons int
	Result             []byte
}

// RunRepository persists locate runs.
type RunRepository interface {
	Start(ctx context.Context, document, contentHash, provider string, threshold float64) (*Run, error)
	Finish(ctx context.Context, id uuid.UUID, summary RunSummary) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRecent(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

const defaultListLimit = 50

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
