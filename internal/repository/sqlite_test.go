package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/common"
)

func openTestStore(t *testing.T) RunRepository {
	t.Helper()
	cfg := common.StoreConfig{Driver: common.DriverSQLite, DSN: filepath.Join(t.TempDir(), "runs.db")}
	repo, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)

	run, err := repo.Start(ctx, "invoice.pdf", "abc123", common.ProviderDocIntel, 90)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Status != constants.RunStatusRunning || run.ID == uuid.Nil {
		t.Fatalf("run = %+v", run)
	}

	result := []byte(`{"total":{"value":"1,234.56"}}`)
	if err := repo.Finish(ctx, run.ID, RunSummary{TotalFields: 3, FieldsWithPolygons: 2, Result: result}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != constants.RunStatusSucceeded || got.TotalFields != 3 || got.FieldsWithPolygons != 2 {
		t.Fatalf("got = %+v", got)
	}
	if string(got.Result) != string(result) || got.FinishedAt == nil || got.ContentHash != "abc123" || got.Threshold != 90 {
		t.Fatalf("got = %+v", got)
	}
}

func TestSQLiteRunFail(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)

	run, err := repo.Start(ctx, "scan.png", "", common.ProviderMistral, 80)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := repo.Fail(ctx, run.ID, "Mistral Document AI API error: 429 - rate limited"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != constants.RunStatusFailed || got.ErrorMessage == "" || got.Result != nil {
		t.Fatalf("got = %+v", got)
	}
}

func TestSQLiteUnknownRun(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)
	id := uuid.New()

	if _, err := repo.GetByID(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("GetByID err = %v", err)
	}
	if err := repo.Finish(ctx, id, RunSummary{}); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("Finish err = %v", err)
	}
	if err := repo.Fail(ctx, id, "x"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("Fail err = %v", err)
	}
}

func TestSQLiteListRecent(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t)

	var ids []uuid.UUID
	for _, doc := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		run, err := repo.Start(ctx, doc, "", common.ProviderDocIntel, 90)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("runs = %+v", runs)
	}
	all, err := repo.ListRecent(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListRecent(0) = %d runs, err %v", len(all), err)
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	repo, err := Open(context.Background(), common.StoreConfig{}, nil)
	if err != nil || repo != nil {
		t.Fatalf("disabled store: repo=%v err=%v", repo, err)
	}
	if _, err := Open(context.Background(), common.StoreConfig{Driver: "mysql"}, nil); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}
