package export

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/repository"
)

func TestRunsJSON(t *testing.T) {
	ctx := context.Background()
	runs, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer runs.Close()

	ok, err := runs.Start(ctx, "invoice.pdf", "abc123", "DocumentIntelligence", 90)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	result := []byte(`{"total":{"value":"1,234.56","boundingPolygons":[{"points":[0,0,1,0,1,1,0,1],"pageNumber":1}]}}`)
	if err := runs.Finish(ctx, ok.ID, repository.RunSummary{TotalFields: 1, FieldsWithPolygons: 1, Result: result}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	bad, err := runs.Start(ctx, "scan.png", "def456", "Mistral", 85)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := runs.Fail(ctx, bad.ID, "rate limited"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	list, err := runs.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	b, err := RunsJSON(list)
	if err != nil {
		t.Fatalf("RunsJSON: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %s", len(lines), b)
	}
	got := make([]map[string]any, len(lines))
	for i, l := range lines {
		if err := json.Unmarshal(l, &got[i]); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
	}

	failed := got[0]
	if failed["id"] != bad.ID.String() || failed["status"] != string(constants.RunStatusFailed) || failed["error"] != "rate limited" {
		t.Fatalf("failed run = %v", failed)
	}
	if _, has := failed["result"]; has {
		t.Fatal("failed run must not carry a result")
	}

	done := got[1]
	if done["id"] != ok.ID.String() || done["status"] != string(constants.RunStatusSucceeded) || done["totalFields"] != 1.0 {
		t.Fatalf("succeeded run = %v", done)
	}
	want := map[string]any{"total": map[string]any{
		"value":            "1,234.56",
		"boundingPolygons": []any{map[string]any{"points": []any{0.0, 0.0, 1.0, 0.0, 1.0, 1.0, 0.0, 1.0}, "pageNumber": 1.0}},
	}}
	if diff := cmp.Diff(want, done["result"]); diff != "" {
		t.Fatalf("result (-want +got):\n%s", diff)
	}
	if _, has := done["finishedAt"]; !has {
		t.Fatal("succeeded run must carry finishedAt")
	}
}

func TestRunStructRejectsCorruptResult(t *testing.T) {
	_, err := RunStruct(repository.Run{ID: uuid.New(), Status: constants.RunStatusSucceeded, Result: []byte(`{"total":`)})
	if err == nil {
		t.Fatal("expected an error for a corrupt stored result")
	}
}
