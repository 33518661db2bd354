package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/enrich"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

func TestExportXLSX(t *testing.T) {
	ix := spatial.Empty()
	ix.KeyValuePairs = []spatial.KeyValuePair{{
		Key:        spatial.Region{Content: "Invoice Number", BoundingPolygons: []spatial.Polygon{{Points: []float64{0, 0, 1, 0, 1, 1, 0, 1}, PageNumber: 1}}},
		Value:      spatial.Region{Content: "INV-2024-001", BoundingPolygons: []spatial.Polygon{{Points: []float64{2, 0, 4.5, 0, 4.5, 1, 2, 1}, PageNumber: 2}}},
		Confidence: spatial.Float(0.9),
	}}
	extraction, err := tree.Parse([]byte(`{"invoice_number":"INV-2024-001","vendor":{"name":"Acme"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res := enrich.Enrich(extraction, ix)

	b, err := NewService(nil).ExportXLSX(context.Background(), []Document{{Name: "invoice.pdf", Result: res}})
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(FieldsSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	want := [][]string{
		fieldHeaders,
		{"invoice.pdf", "invoice_number", "INV-2024-001", "2", "2 0 4.5 0 4.5 1 2 1", "kv-exact", "0.9"},
		{"invoice.pdf", "vendor.name", "Acme"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}

	summary, err := f.GetRows(SummarySheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary rows = %d", len(summary))
	}
	if diff := cmp.Diff([]string{"invoice.pdf", "2", "1", "0.5", "90", "0", "0", "1", "0", "OK"}, summary[1]); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
}

func TestExportXLSXFailedDocuments(t *testing.T) {
	docs := []Document{
		{Name: "bad-key.pdf", Err: common.WrapError(common.NewProviderError("Document Intelligence", 401, "bad key", nil), "analyze")},
		{Name: "missing.pdf", Err: common.NewAppError(common.CodeValidation, "document not found", common.ErrNotFound)},
		{Name: "odd.pdf", Err: errors.New("boom")},
	}
	b, err := NewService(nil).ExportXLSX(context.Background(), docs)
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	fields, _ := f.GetRows(FieldsSheet)
	if len(fields) != 1 {
		t.Fatalf("failed documents must not add field rows: %v", fields)
	}
	summary, err := f.GetRows(SummarySheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(summary) != 4 {
		t.Fatalf("summary rows = %d", len(summary))
	}
	for i, want := range []string{"Unauthenticated", "NotFound", "Internal"} {
		row := summary[i+1]
		if len(row) != len(summaryHeaders) || row[0] != docs[i].Name || row[9] != want || row[10] == "" {
			t.Errorf("row %d = %q, want status %s", i+1, row, want)
		}
	}
}

func TestExportXLSXCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(nil).ExportXLSX(ctx, []Document{{Name: "a.pdf"}})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 6); got != "héllo…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
