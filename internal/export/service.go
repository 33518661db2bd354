package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/enrich"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

const (
	FieldsSheet  = "Fields"
	SummarySheet = "Summary"
)

// Document is one enriched extraction to export. A document whose run failed
// carries Err instead of a Result and only gets a Summary row.
type Document struct {
	Name   string
	Result enrich.Result
	Err    error
}

// Service renders enrichment results as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var fieldHeaders = []string{
	"Document",
	"Field",
	"Value",
	"Page",
	"Polygon",
	"Source",
	"Confidence",
}

var summaryHeaders = []string{
	"Document",
	"Total Fields",
	"With Polygons",
	"Coverage",
	"Threshold",
	"Words",
	"Lines",
	"KV Pairs",
	"Paragraphs",
	"Status",
	"Error",
}

// ExportXLSX returns a workbook with one Fields row per enriched leaf and one
// Summary row per document.
func (s *Service) ExportXLSX(ctx context.Context, docs []Document) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", FieldsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, err
	}
	writeRow(f, FieldsSheet, 1, toAny(fieldHeaders))
	writeRow(f, SummarySheet, 1, toAny(summaryHeaders))

	row := 2
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.Err != nil {
			st := common.ToStatus(d.Err)
			writeRow(f, SummarySheet, i+2, []any{
				d.Name, "", "", "", "", "", "", "", "",
				st.Code().String(),
				truncate(st.Message(), 255),
			})
			continue
		}
		for _, l := range enrich.Leaves(d.Result.Tree) {
			writeRow(f, FieldsSheet, row, []any{
				d.Name,
				l.Path,
				truncate(l.Value.Text(), 255),
				pages(l.Polygons),
				polygonText(l.Polygons),
				l.Source,
				confidence(l.Confidence),
			})
			row++
		}

		r := d.Result.Report
		c := r.SourceDataAvailable
		writeRow(f, SummarySheet, i+2, []any{
			d.Name,
			r.TotalFields,
			r.FieldsWithPolygons,
			r.Coverage(),
			r.CorrelationThreshold,
			c.Words,
			c.Lines,
			c.KeyValuePairs,
			c.Paragraphs,
			codes.OK.String(),
		})
	}

	_ = f.SetColWidth(FieldsSheet, "A", "A", 28) // document
	_ = f.SetColWidth(FieldsSheet, "B", "B", 36) // field path
	_ = f.SetColWidth(FieldsSheet, "C", "C", 40) // value
	_ = f.SetColWidth(FieldsSheet, "E", "E", 60) // polygon
	_ = f.SetColWidth(FieldsSheet, "F", "F", 14) // source
	_ = f.SetColWidth(SummarySheet, "A", "A", 28)
	_ = f.SetColWidth(SummarySheet, "K", "K", 60) // error

	if pct, err := f.NewStyle(&excelize.Style{NumFmt: 10}); err == nil {
		_ = f.SetColStyle(SummarySheet, "D", pct)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(docs),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// writeRow leaves empty strings as blank cells.
func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func pages(polys []spatial.Polygon) string {
	parts := make([]string, 0, len(polys))
	for _, p := range polys {
		parts = append(parts, strconv.Itoa(p.PageNumber))
	}
	return strings.Join(parts, ", ")
}

// polygonText renders each polygon as space-separated coordinates; polygons are
// separated by "; ".
func polygonText(polys []spatial.Polygon) string {
	parts := make([]string, 0, len(polys))
	for _, p := range polys {
		nums := make([]string, len(p.Points))
		for i, n := range p.Points {
			nums[i] = strconv.FormatFloat(n, 'f', -1, 64)
		}
		parts = append(parts, strings.Join(nums, " "))
	}
	return strings.Join(parts, "; ")
}

func confidence(c *float64) any {
	if c == nil {
		return ""
	}
	return *c
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
