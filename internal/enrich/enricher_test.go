package enrich

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

func sampleIndex() spatial.Index {
	ix := spatial.Empty()
	ix.Content = "Invoice Number INV-2024-001\nTotal: 1,234.56"
	ix.KeyValuePairs = append(ix.KeyValuePairs, spatial.KeyValuePair{
		Key:        spatial.Region{Content: "Invoice Number", BoundingPolygons: []spatial.Polygon{{Points: []float64{1, 1, 2, 1, 2, 2, 1, 2}, PageNumber: 1}}},
		Value:      spatial.Region{Content: "INV-2024-001", BoundingPolygons: []spatial.Polygon{{Points: []float64{3, 1, 6, 1, 6, 2, 3, 2}, PageNumber: 1}}},
		Confidence: spatial.Float(0.93),
	})
	ix.Lines = append(ix.Lines, spatial.Line{Content: "Total: 1,234.56", PageNumber: 2, Points: []float64{1, 5, 8, 5, 8, 6, 1, 6}})
	ix.Words = append(ix.Words,
		spatial.Word{Content: "Widget", PageNumber: 1, Points: []float64{1, 3, 3, 3, 3, 4, 1, 4}, Confidence: spatial.Float(0.98)},
		spatial.Word{Content: "Gadget", PageNumber: 1, Points: []float64{4, 3, 6, 3, 6, 4, 4, 4}},
	)
	return ix
}

func mustParse(t *testing.T, s string) tree.Value {
	t.Helper()
	v, err := tree.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func TestEnrichLeafShape(t *testing.T) {
	in := mustParse(t, `{"invoice_number":"INV-2024-001","total":"1,234.56","notes":null}`)
	res := Enrich(in, sampleIndex())

	got, err := json.Marshal(res.Tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{` +
		`"invoice_number":{"value":"INV-2024-001","boundingPolygons":[{"points":[3,1,6,1,6,2,3,2],"pageNumber":1}],"source":"kv-exact","confidence":0.93},` +
		`"total":{"value":"1,234.56","boundingPolygons":[{"points":[1,5,8,5,8,6,1,6],"pageNumber":2}],"source":"line-partial"},` +
		`"notes":{"value":null,"boundingPolygons":[]},` +
		`"_polygonMetadata":{"totalFields":3,"fieldsWithPolygons":2,"correlationThreshold":90,"sourceDataAvailable":{"words":2,"lines":1,"keyValuePairs":1,"paragraphs":0}}` +
		`}`
	if string(got) != want {
		t.Fatalf("enriched tree:\n got %s\nwant %s", got, want)
	}
}

func TestEnrichPreservesShape(t *testing.T) {
	in := mustParse(t, `{
		"vendor": {"name": "ACME", "address": {"city": "Springfield"}},
		"items": [{"name": "Widget", "qty": 2}, {"name": "Gadget", "qty": 1}],
		"tags": ["Widget", "Gadget", "missing"],
		"matrix": [[1, 2], []],
		"paid": true
	}`)
	res := Enrich(in, sampleIndex())
	out := res.Tree

	if !out.Has(MetadataKey) {
		t.Fatal("report not attached")
	}
	var keys []string
	for _, m := range out.Members() {
		keys = append(keys, m.Key)
	}
	if diff := cmp.Diff([]string{"vendor", "items", "tags", "matrix", "paid", MetadataKey}, keys); diff != "" {
		t.Fatalf("top-level keys (-want +got):\n%s", diff)
	}

	items, _ := out.Get("items")
	if items.Kind() != tree.Array || items.Len() != 2 {
		t.Fatalf("items = %s", items.Kind())
	}
	first := items.Items()[0]
	name, _ := first.Get("name")
	if !IsLeaf(name) {
		t.Fatal("items[0].name is not a leaf")
	}
	if bp, _ := name.Get("boundingPolygons"); bp.Len() != 1 {
		t.Fatalf("items[0].name polygons = %d", bp.Len())
	}

	tags, _ := out.Get("tags")
	if tags.Len() != 3 {
		t.Fatalf("tags len = %d", tags.Len())
	}
	for i, it := range tags.Items() {
		if !IsLeaf(it) {
			t.Fatalf("tags[%d] is not a leaf", i)
		}
	}

	matrix, _ := out.Get("matrix")
	if matrix.Len() != 2 || matrix.Items()[0].Len() != 2 || matrix.Items()[1].Kind() != tree.Array || matrix.Items()[1].Len() != 0 {
		t.Fatalf("matrix shape changed: %s", mustJSON(t, matrix))
	}

	// vendor.name, vendor.address.city, items[*].name, items[*].qty, tags[*], matrix[0][*], paid
	if res.Report.TotalFields != 12 {
		t.Fatalf("totalFields = %d, want 12", res.Report.TotalFields)
	}
}

func TestEnrichExcludedKeysPassThrough(t *testing.T) {
	in := mustParse(t, `{"error":"timeout","raw_content":{"text":"INV-2024-001"},"extraction_failed":true,"invoice_number":"INV-2024-001"}`)
	res := Enrich(in, sampleIndex())

	raw, _ := res.Tree.Get("raw_content")
	if got := mustJSON(t, raw); got != `{"text":"INV-2024-001"}` {
		t.Fatalf("raw_content = %s", got)
	}
	errV, _ := res.Tree.Get("error")
	if errV.Kind() != tree.String || errV.Str() != "timeout" {
		t.Fatalf("error = %s", mustJSON(t, errV))
	}
	if res.Report.TotalFields != 1 || res.Report.FieldsWithPolygons != 1 {
		t.Fatalf("report = %+v", res.Report)
	}
}

func TestTotalFieldsIndependentOfIndex(t *testing.T) {
	in := mustParse(t, `{"a":"INV-2024-001","b":{"c":["Widget","x"]},"_internal":"skip"}`)
	empty := Enrich(in, spatial.Empty()).Report
	full := Enrich(in, sampleIndex()).Report
	if empty.TotalFields != 3 || full.TotalFields != 3 {
		t.Fatalf("totalFields empty=%d full=%d, want 3", empty.TotalFields, full.TotalFields)
	}
	if empty.FieldsWithPolygons != 0 {
		t.Fatalf("fieldsWithPolygons with empty index = %d", empty.FieldsWithPolygons)
	}
	if full.FieldsWithPolygons == 0 {
		t.Fatal("expected some matches against the sample index")
	}
}

func TestEnrichThresholdOption(t *testing.T) {
	ix := spatial.Empty()
	ix.Lines = append(ix.Lines, spatial.Line{Content: "Paid in ful", PageNumber: 1, Points: []float64{0, 0, 1, 0, 1, 1, 0, 1}})
	in := mustParse(t, `{"notes":"Paid in full"}`)

	strict := Enrich(in, ix, WithThreshold(100))
	if strict.Report.FieldsWithPolygons != 0 || strict.Report.CorrelationThreshold != 100 {
		t.Fatalf("strict report = %+v", strict.Report)
	}
	loose := Enrich(in, ix, WithThreshold(80))
	if loose.Report.FieldsWithPolygons != 1 {
		t.Fatalf("loose report = %+v", loose.Report)
	}
}

func TestEnrichNonObjectRoot(t *testing.T) {
	res := Enrich(mustParse(t, `["Widget","Gadget"]`), sampleIndex())
	if res.Tree.Kind() != tree.Array || res.Tree.Len() != 2 {
		t.Fatalf("tree = %s", mustJSON(t, res.Tree))
	}
	if res.Report.TotalFields != 2 || res.Report.FieldsWithPolygons != 2 {
		t.Fatalf("report = %+v", res.Report)
	}
}

func TestLeaves(t *testing.T) {
	in := mustParse(t, `{"invoice_number":"INV-2024-001","items":[{"name":"Widget"}]}`)
	leaves := Leaves(Enrich(in, sampleIndex()).Tree)
	if len(leaves) != 2 {
		t.Fatalf("leaves = %d", len(leaves))
	}
	if leaves[0].Path != "invoice_number" || leaves[1].Path != "items[0].name" {
		t.Fatalf("paths = %q, %q", leaves[0].Path, leaves[1].Path)
	}
	want := []spatial.Polygon{{Points: []float64{3, 1, 6, 1, 6, 2, 3, 2}, PageNumber: 1}}
	if diff := cmp.Diff(want, leaves[0].Polygons); diff != "" {
		t.Fatalf("polygons (-want +got):\n%s", diff)
	}
	if leaves[0].Source != "kv-exact" || leaves[0].Confidence == nil || *leaves[0].Confidence != 0.93 {
		t.Fatalf("leaf = %+v", leaves[0])
	}
	if leaves[1].Source != "word-fuzzy" || *leaves[1].Confidence != 0.98 {
		t.Fatalf("leaf = %+v", leaves[1])
	}
}

func TestReportCoverage(t *testing.T) {
	if (Report{}).Coverage() != 0 {
		t.Fatal("empty coverage")
	}
	if got := (Report{TotalFields: 4, FieldsWithPolygons: 1}).Coverage(); got != 0.25 {
		t.Fatalf("coverage = %v", got)
	}
}

func mustJSON(t *testing.T, v tree.Value) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
