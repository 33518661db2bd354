package enrich

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

// Report summarizes how much of an extraction could be located.
type Report struct {
	TotalFields          int            `json:"totalFields"`
	FieldsWithPolygons   int            `json:"fieldsWithPolygons"`
	CorrelationThreshold float64        `json:"correlationThreshold"`
	SourceDataAvailable  spatial.Counts `json:"sourceDataAvailable"`
}

// Coverage is the matched share of fields in [0,1]; 0 when there are no fields.
func (r Report) Coverage() float64 {
	if r.TotalFields == 0 {
		return 0
	}
	return float64(r.FieldsWithPolygons) / float64(r.TotalFields)
}

// Value renders the report as it is attached to the enriched tree.
func (r Report) Value() tree.Value {
	c := r.SourceDataAvailable
	return tree.ObjectValue(
		tree.Member{Key: "totalFields", Value: tree.IntValue(int64(r.TotalFields))},
		tree.Member{Key: "fieldsWithPolygons", Value: tree.IntValue(int64(r.FieldsWithPolygons))},
		tree.Member{Key: "correlationThreshold", Value: tree.FloatValue(r.CorrelationThreshold)},
		tree.Member{Key: "sourceDataAvailable", Value: tree.ObjectValue(
			tree.Member{Key: "words", Value: tree.IntValue(int64(c.Words))},
			tree.Member{Key: "lines", Value: tree.IntValue(int64(c.Lines))},
			tree.Member{Key: "keyValuePairs", Value: tree.IntValue(int64(c.KeyValuePairs))},
			tree.Member{Key: "paragraphs", Value: tree.IntValue(int64(c.Paragraphs))},
		)},
	)
}

// BuildReport counts the leaves of an enriched tree. The count depends only on the tree.
func BuildReport(enriched tree.Value, ix spatial.Index, threshold float64) Report {
	r := Report{CorrelationThreshold: threshold, SourceDataAvailable: ix.Counts()}
	for _, l := range Leaves(enriched) {
		r.TotalFields++
		if len(l.Polygons) > 0 {
			r.FieldsWithPolygons++
		}
	}
	return r
}

// Leaf is one enriched field together with its dotted path from the root.
type Leaf struct {
	Path       string
	Value      tree.Value
	Polygons   []spatial.Polygon
	Source     string
	Confidence *float64
}

// IsLeaf reports whether v has the enriched-leaf shape.
func IsLeaf(v tree.Value) bool {
	return v.Kind() == tree.Object && v.Has("value") && v.Has("boundingPolygons")
}

// Leaves lists every enriched leaf in document order. Keys starting with "_" and
// excluded top-level keys are skipped.
func Leaves(enriched tree.Value) []Leaf {
	var out []Leaf
	if enriched.Kind() == tree.Object {
		for _, m := range enriched.Members() {
			if IsExcluded(m.Key) {
				continue
			}
			out = collect(out, m.Key, m.Key, m.Value)
		}
		return out
	}
	return collect(out, "", "", enriched)
}

func collect(out []Leaf, key, path string, v tree.Value) []Leaf {
	if strings.HasPrefix(key, "_") {
		return out
	}
	if IsLeaf(v) {
		return append(out, decodeLeaf(path, v))
	}
	switch v.Kind() {
	case tree.Object:
		for _, m := range v.Members() {
			out = collect(out, m.Key, joinPath(path, m.Key), m.Value)
		}
	case tree.Array:
		for i, it := range v.Items() {
			out = collect(out, "", path+"["+strconv.Itoa(i)+"]", it)
		}
	}
	return out
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func decodeLeaf(path string, v tree.Value) Leaf {
	l := Leaf{Path: path}
	l.Value, _ = v.Get("value")
	if s, ok := v.Get("source"); ok && s.Kind() == tree.String {
		l.Source = s.Str()
	}
	if c, ok := v.Get("confidence"); ok && c.Kind() == tree.Number {
		if f, err := c.Number().Float64(); err == nil {
			l.Confidence = &f
		}
	}
	bp, _ := v.Get("boundingPolygons")
	for _, p := range bp.Items() {
		var poly spatial.Polygon
		if pts, ok := p.Get("points"); ok {
			for _, n := range pts.Items() {
				if f, err := n.Number().Float64(); err == nil {
					poly.Points = append(poly.Points, f)
				}
			}
		}
		if pg, ok := p.Get("pageNumber"); ok {
			if n, err := pg.Number().Int64(); err == nil {
				poly.PageNumber = int(n)
			}
		}
		poly.PageNumber = spatial.PageOrDefault(poly.PageNumber)
		l.Polygons = append(l.Polygons, poly)
	}
	return l
}
