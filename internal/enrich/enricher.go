// Package enrich annotates an extraction tree with the page locations of its values.
package enrich

import (
	"log/slog"
	"time"

	"github.com/joseph-ayodele/polygon-locator/internal/matcher"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

// MetadataKey is the root key the Report is attached under.
const MetadataKey = "_polygonMetadata"

// excluded top-level keys carry upstream failure details and are copied through untouched.
var excluded = map[string]struct{}{
	"error":             {},
	"error_type":        {},
	"extraction_failed": {},
	"raw_content":       {},
	"parsing_error":     {},
}

// IsExcluded reports whether a top-level key is passed through without enrichment.
func IsExcluded(key string) bool {
	_, ok := excluded[key]
	return ok
}

type options struct {
	threshold float64
	logger    *slog.Logger
}

// Option configures Enrich.
type Option func(*options)

// WithThreshold sets the 0-100 similarity threshold.
func WithThreshold(t float64) Option { return func(o *options) { o.threshold = t } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Result is the enriched tree plus its coverage report.
type Result struct {
	Tree   tree.Value
	Report Report
}

// Enrich walks root and replaces every scalar leaf with a
// {value, boundingPolygons, source?, confidence?} record. When root is an object the
// report is also attached under MetadataKey. Enrich never fails: a value that cannot
// be located gets an empty boundingPolygons list.
func Enrich(root tree.Value, ix spatial.Index, opts ...Option) Result {
	o := options{threshold: matcher.DefaultThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	logger.Debug("enrich.start", "threshold", o.threshold, "kind", root.Kind().String())

	w := walker{ix: ix, threshold: o.threshold}
	var out tree.Value
	if root.Kind() == tree.Object {
		members := make([]tree.Member, 0, len(root.Members())+1)
		for _, m := range root.Members() {
			if IsExcluded(m.Key) {
				members = append(members, m)
				continue
			}
			members = append(members, tree.Member{Key: m.Key, Value: w.value(m.Key, m.Value)})
		}
		out = tree.ObjectValue(members...)
	} else {
		out = w.value("", root)
	}

	report := BuildReport(out, ix, o.threshold)
	if out.Kind() == tree.Object {
		out = out.With(MetadataKey, report.Value())
	}

	logger.Info("enrich.complete",
		"fields", report.TotalFields,
		"with_polygons", report.FieldsWithPolygons,
		"threshold", o.threshold,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Tree: out, Report: report}
}

type walker struct {
	ix        spatial.Index
	threshold float64
}

// value enriches v found under key. Arrays keep the enclosing key as field name.
func (w walker) value(key string, v tree.Value) tree.Value {
	switch v.Kind() {
	case tree.Object:
		members := make([]tree.Member, 0, len(v.Members()))
		for _, m := range v.Members() {
			members = append(members, tree.Member{Key: m.Key, Value: w.value(m.Key, m.Value)})
		}
		return tree.ObjectValue(members...)
	case tree.Array:
		items := make([]tree.Value, 0, v.Len())
		for _, it := range v.Items() {
			items = append(items, w.value(key, it))
		}
		return tree.ArrayValue(items...)
	default:
		return w.leaf(key, v)
	}
}

func (w walker) leaf(key string, v tree.Value) tree.Value {
	matches := matcher.FindMatches(key, v, w.ix, w.threshold)

	polys := make([]tree.Value, 0, len(matches))
	for _, m := range matches {
		polys = append(polys, polygonValue(m.Polygon()))
	}
	leaf := tree.ObjectValue(
		tree.Member{Key: "value", Value: v},
		tree.Member{Key: "boundingPolygons", Value: tree.ArrayValue(polys...)},
	)
	if len(matches) > 0 {
		first := matches[0]
		leaf = leaf.With("source", tree.StringValue(string(first.Source)))
		if first.Confidence != nil {
			leaf = leaf.With("confidence", tree.FloatValue(*first.Confidence))
		}
	}
	return leaf
}

func polygonValue(poly spatial.Polygon) tree.Value {
	pts := make([]tree.Value, 0, len(poly.Points))
	for _, p := range poly.Points {
		pts = append(pts, tree.FloatValue(p))
	}
	return tree.ObjectValue(
		tree.Member{Key: "points", Value: tree.ArrayValue(pts...)},
		tree.Member{Key: "pageNumber", Value: tree.IntValue(int64(spatial.PageOrDefault(poly.PageNumber)))},
	)
}
