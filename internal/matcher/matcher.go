// Package matcher locates extracted field values inside a spatial.Index.
//
// Matching runs in two passes. The first looks for a key-value pair whose key
// resembles the field name and whose value resembles the field value. Only when
// that finds nothing does the second pass fuzzy-match the value against lines
// and words. Results from both are deduplicated by location.
package matcher

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
	"github.com/joseph-ayodele/polygon-locator/internal/tree"
)

// DefaultThreshold is the minimum similarity (0-100) a candidate needs.
const DefaultThreshold = 90.0

// Source tags which pass and comparison produced a match.
type Source string

const (
	SourceKVExact     Source = "kv-exact"
	SourceLineFuzzy   Source = "line-fuzzy"
	SourceLinePartial Source = "line-partial"
	SourceWordFuzzy   Source = "word-fuzzy"
	SourceWordPartial Source = "word-partial"
)

// Match is one candidate location for a field value.
type Match struct {
	Points          []float64 `json:"points"`
	PageNumber      int       `json:"pageNumber"`
	Source          Source    `json:"source"`
	MatchedContent  string    `json:"matchedContent"`
	Confidence      *float64  `json:"confidence,omitempty"`
	Similarity      float64   `json:"similarity,omitempty"`
	KeySimilarity   float64   `json:"keySimilarity,omitempty"`
	ValueSimilarity float64   `json:"valueSimilarity,omitempty"`
}

// Score is the pair confidence for kv-exact matches and the similarity for fuzzy ones.
func (m Match) Score() float64 {
	if m.Source == SourceKVExact {
		if m.Confidence == nil {
			return 0
		}
		return *m.Confidence
	}
	return m.Similarity
}

// Polygon is the match location as it appears under boundingPolygons.
func (m Match) Polygon() spatial.Polygon {
	return spatial.Polygon{Points: m.Points, PageNumber: m.PageNumber}
}

// rank orders matches that share a location; missing values count as 0.
func (m Match) rank() float64 {
	var c float64
	if m.Confidence != nil {
		c = *m.Confidence
	}
	if m.Similarity > c {
		return m.Similarity
	}
	return c
}

// FindMatches returns every location of value in ix, deduplicated. A null or blank value
// has no location and yields nil.
func FindMatches(fieldName string, value tree.Value, ix spatial.Index, threshold float64) []Match {
	if value.IsBlank() {
		return nil
	}
	text := value.Text()

	matches := FindKeyValueMatches(fieldName, text, ix.KeyValuePairs, threshold)
	if len(matches) == 0 {
		matches = FindTextMatches(text, ix.Words, ix.Lines, threshold)
	}
	return Deduplicate(matches)
}

// FindKeyValueMatches is the structured pass. An empty value accepts any pair whose key
// matches, returning the value location alone.
func FindKeyValueMatches(fieldName, value string, pairs []spatial.KeyValuePair, threshold float64) []Match {
	var out []Match
	name := NormalizeKey(fieldName)
	value = strings.TrimSpace(value)

	for _, kv := range pairs {
		keySim := Ratio(name, NormalizeKey(kv.Key.Content))
		if keySim < threshold {
			continue
		}
		var valueSim float64
		if value != "" && kv.Value.Content != "" {
			valueSim = Ratio(fold(value), fold(kv.Value.Content))
		}
		if value != "" && valueSim < threshold {
			continue
		}
		for _, p := range kv.Value.BoundingPolygons {
			out = append(out, Match{
				Points:          p.Points,
				PageNumber:      spatial.PageOrDefault(p.PageNumber),
				Source:          SourceKVExact,
				MatchedContent:  kv.Value.Content,
				Confidence:      kv.Confidence,
				KeySimilarity:   keySim,
				ValueSimilarity: valueSim,
			})
		}
	}
	return out
}

// FindTextMatches is the fuzzy pass over lines and words.
//
// Multi-word values are compared with whole lines, and each of their words with each
// indexed word. Single-word values are compared with indexed words and fall back to
// the line scan when no word qualifies, so a value that only appears inside a longer
// line ("Total: 1,234.56") can still be found.
func FindTextMatches(value string, words []spatial.Word, lines []spatial.Line, threshold float64) []Match {
	search := fold(strings.TrimSpace(value))
	if search == "" {
		return nil
	}
	terms := strings.Fields(search)

	var out []Match
	if len(terms) > 1 {
		out = append(out, scanLines(search, lines, threshold)...)
	}

	for _, w := range words {
		content := fold(w.Content)
		if len(terms) == 1 {
			if sim := Ratio(search, content); sim >= threshold {
				out = append(out, wordMatch(w, SourceWordFuzzy, sim))
			}
			continue
		}
		for _, term := range terms {
			if sim := Ratio(term, content); sim >= threshold {
				out = append(out, wordMatch(w, SourceWordPartial, sim))
			}
		}
	}

	if len(terms) == 1 && len(out) == 0 {
		out = scanLines(search, lines, threshold)
	}
	return out
}

func scanLines(search string, lines []spatial.Line, threshold float64) []Match {
	var out []Match
	for _, l := range lines {
		content := fold(l.Content)
		if sim := Ratio(search, content); sim >= threshold {
			out = append(out, lineMatch(l, SourceLineFuzzy, sim))
		}
		if strings.Contains(content, search) {
			if sim := PartialRatio(search, content); sim >= threshold {
				out = append(out, lineMatch(l, SourceLinePartial, sim))
			}
		}
	}
	return out
}

// lineMatch never carries a confidence; only words and kv pairs report one.
func lineMatch(l spatial.Line, src Source, sim float64) Match {
	return Match{
		Points:         l.Points,
		PageNumber:     spatial.PageOrDefault(l.PageNumber),
		Source:         src,
		MatchedContent: l.Content,
		Similarity:     sim,
	}
}

func wordMatch(w spatial.Word, src Source, sim float64) Match {
	return Match{
		Points:         w.Points,
		PageNumber:     spatial.PageOrDefault(w.PageNumber),
		Source:         src,
		MatchedContent: w.Content,
		Confidence:     w.Confidence,
		Similarity:     sim,
	}
}

// Deduplicate keeps one match per (points, page). Within a group the highest of
// confidence/similarity wins and ties keep the earliest. Output follows first-seen order.
func Deduplicate(matches []Match) []Match {
	if len(matches) == 0 {
		return matches
	}
	type locKey struct {
		points string
		page   int
	}
	seen := make(map[locKey]int, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		k := locKey{points: pointsKey(m.Points), page: m.PageNumber}
		if i, ok := seen[k]; ok {
			if m.rank() > out[i].rank() {
				out[i] = m
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, m)
	}
	return out
}

func pointsKey(pts []float64) string {
	var b strings.Builder
	for i, p := range pts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
	}
	return b.String()
}
