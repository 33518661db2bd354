package matcher

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// Substitution costs two edits (delete + insert) so Distance yields the indel distance,
// which is what the normalized ratio below is defined on.
var indel = levenshtein.NewParams().SubCost(2)

// Ratio returns a 0-100 similarity: 100 * (1 - indelDistance / (len(a)+len(b))), measured in runes.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la+lb == 0 {
		return 100
	}
	d := levenshtein.Distance(a, b, indel)
	return 100 * (1 - float64(d)/float64(la+lb))
}

// PartialRatio scores the shorter string against the best-aligned window of the longer one.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}
	s := string(short)
	m := len(short)
	best := 0.0
	consider := func(window []rune) bool {
		if r := Ratio(s, string(window)); r > best {
			best = r
		}
		return best >= 100
	}
	for i := 0; i+m <= len(long); i++ {
		if consider(long[i : i+m]) {
			return 100
		}
	}
	// windows hanging off either end
	for k := 1; k < m && k <= len(long); k++ {
		if consider(long[:k]) || consider(long[len(long)-k:]) {
			return 100
		}
	}
	return best
}

// fold lowercases and composes s so visually equal text compares equal.
func fold(s string) string {
	return norm.NFC.String(strings.ToLower(s))
}

// NormalizeKey folds naming-convention differences: "invoice_number", "Invoice-Number"
// and "invoice number" all normalize to the same key.
func NormalizeKey(key string) string {
	k := fold(key)
	k = strings.ReplaceAll(k, "_", " ")
	k = strings.ReplaceAll(k, "-", " ")
	return strings.TrimSpace(k)
}

// PercentFromFraction converts a request-level 0.0-1.0 threshold into the 0-100 scale used here.
// Values outside [0,1] are clamped; NaN falls back to DefaultThreshold.
func PercentFromFraction(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return DefaultThreshold
	case f <= 0:
		return 0
	case f >= 1:
		return 100
	}
	return math.Round(f*1e6) / 1e4
}
