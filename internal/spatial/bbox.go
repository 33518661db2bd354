package spatial

// NormalizeBBox reconciles the box encodings providers send into corner-point polygons.
//
//   - 8 numbers are already a polygon and are returned as is.
//   - 4 numbers are read as (x, y, width, height) and expanded clockwise from
//     the top-left corner.
//   - anything else is returned unmodified; callers treat it as an opaque polygon.
func NormalizeBBox(bbox []float64) []float64 {
	switch len(bbox) {
	case 4:
		x, y, w, h := bbox[0], bbox[1], bbox[2], bbox[3]
		return []float64{x, y, x + w, y, x + w, y + h, x, y + h}
	default:
		return bbox
	}
}

// ToFloats converts a decoded JSON array into numbers, dropping entries that are not numeric.
// A nil or non-array input yields nil.
func ToFloats(v any) []float64 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		switch n := e.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		case int64:
			out = append(out, float64(n))
		}
	}
	return out
}
