package spatial

// Polygon is a flat list of corner coordinates (x1,y1,...,x4,y4) on a 1-indexed page.
// An empty Points slice means the location is unknown.
type Polygon struct {
	Points     []float64 `json:"points"`
	PageNumber int       `json:"pageNumber"`
}

// Word is a single recognized token.
type Word struct {
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	PageNumber int       `json:"pageNumber"`
	Points     []float64 `json:"points"`
}

// Line is a run of words sharing a baseline. Providers that expose text blocks
// instead of lines report them here too.
type Line struct {
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty"`
	PageNumber int       `json:"pageNumber"`
	Points     []float64 `json:"points"`
}

// Region is the key or the value half of a KeyValuePair.
type Region struct {
	Content          string    `json:"content"`
	BoundingPolygons []Polygon `json:"boundingPolygons"`
}

type KeyValuePair struct {
	Key        Region   `json:"key"`
	Value      Region   `json:"value"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type Paragraph struct {
	Content          string    `json:"content"`
	Role             *string   `json:"role,omitempty"`
	BoundingPolygons []Polygon `json:"boundingPolygons"`
}

// Index is the canonical, provider-independent view of one analyzed document.
// It is built once per analysis and treated as read-only afterwards.
type Index struct {
	Content       string         `json:"content"`
	Words         []Word         `json:"words"`
	Lines         []Line         `json:"lines"`
	KeyValuePairs []KeyValuePair `json:"keyValuePairs"`
	Paragraphs    []Paragraph    `json:"paragraphs"`
}

// Empty returns an index with non-nil, empty collections so it serializes as [] rather than null.
func Empty() Index {
	return Index{
		Words:         []Word{},
		Lines:         []Line{},
		KeyValuePairs: []KeyValuePair{},
		Paragraphs:    []Paragraph{},
	}
}

// Counts reports the size of each collection.
type Counts struct {
	Words         int `json:"words"`
	Lines         int `json:"lines"`
	KeyValuePairs int `json:"keyValuePairs"`
	Paragraphs    int `json:"paragraphs"`
}

func (ix Index) Counts() Counts {
	return Counts{
		Words:         len(ix.Words),
		Lines:         len(ix.Lines),
		KeyValuePairs: len(ix.KeyValuePairs),
		Paragraphs:    len(ix.Paragraphs),
	}
}

// PageOrDefault coerces a missing or invalid page number to 1.
func PageOrDefault(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// Float returns a pointer to v; handy for optional confidences.
func Float(v float64) *float64 { return &v }
