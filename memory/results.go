package memory

// SearchResults holds the matches of a query as parallel slices, ordered by
// increasing distance. Index i of every slice describes the same document.
type SearchResults struct {
	IDs       []string   `json:"ids"`
	Documents []string   `json:"documents"`
	Metadatas []Metadata `json:"metadatas"`
	Distances []float64  `json:"distances"`
}

// Match is one row of SearchResults.
type Match struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// Len returns the number of matches.
func (r *SearchResults) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// At returns the i-th match. It panics if i is out of range.
func (r *SearchResults) At(i int) Match {
	return Match{
		ID:       r.IDs[i],
		Text:     r.Documents[i],
		Metadata: r.Metadatas[i],
		Distance: r.Distances[i],
	}
}

// Matches returns the results as a slice of rows.
func (r *SearchResults) Matches() []Match {
	out := make([]Match, r.Len())
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}
