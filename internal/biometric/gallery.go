package biometric

// Candidate is one enrolled (subject, vector) pair.
type Candidate struct {
	SubjectID string
	Vector    Vector
}

// Gallery is an immutable snapshot of the active enrollment set.
// Generation changes whenever the underlying set changes, which lets
// index-backed matchers reuse a built index across requests.
type Gallery struct {
	Generation uint64
	Candidates []Candidate
}

// NewGallery creates a gallery snapshot.
func NewGallery(generation uint64, candidates []Candidate) *Gallery {
	return &Gallery{Generation: generation, Candidates: candidates}
}

// Len returns the number of candidates, tolerating a nil gallery.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Candidates)
}
