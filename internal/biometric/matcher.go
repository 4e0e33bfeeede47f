package biometric

// Result is the outcome of a scan. SubjectID and Distance describe the
// nearest candidate seen, even when it was not accepted.
type Result struct {
	SubjectID string
	Distance  float64
	// Skipped lists candidates whose dimensionality differs from the probe.
	Skipped []Candidate
}

// Matcher finds the enrolled vector closest to a probe.
// The bool result is true only if the nearest distance is strictly below
// the matcher's threshold. Implementations must be safe for concurrent use
// and must not modify the gallery.
type Matcher interface {
	Match(probe Vector, gallery *Gallery) (Result, bool)
	Threshold() float64
}

// ExactMatcher performs an exhaustive O(n*d) scan.
// On exact ties the first candidate in gallery order wins.
type ExactMatcher struct {
	threshold float64
}

// NewExactMatcher creates an exhaustive matcher. A non-positive threshold
// falls back to DefaultThreshold.
func NewExactMatcher(threshold float64) *ExactMatcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &ExactMatcher{threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (m *ExactMatcher) Threshold() float64 {
	return m.threshold
}

// Match scans every candidate in the gallery.
func (m *ExactMatcher) Match(probe Vector, gallery *Gallery) (Result, bool) {
	res := scan(probe, candidatesOf(gallery))
	return res, res.SubjectID != "" && res.Distance < m.threshold
}

func candidatesOf(g *Gallery) []Candidate {
	if g == nil {
		return nil
	}
	return g.Candidates
}

// scan returns the nearest candidate. Mismatched candidates are collected in
// Skipped and never considered.
func scan(probe Vector, candidates []Candidate) Result {
	var res Result
	found := false
	for _, c := range candidates {
		d, ok := EuclideanDistance(probe, c.Vector)
		if !ok {
			res.Skipped = append(res.Skipped, c)
			continue
		}
		if !found || d < res.Distance {
			res.SubjectID = c.SubjectID
			res.Distance = d
			found = true
		}
	}
	return res
}
