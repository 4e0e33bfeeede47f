package biometric

import (
	"math/rand"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW index parameters for small face galleries.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchK is how many neighbours are re-ranked with the exact metric.
	HNSWSearchK = 16

	// HNSWMinGallery is the gallery size below which a plain scan is used.
	HNSWMinGallery = 256
)

// hnswIndex is a graph built for one gallery generation.
type hnswIndex struct {
	generation uint64
	graph      *hnsw.Graph[string]
	dims       int
	// position maps a subject to its index in the gallery, for tie-breaks.
	position map[string]int
	// offDim holds candidates that could not be added because their
	// dimensionality differs from the dominant one.
	offDim []Candidate
}

// HNSWMatcher answers Match from an in-memory HNSW graph, rebuilding the
// graph whenever the gallery generation changes. Neighbours returned by the
// graph are re-ranked with EuclideanDistance, so accepted distances are
// exact. When the graph yields nothing under the threshold the gallery is
// scanned, so a rejection is always exact.
type HNSWMatcher struct {
	threshold  float64
	minGallery int

	mu    sync.RWMutex
	index *hnswIndex
}

// NewHNSWMatcher creates an index-backed matcher. Galleries smaller than
// minGallery are scanned exhaustively; pass 0 for HNSWMinGallery.
func NewHNSWMatcher(threshold float64, minGallery int) *HNSWMatcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if minGallery <= 0 {
		minGallery = HNSWMinGallery
	}
	return &HNSWMatcher{threshold: threshold, minGallery: minGallery}
}

// Threshold returns the acceptance threshold.
func (m *HNSWMatcher) Threshold() float64 {
	return m.threshold
}

// Match finds the nearest neighbour through the graph.
func (m *HNSWMatcher) Match(probe Vector, gallery *Gallery) (Result, bool) {
	if gallery.Len() < m.minGallery {
		res := scan(probe, candidatesOf(gallery))
		return res, res.SubjectID != "" && res.Distance < m.threshold
	}

	idx := m.indexFor(gallery)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if idx.graph == nil || len(probe) != idx.dims {
		res := scan(probe, gallery.Candidates)
		return res, res.SubjectID != "" && res.Distance < m.threshold
	}

	var res Result
	found := false
	for _, n := range idx.graph.Search([]float32(probe), HNSWSearchK) {
		d, ok := EuclideanDistance(probe, Vector(n.Value))
		if !ok {
			continue
		}
		if !found || d < res.Distance || (d == res.Distance && idx.position[n.Key] < idx.position[res.SubjectID]) {
			res.SubjectID = n.Key
			res.Distance = d
			found = true
		}
	}
	if found && res.Distance < m.threshold {
		res.Skipped = append(res.Skipped, idx.offDim...)
		return res, true
	}

	// The graph missed: confirm the rejection against every candidate.
	res = scan(probe, gallery.Candidates)
	return res, res.SubjectID != "" && res.Distance < m.threshold
}

// indexFor returns the graph for the gallery's generation, building it if needed.
func (m *HNSWMatcher) indexFor(g *Gallery) *hnswIndex {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx != nil && idx.generation == g.Generation {
		return idx
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != nil && m.index.generation == g.Generation {
		return m.index
	}
	m.index = buildIndex(g)
	return m.index
}

// buildIndex adds every candidate of the dominant dimensionality to a new graph.
func buildIndex(g *Gallery) *hnswIndex {
	idx := &hnswIndex{
		generation: g.Generation,
		dims:       dominantDim(g.Candidates),
		position:   make(map[string]int, len(g.Candidates)),
	}
	if idx.dims == 0 {
		return idx
	}

	graph := hnsw.NewGraph[string]()
	graph.M = HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(HNSWMaxNeighbors)
	graph.EfSearch = HNSWEfSearch
	graph.Distance = hnsw.EuclideanDistance
	// Seeded by generation so one gallery always yields the same graph.
	graph.Rng = rand.New(rand.NewSource(int64(g.Generation)))

	for i, c := range g.Candidates {
		idx.position[c.SubjectID] = i
		if len(c.Vector) != idx.dims {
			idx.offDim = append(idx.offDim, c)
			continue
		}
		graph.Add(hnsw.MakeNode(c.SubjectID, []float32(c.Vector)))
	}
	idx.graph = graph
	return idx
}

// dominantDim returns the most common non-zero vector length.
func dominantDim(cs []Candidate) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, c := range cs {
		n := len(c.Vector)
		if n == 0 {
			continue
		}
		counts[n]++
		if counts[n] > bestCount {
			best, bestCount = n, counts[n]
		}
	}
	return best
}
