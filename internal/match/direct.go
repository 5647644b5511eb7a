package match

import (
	"context"
	"log"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/feature"
)

// Reference is one stored segment vector a query is scored against.
type Reference struct {
	SongID       int64
	SongTitle    string
	SongPart     string
	SegmentIndex int
	Features     []float64
}

// DefaultSimilarityThreshold is the minimum cosine similarity an
// accepted match must reach.
const DefaultSimilarityThreshold = 0.85

// DirectCosineMatcher scores the query against every stored reference
// vector. It is exhaustive, so it suits small catalogs and acts as the
// ground truth the approximate matcher is checked against.
type DirectCosineMatcher struct {
	refs      []Reference
	threshold float64
	diag      *log.Logger

	mu          sync.Mutex
	truncated   uint64
	lastSongID  int64
	lastSegment int
	hasLast     bool
}

// NewDirectCosineMatcher builds a matcher over the given references.
// A threshold <= 0 selects DefaultSimilarityThreshold. diag may be nil.
func NewDirectCosineMatcher(refs []Reference, threshold float64, diag *log.Logger) *DirectCosineMatcher {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &DirectCosineMatcher{refs: refs, threshold: threshold, diag: diag}
}

// LoadReferences pulls every song's reference vectors out of the
// repository in a form the direct matcher can score.
func LoadReferences(ctx context.Context, repo catalog.Repository) ([]Reference, error) {
	songs, err := repo.GetAllSongs(ctx)
	if err != nil {
		return nil, err
	}
	var refs []Reference
	for _, s := range songs {
		vecs, err := repo.GetReferenceVectors(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		parts, err := repo.GetSongParts(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		for _, rv := range vecs {
			refs = append(refs, Reference{
				SongID:       s.ID,
				SongTitle:    s.Name,
				SongPart:     partFor(parts, rv.SegmentIndex),
				SegmentIndex: rv.SegmentIndex,
				Features:     rv.Features,
			})
		}
	}
	return refs, nil
}

// partFor names the part whose segment range covers the index, empty
// when no part does.
func partFor(parts []catalog.SongPart, segment int) string {
	for _, p := range parts {
		if segment >= p.StartSegment && segment <= p.EndSegment {
			return p.PartName
		}
	}
	return ""
}

// Match scans every reference and returns the best candidate at or
// above the similarity threshold. A repeat of the previously accepted
// (song, segment) identity is swallowed so downstream cue dispatch is
// not re-triggered on every beat of the same segment.
func (m *DirectCosineMatcher) Match(vec feature.Vector, _ Context) (*Result, error) {
	if vec.IsZero() || len(m.refs) == 0 {
		return nil, nil
	}

	best := -1
	bestSim := -1.0
	for i, ref := range m.refs {
		sim := m.cosine(vec.Values, ref.Features)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	if best < 0 || bestSim < m.threshold {
		return nil, nil
	}

	ref := m.refs[best]

	m.mu.Lock()
	repeat := m.hasLast && m.lastSongID == ref.SongID && m.lastSegment == ref.SegmentIndex
	m.lastSongID = ref.SongID
	m.lastSegment = ref.SegmentIndex
	m.hasLast = true
	m.mu.Unlock()
	if repeat {
		return nil, nil
	}

	return &Result{
		SongID:       ref.SongID,
		SongTitle:    ref.SongTitle,
		SongPart:     ref.SongPart,
		SegmentIndex: ref.SegmentIndex,
		Distance:     1 - bestSim,
		Confidence:   bestSim,
	}, nil
}

// TruncatedComparisons reports how many cosine computations had to
// drop trailing dimensions because the operands differed in length.
func (m *DirectCosineMatcher) TruncatedComparisons() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.truncated
}

// Reset clears the repeat-suppression state, e.g. between songs.
func (m *DirectCosineMatcher) Reset() {
	m.mu.Lock()
	m.hasLast = false
	m.mu.Unlock()
}

// cosine compares the operands truncated to the shorter length. The
// truncation loses information, so every occurrence is counted and the
// first is logged for audit.
func (m *DirectCosineMatcher) cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		m.mu.Lock()
		m.truncated++
		first := m.truncated == 1
		m.mu.Unlock()
		if first && m.diag != nil {
			m.diag.Printf("cosine operand length mismatch (%d vs %d), truncating to %d", len(a), len(b), n)
		}
		a, b = a[:n], b[:n]
	}
	if len(a) == 0 {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
