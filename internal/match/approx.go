package match

import (
	"fmt"
	"math"
	"time"

	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/feature"
	"github.com/christianprison/lighting.ai/internal/vecindex"
)

// DefaultTopK is how many nearest neighbors the approximate matcher
// re-ranks per query.
const DefaultTopK = 10

// ApproxConfig tunes the approximate matcher. The re-ranking knobs are
// live-tuned heuristics, so they are named configuration rather than
// constants in the scoring code.
type ApproxConfig struct {
	// TopK is the number of nearest neighbors fetched per query.
	// Non-positive selects DefaultTopK.
	TopK int

	// DatePenaltyPerYear scales a candidate's distance up for each year
	// between its recording date and the session date. Zero disables
	// the penalty.
	DatePenaltyPerYear float64

	// BarWindow is the maximum bar delta that still earns BarBonus.
	BarWindow int

	// BarBonus multiplies the distance of candidates within BarWindow
	// bars of the live position; values below 1 favour them.
	// Non-positive selects the default.
	BarBonus float64
}

// DefaultApproxConfig returns the tuning the re-ranking shipped with.
func DefaultApproxConfig() ApproxConfig {
	return ApproxConfig{
		TopK:               DefaultTopK,
		DatePenaltyPerYear: 0.1,
		BarWindow:          2,
		BarBonus:           0.95,
	}
}

// ApproximateVectorMatcher queries the vector index for the nearest
// stored segments, then re-ranks them by recording age and bar
// agreement. It reads the index through the catalog so a rebuild
// swapped in at runtime is picked up on the next beat.
type ApproximateVectorMatcher struct {
	cat *catalog.Catalog
	cfg ApproxConfig
}

func NewApproximateVectorMatcher(cat *catalog.Catalog, cfg ApproxConfig) *ApproximateVectorMatcher {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.DatePenaltyPerYear < 0 {
		cfg.DatePenaltyPerYear = 0
	}
	if cfg.BarWindow < 0 {
		cfg.BarWindow = 0
	}
	if cfg.BarBonus <= 0 {
		cfg.BarBonus = DefaultApproxConfig().BarBonus
	}
	return &ApproximateVectorMatcher{cat: cat, cfg: cfg}
}

// Match augments the query with the live musical position, fetches the
// top-K nearest neighbors, and returns the candidate with the lowest
// adjusted score. An empty or absent index yields nil, not an error.
// A dimension mismatch between query and index is a configuration
// fault and is reported as an error.
func (m *ApproximateVectorMatcher) Match(vec feature.Vector, qc Context) (*Result, error) {
	idx := m.cat.Index()
	if idx == nil || idx.Len() == 0 {
		return nil, nil
	}
	if vec.IsZero() {
		return nil, nil
	}
	if vec.Dim() != idx.FeatureDim() {
		return nil, fmt.Errorf("query dim %d does not fit index feature dim %d", vec.Dim(), idx.FeatureDim())
	}

	aug := make([]float64, 0, vec.Dim()+vecindex.Augment)
	aug = append(aug, vec.Values...)
	aug = append(aug, float64(qc.Bar), float64(qc.BeatInBar), qc.TimestampSec)

	neighbors, err := idx.Query(aug, m.cfg.TopK)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	bestScore := math.Inf(1)
	var best *vecindex.Neighbor
	for i := range neighbors {
		n := &neighbors[i]
		score := m.rescore(n, qc)
		if score < bestScore {
			bestScore = score
			best = n
		}
	}

	return &Result{
		SongID:       best.Meta.SongID,
		SongTitle:    best.Meta.SongTitle,
		SongPart:     best.Meta.SongPart,
		SegmentIndex: best.Meta.SegmentIndex,
		Bar:          best.Meta.Bar,
		BeatInBar:    best.Meta.BeatInBar,
		Distance:     best.Distance,
		Confidence:   1 / (1 + bestScore),
	}, nil
}

// rescore adjusts the raw index distance: recordings farther from the
// session date are penalized per year of separation, and a stored bar
// within BarWindow of the live bar earns the bonus.
func (m *ApproximateVectorMatcher) rescore(n *vecindex.Neighbor, qc Context) float64 {
	score := n.Distance
	if m.cfg.DatePenaltyPerYear > 0 && !qc.SessionDate.IsZero() && n.Meta.RecordingDate != "" {
		if rec, err := time.Parse("2006-01-02", n.Meta.RecordingDate); err == nil {
			days := math.Abs(qc.SessionDate.Sub(rec).Hours() / 24)
			score *= 1 + m.cfg.DatePenaltyPerYear*(days/365)
		}
	}
	if delta := n.Meta.Bar - qc.Bar; delta >= -m.cfg.BarWindow && delta <= m.cfg.BarWindow {
		score *= m.cfg.BarBonus
	}
	return score
}
