// Package match identifies the song and position being played by
// comparing live feature vectors against the reference catalog.
package match

import (
	"time"

	"github.com/christianprison/lighting.ai/internal/feature"
)

// Result names the song position a matcher settled on.
type Result struct {
	SongID       int64
	SongTitle    string
	SongPart     string
	SegmentIndex int
	Bar          int
	BeatInBar    int
	// Distance is the raw, non-negative distance of the winning
	// candidate before any re-ranking. Cosine matchers report
	// 1 - similarity.
	Distance float64
	// Confidence is in [0,1]. Cosine matchers report similarity
	// directly; distance-based matchers map their score into it.
	Confidence float64
}

// Context carries the live musical position alongside a query vector.
// Matchers that only look at feature values ignore it.
type Context struct {
	Bar          int
	BeatInBar    int
	TimestampSec float64
	SessionDate  time.Time
}

// Matcher maps a live feature vector to a catalog position, or to
// nothing when no candidate is credible.
type Matcher interface {
	// Match returns nil when no reference passes the matcher's
	// acceptance criteria. A nil result is normal between songs.
	Match(vec feature.Vector, qc Context) (*Result, error)
}
