// Package catalog provides read access to the persisted reference
// material the matchers and cue resolution run against: songs, per-segment
// reference vectors, light programs, and the nearest-neighbour index.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/christianprison/lighting.ai/internal/vecindex"
)

// ErrNotFound is returned for lookups of absent songs, cues, or accents.
var ErrNotFound = errors.New("catalog: not found")

// Song is one entry of the songs table.
type Song struct {
	ID       int64
	Name     string
	Artist   string
	Duration float64
	BPM      float64
	Notes    string
}

// SongPart names a segment range (verse, chorus, ...) of a song.
type SongPart struct {
	ID           int64
	SongID       int64
	PartName     string
	StartSegment int
	EndSegment   int
}

// ReferenceVector is the exact per-segment feature snapshot used by the
// direct matcher.
type ReferenceVector struct {
	SongID       int64
	SegmentIndex int
	Timestamp    float64
	Features     []float64
}

// Setlist is an ordered list of songs for Show mode.
type Setlist struct {
	ID          int64
	Name        string
	Description string
	SongIDs     []int64
}

// Repository is the narrow persistence interface the real-time pipeline
// consumes. The administrative editing surface lives elsewhere; the
// pipeline only ever reads, except for probe-mode capture inserts.
type Repository interface {
	GetAllSongs(ctx context.Context) ([]Song, error)
	GetReferenceVectors(ctx context.Context, songID int64) ([]ReferenceVector, error)
	AddReferenceVector(ctx context.Context, rv ReferenceVector) (int64, error)
	GetSongParts(ctx context.Context, songID int64) ([]SongPart, error)

	// GetCue returns the per-universe DMX channel arrays for a segment.
	GetCue(ctx context.Context, songID int64, segmentIndex int) (map[int][]byte, error)

	// GetAccent returns the per-universe frames of a named manual accent
	// (strobe, fog, blackout looks fired by the operator).
	GetAccent(ctx context.Context, name string) (map[int][]byte, error)

	GetSetlist(ctx context.Context, id int64) (*Setlist, error)
}

// Catalog couples the repository with an atomically swappable index
// handle. Queries in flight keep the snapshot they started with; a reload
// installs a new handle rather than mutating the old one.
type Catalog struct {
	Repo Repository
	idx  atomic.Pointer[vecindex.Index]
}

// NewCatalog wraps a repository. The index starts absent; matchers treat
// that as an empty catalog, not an error.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{Repo: repo}
}

// Index returns the current index snapshot, or nil when none is loaded.
func (c *Catalog) Index() *vecindex.Index {
	return c.idx.Load()
}

// SwapIndex atomically installs a new index snapshot.
func (c *Catalog) SwapIndex(ix *vecindex.Index) {
	c.idx.Store(ix)
}

// LoadIndex reads the index at path and installs it. A missing index file
// leaves the catalog empty and returns nil: a fresh deployment has no
// reference material yet.
func (c *Catalog) LoadIndex(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.SwapIndex(nil)
		return nil
	}
	ix, err := vecindex.Load(path)
	if err != nil {
		return fmt.Errorf("load index %s: %w", path, err)
	}
	c.SwapIndex(ix)
	return nil
}

// ValidateDim fails when the loaded index disagrees with the extractor's
// feature dimension. Called at startup: a mismatch is a configuration
// error, never silently adapted to.
func (c *Catalog) ValidateDim(featureDim int) error {
	ix := c.Index()
	if ix == nil {
		return nil
	}
	if ix.FeatureDim() != featureDim {
		return fmt.Errorf("catalog: index feature dim %d, extractor dim %d", ix.FeatureDim(), featureDim)
	}
	return nil
}
