package match

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/feature"
)

func directRefs() []Reference {
	return []Reference{
		{SongID: 1, SongTitle: "Zugvogel", SegmentIndex: 0, Features: []float64{1, 0, 0, 0}},
		{SongID: 1, SongTitle: "Zugvogel", SegmentIndex: 1, Features: []float64{0, 1, 0, 0}},
		{SongID: 2, SongTitle: "Abendrot", SegmentIndex: 0, Features: []float64{0, 0, 1, 1}},
	}
}

func TestDirectExactMatch(t *testing.T) {
	m := NewDirectCosineMatcher(directRefs(), 0, nil)

	res, err := m.Match(feature.Vector{Values: []float64{0, 1, 0, 0}}, Context{})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res == nil {
		t.Fatal("expected a match for an exact reference vector")
	}
	if res.SongID != 1 || res.SegmentIndex != 1 {
		t.Errorf("matched (%d, %d), want (1, 1)", res.SongID, res.SegmentIndex)
	}
	if res.Confidence < 0.9999 {
		t.Errorf("confidence = %v, want 1.0 for an identical vector", res.Confidence)
	}
	if res.Distance > 0.0001 {
		t.Errorf("distance = %v, want 0 for an identical vector", res.Distance)
	}
}

func TestDirectBelowThreshold(t *testing.T) {
	m := NewDirectCosineMatcher(directRefs(), 0.85, nil)

	// Roughly equidistant from everything: best cosine well under 0.85.
	res, err := m.Match(feature.Vector{Values: []float64{1, 1, 1, -1}}, Context{})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res != nil {
		t.Errorf("got %+v, want nil below threshold", res)
	}
}

func TestDirectRepeatSuppression(t *testing.T) {
	m := NewDirectCosineMatcher(directRefs(), 0, nil)
	q := feature.Vector{Values: []float64{1, 0, 0, 0}}

	first, err := m.Match(q, Context{})
	if err != nil || first == nil {
		t.Fatalf("first match: res=%v err=%v", first, err)
	}
	second, err := m.Match(q, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if second != nil {
		t.Errorf("repeat of the same identity should be suppressed, got %+v", second)
	}

	// A different segment breaks the streak.
	other, err := m.Match(feature.Vector{Values: []float64{0, 1, 0, 0}}, Context{})
	if err != nil || other == nil {
		t.Fatalf("identity change: res=%v err=%v", other, err)
	}
	if other.SegmentIndex != 1 {
		t.Errorf("segment = %d, want 1", other.SegmentIndex)
	}

	m.Reset()
	again, err := m.Match(q, Context{})
	if err != nil || again == nil {
		t.Fatalf("after reset: res=%v err=%v", again, err)
	}
}

func TestDirectTruncationCounted(t *testing.T) {
	var buf bytes.Buffer
	diag := log.New(&buf, "diag: ", 0)
	refs := []Reference{
		{SongID: 1, SegmentIndex: 0, Features: []float64{1, 0, 0, 0, 0, 0}},
	}
	m := NewDirectCosineMatcher(refs, 0, diag)

	res, err := m.Match(feature.Vector{Values: []float64{1, 0, 0, 0}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("truncated comparison should still match on the shared prefix")
	}
	if got := m.TruncatedComparisons(); got != 1 {
		t.Errorf("TruncatedComparisons = %d, want 1", got)
	}
	if buf.Len() == 0 {
		t.Error("first truncation should be logged")
	}
}

func TestDirectEmptyCatalog(t *testing.T) {
	m := NewDirectCosineMatcher(nil, 0, nil)
	res, err := m.Match(feature.Vector{Values: []float64{1, 2, 3}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("empty catalog must yield nil, got %+v", res)
	}
}

// refRepo is a canned catalog.Repository for loader tests.
type refRepo struct {
	songs   []catalog.Song
	vectors map[int64][]catalog.ReferenceVector
	parts   map[int64][]catalog.SongPart
}

func (r *refRepo) GetAllSongs(context.Context) ([]catalog.Song, error) { return r.songs, nil }

func (r *refRepo) GetReferenceVectors(_ context.Context, songID int64) ([]catalog.ReferenceVector, error) {
	return r.vectors[songID], nil
}

func (r *refRepo) AddReferenceVector(context.Context, catalog.ReferenceVector) (int64, error) {
	return 0, nil
}

func (r *refRepo) GetSongParts(_ context.Context, songID int64) ([]catalog.SongPart, error) {
	return r.parts[songID], nil
}

func (r *refRepo) GetCue(context.Context, int64, int) (map[int][]byte, error) {
	return nil, catalog.ErrNotFound
}

func (r *refRepo) GetAccent(context.Context, string) (map[int][]byte, error) {
	return nil, catalog.ErrNotFound
}

func (r *refRepo) GetSetlist(context.Context, int64) (*catalog.Setlist, error) {
	return nil, catalog.ErrNotFound
}

func TestLoadReferencesResolvesParts(t *testing.T) {
	repo := &refRepo{
		songs: []catalog.Song{{ID: 1, Name: "Zugvogel"}},
		vectors: map[int64][]catalog.ReferenceVector{
			1: {
				{SongID: 1, SegmentIndex: 0, Features: []float64{1, 0}},
				{SongID: 1, SegmentIndex: 3, Features: []float64{0, 1}},
				{SongID: 1, SegmentIndex: 9, Features: []float64{1, 1}},
			},
		},
		parts: map[int64][]catalog.SongPart{
			1: {
				{SongID: 1, PartName: "verse", StartSegment: 0, EndSegment: 2},
				{SongID: 1, PartName: "chorus", StartSegment: 3, EndSegment: 5},
			},
		},
	}

	refs, err := LoadReferences(context.Background(), repo)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 3 {
		t.Fatalf("loaded %d references, want 3", len(refs))
	}
	if refs[0].SongPart != "verse" || refs[1].SongPart != "chorus" {
		t.Errorf("parts = %q, %q, want verse, chorus", refs[0].SongPart, refs[1].SongPart)
	}
	if refs[2].SongPart != "" {
		t.Errorf("segment 9 is outside every part range, got %q", refs[2].SongPart)
	}

	// A match on a loaded reference reports the resolved part.
	m := NewDirectCosineMatcher(refs, 0, nil)
	res, err := m.Match(feature.Vector{Values: []float64{0, 1}}, Context{})
	if err != nil || res == nil {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if res.SongPart != "chorus" {
		t.Errorf("matched part = %q, want chorus", res.SongPart)
	}
}

func TestDirectZeroQueryIgnored(t *testing.T) {
	m := NewDirectCosineMatcher(directRefs(), 0, nil)
	res, err := m.Match(feature.Vector{Values: make([]float64, 4)}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("zero vector means insufficient data, got %+v", res)
	}
}
