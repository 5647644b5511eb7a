// Package cue resolves matched song positions to per-universe DMX
// frames.
package cue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/christianprison/lighting.ai/internal/catalog"
)

// Resolver looks up light-program frames for (song, segment) positions.
// Lookups hit the repository once and are cached for the lifetime of
// the resolver, which covers one show; cue edits land in a fresh
// process.
type Resolver struct {
	repo catalog.Repository

	mu      sync.Mutex
	cues    map[cueKey]map[int][]byte
	misses  map[cueKey]bool
	accents map[string]map[int][]byte
}

type cueKey struct {
	songID  int64
	segment int
}

func NewResolver(repo catalog.Repository) *Resolver {
	return &Resolver{
		repo:    repo,
		cues:    make(map[cueKey]map[int][]byte),
		misses:  make(map[cueKey]bool),
		accents: make(map[string]map[int][]byte),
	}
}

// Resolve returns the per-universe frames stored for a song segment.
// A segment with no programmed frames reports catalog.ErrNotFound;
// the caller keeps the previous cue on the lights.
func (r *Resolver) Resolve(ctx context.Context, songID int64, segmentIndex int) (map[int][]byte, error) {
	key := cueKey{songID, segmentIndex}

	r.mu.Lock()
	if frames, ok := r.cues[key]; ok {
		r.mu.Unlock()
		return copyFrames(frames), nil
	}
	if r.misses[key] {
		r.mu.Unlock()
		return nil, fmt.Errorf("cue for song %d segment %d: %w", songID, segmentIndex, catalog.ErrNotFound)
	}
	r.mu.Unlock()

	frames, err := r.repo.GetCue(ctx, songID, segmentIndex)
	if errors.Is(err, catalog.ErrNotFound) {
		r.mu.Lock()
		r.misses[key] = true
		r.mu.Unlock()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cues[key] = copyFrames(frames)
	r.mu.Unlock()
	return frames, nil
}

// ResolveAccent returns a named manual accent's frames.
func (r *Resolver) ResolveAccent(ctx context.Context, name string) (map[int][]byte, error) {
	r.mu.Lock()
	if frames, ok := r.accents[name]; ok {
		r.mu.Unlock()
		return copyFrames(frames), nil
	}
	r.mu.Unlock()

	frames, err := r.repo.GetAccent(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.accents[name] = copyFrames(frames)
	r.mu.Unlock()
	return frames, nil
}

func copyFrames(frames map[int][]byte) map[int][]byte {
	out := make(map[int][]byte, len(frames))
	for u, f := range frames {
		out[u] = append([]byte(nil), f...)
	}
	return out
}
