// Package pipeline runs the real-time chain: telemetry in, beats and
// features out of it, catalog matching, lighting frames out.
//
// Three workers cover the whole flow. The receiver goroutine owns the
// telemetry socket, one processing goroutine drains snapshots in
// arrival order and does all beat/feature/match work, and the output
// goroutine transmits frames at the lighting cadence. Matching is
// deliberately serialized in the processing loop; a session has one
// current position, so concurrent matches buy nothing.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/christianprison/lighting.ai/internal/artnet"
	"github.com/christianprison/lighting.ai/internal/beat"
	"github.com/christianprison/lighting.ai/internal/catalog"
	"github.com/christianprison/lighting.ai/internal/cue"
	"github.com/christianprison/lighting.ai/internal/feature"
	"github.com/christianprison/lighting.ai/internal/match"
	"github.com/christianprison/lighting.ai/internal/osc"
)

// bpmHistorySize bounds the BPM samples kept for the charts page.
const bpmHistorySize = 256

// BPMSample is one BPM estimate with its telemetry timestamp.
type BPMSample struct {
	Time float64
	BPM  float64
}

// Health is a point-in-time snapshot of the pipeline for the status
// endpoint.
type Health struct {
	ReceiverAlive bool
	Received      int64
	Malformed     int64
	Dropped       int64
	LastRecv      time.Time

	BPM        float64
	BeatCount  int
	Bar        int
	BeatInBar  int
	LastBeatAt time.Time

	LastMatch    *match.Result
	LastMatchAt  time.Time
	LastDispatch time.Time
}

// Config tunes the runtime. Everything here maps to a recognized
// configuration option of the daemon.
type Config struct {
	BeatsPerBar   int
	MatchInterval time.Duration
	DefaultFade   time.Duration

	// Probe switches the processing loop from matching/dispatch to
	// reference capture.
	Probe bool
	// CaptureSongID names the song probe captures are stored under.
	// Zero disables capture even in probe.
	CaptureSongID int64
	// SessionDate feeds the matcher's date-proximity re-ranking and
	// the capture session record. Zero means today.
	SessionDate time.Time

	Now func() time.Time
}

// Runtime wires the pipeline stages together.
type Runtime struct {
	cfg      Config
	receiver *osc.Receiver
	detector *beat.Detector
	extract  *feature.Extractor
	matcher  match.Matcher
	resolver *cue.Resolver
	output   *artnet.Output
	repo     catalog.Repository

	sessionID string

	mu          sync.Mutex
	beatCount   int
	lastBeat    beat.Event
	lastBeatAt  time.Time
	lastMatch   *match.Result
	lastMatchAt time.Time
	lastMatchTS float64
	dispatchAt  time.Time
	lastLevels  []float64
	bpmHistory  []BPMSample
	captureSeg  int
	sessionRec  bool
}

// NewRuntime assembles a pipeline. The receiver, output, and matcher
// come in pre-configured; the runtime owns only the glue.
func NewRuntime(cfg Config, receiver *osc.Receiver, detector *beat.Detector,
	extract *feature.Extractor, matcher match.Matcher, resolver *cue.Resolver,
	output *artnet.Output, repo catalog.Repository) *Runtime {
	if cfg.BeatsPerBar <= 0 {
		cfg.BeatsPerBar = 4
	}
	if cfg.MatchInterval <= 0 {
		cfg.MatchInterval = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionDate.IsZero() {
		cfg.SessionDate = cfg.Now()
	}
	return &Runtime{
		cfg:       cfg,
		receiver:  receiver,
		detector:  detector,
		extract:   extract,
		matcher:   matcher,
		resolver:  resolver,
		output:    output,
		repo:      repo,
		sessionID: uuid.NewString(),
	}
}

// SessionID identifies this pipeline run; probe captures carry it.
func (rt *Runtime) SessionID() string { return rt.sessionID }

// Run blocks until ctx is cancelled. It starts the receiver and output
// workers, drains snapshots on the calling goroutine, and returns once
// the output stage has finished its shutdown blackout. The receiver's
// bind error is returned immediately so a mode transition into a taken
// port aborts cleanly.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- rt.receiver.Listen(ctx)
	}()

	outDone := make(chan struct{})
	go func() {
		rt.output.Run(ctx)
		close(outDone)
	}()

	Opsf("pipeline started (session %s, probe=%v)", rt.sessionID, rt.cfg.Probe)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-recvErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				runErr = err
			}
			break loop
		case snap, ok := <-rt.receiver.Snapshots():
			if !ok {
				break loop
			}
			rt.process(ctx, snap)
		}
	}

	// Cancel before waiting so the output worker winds down when the
	// exit cause was a receiver failure rather than caller
	// cancellation. It blacks out before it exits; wait for it so
	// hardware never holds the last show frame.
	cancel()
	<-outDone
	Opsf("pipeline stopped (session %s)", rt.sessionID)
	return runErr
}

// process runs one snapshot through detection and, on a beat, through
// matching or capture.
func (rt *Runtime) process(ctx context.Context, snap osc.MeterSnapshot) {
	rt.extract.Add(snap)

	rt.mu.Lock()
	rt.lastLevels = append(rt.lastLevels[:0], snap.Levels...)
	rt.mu.Unlock()

	ev, fired := rt.detector.Process(snap)
	if !fired {
		return
	}

	rt.mu.Lock()
	rt.beatCount++
	bar := (rt.beatCount-1)/rt.cfg.BeatsPerBar + 1
	beatInBar := (rt.beatCount-1)%rt.cfg.BeatsPerBar + 1
	rt.lastBeat = ev
	rt.lastBeatAt = rt.cfg.Now()
	rt.bpmHistory = append(rt.bpmHistory, BPMSample{Time: ev.Time, BPM: ev.BPM})
	if len(rt.bpmHistory) > bpmHistorySize {
		rt.bpmHistory = rt.bpmHistory[len(rt.bpmHistory)-bpmHistorySize:]
	}
	due := ev.Time-rt.lastMatchTS >= rt.cfg.MatchInterval.Seconds()
	if due {
		rt.lastMatchTS = ev.Time
	}
	rt.mu.Unlock()

	Tracef("beat t=%.3f bpm=%.1f bar=%d beat=%d", ev.Time, ev.BPM, bar, beatInBar)

	if !due {
		return
	}
	if rt.cfg.Probe {
		rt.capture(ctx, ev.Time)
		return
	}
	rt.match(ctx, ev.Time, bar, beatInBar)
}

// match queries the catalog for the current position and dispatches the
// matched cue. A nil match leaves the lights on the previous cue.
func (rt *Runtime) match(ctx context.Context, ts float64, bar, beatInBar int) {
	vec := rt.extract.Extract()
	if vec.IsZero() {
		return
	}

	res, err := rt.matcher.Match(vec, match.Context{
		Bar:          bar,
		BeatInBar:    beatInBar,
		TimestampSec: ts,
		SessionDate:  rt.cfg.SessionDate,
	})
	if err != nil {
		Opsf("match failed at t=%.3f: %v", ts, err)
		return
	}
	if res == nil {
		return
	}

	rt.mu.Lock()
	rt.lastMatch = res
	rt.lastMatchAt = rt.cfg.Now()
	rt.mu.Unlock()
	Diagf("matched %q part=%q segment=%d confidence=%.3f",
		res.SongTitle, res.SongPart, res.SegmentIndex, res.Confidence)

	frames, err := rt.resolver.Resolve(ctx, res.SongID, res.SegmentIndex)
	if errors.Is(err, catalog.ErrNotFound) {
		Diagf("no cue for song %d segment %d, keeping current frames", res.SongID, res.SegmentIndex)
		return
	}
	if err != nil {
		Opsf("cue lookup failed: %v", err)
		return
	}
	if err := rt.output.SetAll(frames, rt.cfg.DefaultFade); err != nil {
		Opsf("cue dispatch failed: %v", err)
		return
	}
	rt.mu.Lock()
	rt.dispatchAt = rt.cfg.Now()
	rt.mu.Unlock()
}

// capture stores the current feature window as a reference vector for
// the configured song. Each capture advances the segment counter, so a
// full probe run lays down the song's segments in playback order.
func (rt *Runtime) capture(ctx context.Context, ts float64) {
	if rt.cfg.CaptureSongID == 0 {
		return
	}
	vec := rt.extract.Extract()
	if vec.IsZero() {
		return
	}

	rt.mu.Lock()
	seg := rt.captureSeg
	rt.captureSeg++
	record := !rt.sessionRec
	rt.sessionRec = true
	rt.mu.Unlock()

	if record {
		if rec, ok := rt.repo.(sessionRecorder); ok {
			if err := rec.RecordCaptureSession(ctx, rt.sessionID, rt.cfg.SessionDate, "probe capture"); err != nil {
				Opsf("record capture session: %v", err)
			}
		}
	}

	_, err := rt.repo.AddReferenceVector(ctx, catalog.ReferenceVector{
		SongID:       rt.cfg.CaptureSongID,
		SegmentIndex: seg,
		Timestamp:    ts,
		Features:     vec.Values,
	})
	if err != nil {
		Opsf("capture segment %d: %v", seg, err)
		return
	}
	Diagf("captured segment %d at t=%.3f (session %s)", seg, ts, rt.sessionID)
}

// sessionRecorder is satisfied by the sqlite repository; fakes in tests
// that do not implement it simply skip session records.
type sessionRecorder interface {
	RecordCaptureSession(ctx context.Context, id string, date time.Time, notes string) error
}

// FireAccent pushes a named manual accent onto the lights with the
// given fade.
func (rt *Runtime) FireAccent(ctx context.Context, name string, fade time.Duration) error {
	frames, err := rt.resolver.ResolveAccent(ctx, name)
	if err != nil {
		return err
	}
	Diagf("accent %q fired", name)
	return rt.output.SetAll(frames, fade)
}

// Health snapshots the pipeline state.
func (rt *Runtime) Health() Health {
	stats := rt.receiver.Stats()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	h := Health{
		ReceiverAlive: rt.receiver.Alive(),
		Received:      stats.Received,
		Malformed:     stats.Malformed,
		Dropped:       stats.Dropped,
		LastRecv:      stats.LastRecv,
		BPM:           rt.lastBeat.BPM,
		BeatCount:     rt.beatCount,
		LastBeatAt:    rt.lastBeatAt,
		LastMatch:     rt.lastMatch,
		LastMatchAt:   rt.lastMatchAt,
		LastDispatch:  rt.dispatchAt,
	}
	if rt.beatCount > 0 {
		h.Bar = (rt.beatCount-1)/rt.cfg.BeatsPerBar + 1
		h.BeatInBar = (rt.beatCount-1)%rt.cfg.BeatsPerBar + 1
	}
	return h
}

// Levels returns the most recent meter snapshot's channel levels.
func (rt *Runtime) Levels() []float64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]float64(nil), rt.lastLevels...)
}

// BPMHistory returns the recent BPM estimates, oldest first.
func (rt *Runtime) BPMHistory() []BPMSample {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]BPMSample(nil), rt.bpmHistory...)
}
