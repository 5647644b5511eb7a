// Package beat detects musical onsets in mixer meter telemetry.
//
// The detector watches a weighted combination of rhythm-section channels
// (kick, snare, bass by default) and fires when the combined level crosses
// a threshold on a leading edge, subject to a refractory period. Beat
// timestamps feed a smoothed BPM estimate.
package beat

import (
	"gonum.org/v1/gonum/stat"

	"github.com/christianprison/lighting.ai/internal/osc"
)

// Event is emitted for every detected beat. BPM is 0 until enough beat
// intervals have accumulated for an estimate.
type Event struct {
	Time float64
	BPM  float64
}

// Config tunes the detector. The weights and clamps are heuristics carried
// over from live tuning, not derived from a model; treat them as a starting
// point.
type Config struct {
	// Weights maps channel index to its share in the combined onset value.
	Weights map[int]float64

	// Threshold is the minimum combined value for a beat.
	Threshold float64

	// MinBeatInterval is the refractory period in seconds.
	MinBeatInterval float64

	// HistorySize is the number of recent combined samples kept for the
	// local-maximum check. Defaults to 5.
	HistorySize int

	// BeatRingSize is the number of beat timestamps kept for the BPM
	// estimate. Defaults to 20.
	BeatRingSize int

	// IntervalClampMin/Max bound plausible beat intervals in seconds when
	// estimating BPM (defaults 0.2 and 2.0, i.e. 30-300 BPM).
	IntervalClampMin float64
	IntervalClampMax float64
}

// DefaultConfig returns the tuning used with the XR18: kick dominates,
// snare and bass confirm.
func DefaultConfig() Config {
	return Config{
		Weights:          map[int]float64{0: 0.5, 1: 0.3, 2: 0.2},
		Threshold:        0.3,
		MinBeatInterval:  0.2,
		HistorySize:      5,
		BeatRingSize:     20,
		IntervalClampMin: 0.2,
		IntervalClampMax: 2.0,
	}
}

// Detector holds the onset state machine. Not safe for concurrent use;
// the processing loop is its only caller.
type Detector struct {
	cfg Config

	history      []float64 // ring of recent combined values
	historyPos   int
	historyCount int

	lastBeatTime float64
	beatTimes    []float64 // ring of accepted beat timestamps
	beatPos      int
	beatCount    int

	bpm float64
}

// NewDetector creates a detector with cfg, filling zero fields with
// defaults.
func NewDetector(cfg Config) *Detector {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	if cfg.BeatRingSize <= 0 {
		cfg.BeatRingSize = 20
	}
	if cfg.IntervalClampMin <= 0 {
		cfg.IntervalClampMin = 0.2
	}
	if cfg.IntervalClampMax <= 0 {
		cfg.IntervalClampMax = 2.0
	}
	return &Detector{
		cfg:       cfg,
		history:   make([]float64, cfg.HistorySize),
		beatTimes: make([]float64, cfg.BeatRingSize),
	}
}

// Process consumes one snapshot and reports whether it fired a beat.
// It never fails: snapshots with no data for the weighted channels simply
// yield no beat this tick.
func (d *Detector) Process(snap osc.MeterSnapshot) (Event, bool) {
	combined, any := d.combine(snap)
	if !any {
		return Event{}, false
	}

	fired := d.isBeat(combined, snap.Time)
	d.pushHistory(combined)
	if !fired {
		return Event{}, false
	}

	d.lastBeatTime = snap.Time
	d.pushBeat(snap.Time)
	d.updateBPM()
	return Event{Time: snap.Time, BPM: d.bpm}, true
}

// BPM returns the current smoothed estimate, 0 if unknown.
func (d *Detector) BPM() float64 {
	return d.bpm
}

// Reset clears all detector state.
func (d *Detector) Reset() {
	for i := range d.history {
		d.history[i] = 0
	}
	d.historyPos, d.historyCount = 0, 0
	for i := range d.beatTimes {
		d.beatTimes[i] = 0
	}
	d.beatPos, d.beatCount = 0, 0
	d.lastBeatTime = 0
	d.bpm = 0
}

// combine computes the weighted sum over the configured channels. The
// second return is false when none of the weighted channels has data.
func (d *Detector) combine(snap osc.MeterSnapshot) (float64, bool) {
	var sum float64
	any := false
	for ch, w := range d.cfg.Weights {
		if v, ok := snap.Level(ch); ok {
			sum += v * w
			any = true
		}
	}
	return sum, any
}

// isBeat applies the three gates: refractory period, threshold, and
// leading-edge check against recent history.
func (d *Detector) isBeat(combined, now float64) bool {
	if now-d.lastBeatTime < d.cfg.MinBeatInterval {
		return false
	}
	if combined < d.cfg.Threshold {
		return false
	}
	// With almost no history, accept: better one early beat than a missed
	// downbeat at song start.
	if d.historyCount < 2 {
		return true
	}
	// Reject values that are not a local maximum of the recent window;
	// a sustained high level is not a new onset. The current sample
	// occupies one slot of the window, so it is compared against the
	// previous HistorySize-1 values.
	for _, prev := range d.recentHistory() {
		if combined <= prev {
			return false
		}
	}
	return true
}

// recentHistory returns the most recent buffered combined values, oldest
// first, capped at HistorySize-1 entries.
func (d *Detector) recentHistory() []float64 {
	n := d.historyCount
	if n > len(d.history)-1 {
		n = len(d.history) - 1
	}
	out := make([]float64, 0, n)
	start := d.historyPos - n
	for i := range n {
		idx := start + i
		if idx < 0 {
			idx += len(d.history)
		}
		out = append(out, d.history[idx%len(d.history)])
	}
	return out
}

func (d *Detector) pushHistory(v float64) {
	d.history[d.historyPos] = v
	d.historyPos = (d.historyPos + 1) % len(d.history)
	if d.historyCount < len(d.history) {
		d.historyCount++
	}
}

func (d *Detector) pushBeat(t float64) {
	d.beatTimes[d.beatPos] = t
	d.beatPos = (d.beatPos + 1) % len(d.beatTimes)
	if d.beatCount < len(d.beatTimes) {
		d.beatCount++
	}
}

// updateBPM recomputes the estimate as 60 / mean of consecutive intervals,
// ignoring intervals outside the plausible clamp range.
func (d *Detector) updateBPM() {
	if d.beatCount < 2 {
		return
	}
	times := d.orderedBeatTimes()
	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		interval := times[i] - times[i-1]
		if interval > d.cfg.IntervalClampMin && interval < d.cfg.IntervalClampMax {
			intervals = append(intervals, interval)
		}
	}
	if len(intervals) > 0 {
		d.bpm = 60.0 / stat.Mean(intervals, nil)
	}
}

// orderedBeatTimes returns the buffered beat timestamps, oldest first.
func (d *Detector) orderedBeatTimes() []float64 {
	n := d.beatCount
	out := make([]float64, 0, n)
	start := d.beatPos - n
	for i := range n {
		idx := start + i
		if idx < 0 {
			idx += len(d.beatTimes)
		}
		out = append(out, d.beatTimes[idx%len(d.beatTimes)])
	}
	return out
}
