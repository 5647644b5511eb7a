package osc

// LevelUnmapped marks a channel that has never reported a meter value.
// Valid levels are in [0,1], so any negative value is safe as a sentinel.
const LevelUnmapped = -1.0

// MeterSnapshot is the last-known level of every mixer channel at a point
// in time. Snapshots are immutable once published: the receiver allocates
// a fresh Levels slice for every decoded datagram.
type MeterSnapshot struct {
	// Time is the receive timestamp in seconds since the Unix epoch.
	Time float64

	// Levels holds one entry per configured channel. Entries that have
	// never been updated hold LevelUnmapped.
	Levels []float64
}

// Level returns the level of the given channel and whether the channel is
// in range and has reported at least once.
func (s MeterSnapshot) Level(channel int) (float64, bool) {
	if channel < 0 || channel >= len(s.Levels) {
		return 0, false
	}
	v := s.Levels[channel]
	if v < 0 {
		return 0, false
	}
	return v, true
}

// newSnapshot copies the receiver's running level state into an immutable
// snapshot.
func newSnapshot(ts float64, levels []float64) MeterSnapshot {
	out := make([]float64, len(levels))
	copy(out, levels)
	return MeterSnapshot{Time: ts, Levels: out}
}
