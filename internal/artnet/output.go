package artnet

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultCadence is how often pending frames go out on the wire,
// 40 Hz.
const DefaultCadence = 25 * time.Millisecond

// DefaultBlackoutFade is the fade used when the output shuts down.
const DefaultBlackoutFade = 500 * time.Millisecond

// universeState is one universe's transmit state. During a fade the
// wire value is interpolated between from and target each tick.
type universeState struct {
	current   []byte
	from      []byte
	target    []byte
	fadeStart time.Time
	fadeDur   time.Duration
	fading    bool
}

// OutputConfig configures the lighting output stage.
type OutputConfig struct {
	// Universes is the fixed universe count, validated at startup.
	Universes int
	// Cadence between transmissions. Zero selects DefaultCadence.
	Cadence time.Duration
	// BlackoutFade used on shutdown. Zero selects DefaultBlackoutFade.
	BlackoutFade time.Duration
	// Warn receives truncation warnings and send errors. May be nil.
	Warn *log.Logger
	// Now stands in for time.Now in tests.
	Now func() time.Time
}

// Output owns the DMX universes. Set calls overwrite the pending frame
// for a universe; the dispatch loop transmits whatever is pending at
// each tick, so intermediate states between ticks are never queued.
type Output struct {
	sender FrameSender
	cfg    OutputConfig

	mu        sync.Mutex
	universes []universeState
	lastSend  time.Time
}

// NewOutput wraps a sender with fade and blackout bookkeeping.
func NewOutput(sender FrameSender, cfg OutputConfig) (*Output, error) {
	if cfg.Universes <= 0 {
		return nil, fmt.Errorf("universe count %d must be positive", cfg.Universes)
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.BlackoutFade <= 0 {
		cfg.BlackoutFade = DefaultBlackoutFade
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	states := make([]universeState, cfg.Universes)
	for i := range states {
		states[i].current = make([]byte, FrameSize)
		states[i].from = make([]byte, FrameSize)
		states[i].target = make([]byte, FrameSize)
	}
	return &Output{sender: sender, cfg: cfg, universes: states}, nil
}

// Set schedules a frame for one universe. Short inputs are zero-padded
// to 512 channels; anything past 512 is dropped with a warning because
// silently folding excess channels into another universe would corrupt
// the show.
func (o *Output) Set(universe int, channels []byte, fade time.Duration) error {
	if universe < 0 || universe >= len(o.universes) {
		return fmt.Errorf("universe %d out of range [0,%d)", universe, len(o.universes))
	}
	if len(channels) > FrameSize && o.cfg.Warn != nil {
		o.cfg.Warn.Printf("universe %d: frame has %d channels, dropping %d past %d",
			universe, len(channels), len(channels)-FrameSize, FrameSize)
	}
	frame := make([]byte, FrameSize)
	copy(frame, channels)

	o.mu.Lock()
	defer o.mu.Unlock()
	u := &o.universes[universe]
	copy(u.from, u.current)
	copy(u.target, frame)
	u.fadeStart = o.cfg.Now()
	u.fadeDur = fade
	u.fading = fade > 0
	if !u.fading {
		copy(u.current, frame)
	}
	return nil
}

// SetAll applies Set to each entry of the map.
func (o *Output) SetAll(frames map[int][]byte, fade time.Duration) error {
	for universe, channels := range frames {
		if err := o.Set(universe, channels, fade); err != nil {
			return err
		}
	}
	return nil
}

// Blackout fades every channel of every universe to zero.
func (o *Output) Blackout(fade time.Duration) {
	zero := make([]byte, FrameSize)
	for i := range o.universes {
		_ = o.Set(i, zero, fade)
	}
}

// PendingFrame returns a copy of a universe's transmit target.
func (o *Output) PendingFrame(universe int) ([]byte, error) {
	if universe < 0 || universe >= len(o.universes) {
		return nil, fmt.Errorf("universe %d out of range [0,%d)", universe, len(o.universes))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]byte, FrameSize)
	copy(out, o.universes[universe].target)
	return out, nil
}

// LastSendTime reports when a frame last went out, for health checks.
func (o *Output) LastSendTime() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSend
}

// Run transmits pending frames at the configured cadence until the
// context is cancelled, then fades to black and keeps transmitting
// until the fade completes. Hardware must never be left holding the
// final show frame.
func (o *Output) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdownBlackout()
			return
		case now := <-ticker.C:
			o.transmit(now)
		}
	}
}

// shutdownBlackout runs the teardown fade synchronously on the caller.
func (o *Output) shutdownBlackout() {
	o.Blackout(o.cfg.BlackoutFade)
	deadline := o.cfg.Now().Add(o.cfg.BlackoutFade + o.cfg.Cadence)
	for o.cfg.Now().Before(deadline) {
		o.transmit(o.cfg.Now())
		time.Sleep(o.cfg.Cadence)
	}
	o.transmit(o.cfg.Now()) // final all-zero frame
}

// transmit advances fades and sends every universe, then an ArtSync.
func (o *Output) transmit(now time.Time) {
	o.mu.Lock()
	payloads := make([][]byte, len(o.universes))
	for i := range o.universes {
		o.advanceFade(&o.universes[i], now)
		payloads[i] = append([]byte(nil), o.universes[i].current...)
	}
	o.lastSend = now
	o.mu.Unlock()

	for i, p := range payloads {
		if err := o.sender.SendFrame(uint16(i), p); err != nil && o.cfg.Warn != nil {
			o.cfg.Warn.Printf("universe %d: send: %v", i, err)
		}
	}
	if err := o.sender.SendSync(); err != nil && o.cfg.Warn != nil {
		o.cfg.Warn.Printf("artsync: %v", err)
	}
}

func (o *Output) advanceFade(u *universeState, now time.Time) {
	if !u.fading {
		return
	}
	elapsed := now.Sub(u.fadeStart)
	if elapsed >= u.fadeDur {
		copy(u.current, u.target)
		u.fading = false
		return
	}
	progress := float64(elapsed) / float64(u.fadeDur)
	for i := range u.current {
		from := float64(u.from[i])
		target := float64(u.target[i])
		u.current[i] = byte(from + (target-from)*progress + 0.5)
	}
}
