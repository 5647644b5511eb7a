// Package mode gates which subsystems of the lighting daemon run.
package mode

import (
	"fmt"
	"sync"
)

// Mode is the daemon's operating state. Exactly one is active; every
// transition is an explicit external request, never automatic.
type Mode int

const (
	// Maintenance keeps the pipeline stopped for catalog edits and
	// index rebuilds.
	Maintenance Mode = iota
	// Probe runs the pipeline and records beat/feature captures for
	// later catalog population.
	Probe
	// Show runs the pipeline for a live performance. Show asserts
	// offline operation: collaborators must not depend on external
	// network reachability while it is active.
	Show
)

func (m Mode) String() string {
	switch m {
	case Maintenance:
		return "maintenance"
	case Probe:
		return "probe"
	case Show:
		return "show"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Parse maps a mode name from the admin API back to a Mode.
func Parse(s string) (Mode, error) {
	switch s {
	case "maintenance":
		return Maintenance, nil
	case "probe":
		return Probe, nil
	case "show":
		return Show, nil
	default:
		return Maintenance, fmt.Errorf("unknown mode %q", s)
	}
}

// RequiresOffline reports whether collaborators must avoid external
// network dependencies while the mode is active.
func (m Mode) RequiresOffline() bool {
	return m == Show
}

// runsPipeline reports whether the telemetry/matching/output chain is
// active in this mode.
func (m Mode) runsPipeline() bool {
	return m == Probe || m == Show
}

// Controller serializes mode transitions and starts or stops the
// pipeline around them. The start and stop hooks come from the daemon
// wiring; stop must be safe to call when nothing is running.
type Controller struct {
	start func(Mode) error
	stop  func()

	mu      sync.Mutex
	current Mode
}

// NewController begins in Maintenance with the pipeline stopped.
func NewController(start func(Mode) error, stop func()) *Controller {
	return &Controller{start: start, stop: stop, current: Maintenance}
}

// Current returns the active mode.
func (c *Controller) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Transition moves to the target mode. Entering Probe or Show starts
// the pipeline; a failed start aborts the transition and the daemon
// stays in Maintenance. Switching between Probe and Show restarts the
// pipeline so each run begins with fresh detector and capture state.
func (c *Controller) Transition(target Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target == c.current {
		return nil
	}

	if c.current.runsPipeline() {
		c.stop()
		c.current = Maintenance
	}

	if target.runsPipeline() {
		if err := c.start(target); err != nil {
			return fmt.Errorf("enter %s: %w", target, err)
		}
	}
	c.current = target
	return nil
}

// Shutdown stops the pipeline if it is running and parks the
// controller in Maintenance.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.runsPipeline() {
		c.stop()
	}
	c.current = Maintenance
}
