package mode

import (
	"errors"
	"testing"
)

type hookLog struct {
	starts []Mode
	stops  int
	fail   bool
}

func (h *hookLog) start(m Mode) error {
	if h.fail {
		return errors.New("port in use")
	}
	h.starts = append(h.starts, m)
	return nil
}

func (h *hookLog) stop() { h.stops++ }

func TestTransitionStartsAndStopsPipeline(t *testing.T) {
	h := &hookLog{}
	c := NewController(h.start, h.stop)

	if c.Current() != Maintenance {
		t.Fatalf("initial mode = %v, want maintenance", c.Current())
	}

	if err := c.Transition(Show); err != nil {
		t.Fatalf("enter show: %v", err)
	}
	if c.Current() != Show || len(h.starts) != 1 || h.starts[0] != Show {
		t.Errorf("show entry: mode=%v starts=%v", c.Current(), h.starts)
	}

	if err := c.Transition(Maintenance); err != nil {
		t.Fatalf("leave show: %v", err)
	}
	if c.Current() != Maintenance || h.stops != 1 {
		t.Errorf("maintenance entry: mode=%v stops=%d", c.Current(), h.stops)
	}
}

func TestTransitionBetweenRunningModesRestarts(t *testing.T) {
	h := &hookLog{}
	c := NewController(h.start, h.stop)

	if err := c.Transition(Probe); err != nil {
		t.Fatal(err)
	}
	if err := c.Transition(Show); err != nil {
		t.Fatal(err)
	}
	if h.stops != 1 || len(h.starts) != 2 || h.starts[1] != Show {
		t.Errorf("probe->show: stops=%d starts=%v", h.stops, h.starts)
	}
}

func TestFailedStartStaysInMaintenance(t *testing.T) {
	h := &hookLog{fail: true}
	c := NewController(h.start, h.stop)

	if err := c.Transition(Show); err == nil {
		t.Fatal("expected start failure to propagate")
	}
	if c.Current() != Maintenance {
		t.Errorf("mode after failed start = %v, want maintenance", c.Current())
	}
}

func TestTransitionToSameModeIsNoop(t *testing.T) {
	h := &hookLog{}
	c := NewController(h.start, h.stop)

	if err := c.Transition(Probe); err != nil {
		t.Fatal(err)
	}
	if err := c.Transition(Probe); err != nil {
		t.Fatal(err)
	}
	if len(h.starts) != 1 || h.stops != 0 {
		t.Errorf("repeated probe: starts=%v stops=%d", h.starts, h.stops)
	}
}

func TestParseAndString(t *testing.T) {
	for _, m := range []Mode{Maintenance, Probe, Show} {
		got, err := Parse(m.String())
		if err != nil || got != m {
			t.Errorf("Parse(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := Parse("disco"); err == nil {
		t.Error("expected error for unknown mode name")
	}
}

func TestRequiresOffline(t *testing.T) {
	if !Show.RequiresOffline() {
		t.Error("show must assert offline operation")
	}
	if Probe.RequiresOffline() || Maintenance.RequiresOffline() {
		t.Error("only show asserts offline operation")
	}
}
