package osc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func meterDatagram(channel int, level float32) []byte {
	return Encode(Message{Address: "/meters/" + itoa(channel), Args: []any{level}})
}

func itoa(n int) string {
	if n < 0 {
		return "-" + itoa(-n)
	}
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}

// runReceiver drives Listen over a fake socket until every datagram has
// been processed (counted as received or malformed), then cancels.
func runReceiver(t *testing.T, r *Receiver, sock *FakeUDPSocket) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Listen(ctx) }()

	want := int64(len(sock.Datagrams))
	deadline := time.After(5 * time.Second)
	for {
		stats := r.Stats()
		if stats.Received+stats.Malformed >= want {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("receiver did not drain datagrams in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Listen: %v", err)
	}
}

func TestReceiverMergesChannelUpdates(t *testing.T) {
	sock := &FakeUDPSocket{Datagrams: [][]byte{
		meterDatagram(0, 0.5),
		meterDatagram(2, 0.25),
		meterDatagram(0, 0.75),
	}}
	r := NewReceiver(ReceiverConfig{
		Port:          10024,
		Channels:      4,
		SocketFactory: &FakeUDPSocketFactory{Socket: sock},
	})

	runReceiver(t, r, sock)

	var snaps []MeterSnapshot
	for len(r.Snapshots()) > 0 {
		snaps = append(snaps, <-r.Snapshots())
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}

	// First snapshot: only channel 0 mapped.
	if v, ok := snaps[0].Level(0); !ok || v != 0.5 {
		t.Errorf("snap0 ch0 = %v,%v want 0.5,true", v, ok)
	}
	if _, ok := snaps[0].Level(2); ok {
		t.Error("snap0 ch2 should be unmapped")
	}

	// Later snapshots retain previous values for untouched channels.
	if v, ok := snaps[1].Level(0); !ok || v != 0.5 {
		t.Errorf("snap1 ch0 = %v,%v want retained 0.5", v, ok)
	}
	if v, ok := snaps[2].Level(0); !ok || v != 0.75 {
		t.Errorf("snap2 ch0 = %v,%v want 0.75", v, ok)
	}
	if v, ok := snaps[2].Level(2); !ok || v != 0.25 {
		t.Errorf("snap2 ch2 = %v,%v want retained 0.25", v, ok)
	}

	// Snapshots are independent copies, not views of shared state.
	if &snaps[0].Levels[0] == &snaps[1].Levels[0] {
		t.Error("snapshots share a Levels backing array")
	}

	if got := r.Stats().Received; got != 3 {
		t.Errorf("Received = %d, want 3", got)
	}
}

func TestReceiverDropsMalformed(t *testing.T) {
	sock := &FakeUDPSocket{Datagrams: [][]byte{
		// non-numeric channel
		Encode(Message{Address: "/meters/abc", Args: []any{float32(1)}}),
		// out of range
		Encode(Message{Address: "/meters/99", Args: []any{float32(1)}}),
		// missing argument
		Encode(Message{Address: "/meters/1"}),
		// wrong address
		Encode(Message{Address: "/fader/1", Args: []any{float32(1)}}),
		// valid
		meterDatagram(1, 0.5),
	}}
	r := NewReceiver(ReceiverConfig{
		Port:          10024,
		Channels:      8,
		SocketFactory: &FakeUDPSocketFactory{Socket: sock},
	})

	runReceiver(t, r, sock)

	stats := r.Stats()
	if stats.Malformed != 4 {
		t.Errorf("Malformed = %d, want 4", stats.Malformed)
	}
	if stats.Received != 1 {
		t.Errorf("Received = %d, want 1", stats.Received)
	}
	if len(r.Snapshots()) != 1 {
		t.Errorf("queue depth = %d, want 1", len(r.Snapshots()))
	}
}

func TestReceiverDropsOldestOnOverflow(t *testing.T) {
	var datagrams [][]byte
	for i := range 6 {
		datagrams = append(datagrams, meterDatagram(0, float32(i)*0.125))
	}
	sock := &FakeUDPSocket{Datagrams: datagrams}
	r := NewReceiver(ReceiverConfig{
		Port:          10024,
		Channels:      1,
		QueueSize:     4,
		SocketFactory: &FakeUDPSocketFactory{Socket: sock},
	})

	runReceiver(t, r, sock)

	if got := r.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}

	// The survivors are the newest four snapshots.
	first := <-r.Snapshots()
	if v, _ := first.Level(0); v != 0.25 {
		t.Errorf("oldest surviving level = %v, want 0.25", v)
	}
}

func TestReceiverBindFailure(t *testing.T) {
	r := NewReceiver(ReceiverConfig{
		Port:          10024,
		Channels:      1,
		SocketFactory: &FakeUDPSocketFactory{Err: errors.New("address in use")},
	})
	if err := r.Listen(context.Background()); err == nil {
		t.Fatal("expected bind error")
	}
	if r.Alive() {
		t.Error("receiver should not report alive after failed bind")
	}
}

func TestReceiverClampsLevels(t *testing.T) {
	sock := &FakeUDPSocket{Datagrams: [][]byte{
		meterDatagram(0, 1.5),
		meterDatagram(0, -0.5),
	}}
	r := NewReceiver(ReceiverConfig{
		Port:          10024,
		Channels:      1,
		SocketFactory: &FakeUDPSocketFactory{Socket: sock},
	})
	runReceiver(t, r, sock)

	s1 := <-r.Snapshots()
	if v, _ := s1.Level(0); v != 1 {
		t.Errorf("over-range level = %v, want clamped 1", v)
	}
	s2 := <-r.Snapshots()
	// Negative input clamps to 0, which still counts as mapped.
	if v, ok := s2.Level(0); !ok || v != 0 {
		t.Errorf("under-range level = %v,%v want 0,true", v, ok)
	}
}
