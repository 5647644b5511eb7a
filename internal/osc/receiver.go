package osc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// meterPrefix is the address pattern the mixer uses for per-channel level
// updates: /meters/<channel_index> with one numeric argument.
const meterPrefix = "/meters/"

// ReceiverConfig configures the telemetry receiver.
type ReceiverConfig struct {
	// Address is the UDP bind address; empty means all interfaces.
	Address string

	// Port is the UDP listen port (the mixer's meter feed target).
	Port int

	// Channels is the number of mixer channels tracked. Datagrams for
	// channels outside [0, Channels) are dropped as malformed.
	Channels int

	// QueueSize bounds the snapshot queue. When full, the oldest
	// unconsumed snapshot is dropped. Defaults to 256.
	QueueSize int

	// RcvBuf is the OS receive buffer size in bytes. Defaults to 1MB.
	RcvBuf int

	// SocketFactory may be set by tests; defaults to real sockets.
	SocketFactory UDPSocketFactory

	// Now may be set by tests; defaults to time.Now.
	Now func() time.Time
}

// ReceiverStats is a point-in-time copy of the receiver's counters.
type ReceiverStats struct {
	Received  int64
	Malformed int64
	Dropped   int64
	LastRecv  time.Time
}

// Receiver listens for mixer meter telemetry and publishes one immutable
// MeterSnapshot per decoded datagram onto a bounded queue. A datagram
// updates exactly one channel; all other channels keep their last-known
// value. Malformed datagrams are counted and dropped, never fatal.
type Receiver struct {
	cfg    ReceiverConfig
	out    chan MeterSnapshot
	levels []float64

	mu    sync.Mutex
	stats ReceiverStats
	alive bool
}

// NewReceiver creates a receiver. The snapshot queue is available via
// Snapshots before Listen is called, so consumers can be wired first.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RcvBuf <= 0 {
		cfg.RcvBuf = 1 << 20
	}
	if cfg.SocketFactory == nil {
		cfg.SocketFactory = NewRealUDPSocketFactory()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	levels := make([]float64, cfg.Channels)
	for i := range levels {
		levels[i] = LevelUnmapped
	}
	return &Receiver{
		cfg:    cfg,
		out:    make(chan MeterSnapshot, cfg.QueueSize),
		levels: levels,
	}
}

// Snapshots returns the bounded snapshot queue.
func (r *Receiver) Snapshots() <-chan MeterSnapshot {
	return r.out
}

// Stats returns a copy of the receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Alive reports whether the receive loop is currently running.
func (r *Receiver) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

func (r *Receiver) setAlive(v bool) {
	r.mu.Lock()
	r.alive = v
	r.mu.Unlock()
}

// Listen binds the UDP socket and receives datagrams until ctx is
// cancelled. A failed bind is returned immediately so the caller can
// abort the mode transition that required it.
func (r *Receiver) Listen(ctx context.Context) error {
	addr := &net.UDPAddr{Port: r.cfg.Port}
	if r.cfg.Address != "" {
		addr.IP = net.ParseIP(r.cfg.Address)
	}

	conn, err := r.cfg.SocketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind telemetry port %d: %w", r.cfg.Port, err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(r.cfg.RcvBuf); err != nil {
		log.Printf("telemetry: failed to set receive buffer to %d: %v", r.cfg.RcvBuf, err)
	}

	log.Printf("telemetry: listening on %s (%d channels)", addr, r.cfg.Channels)
	r.setAlive(true)
	defer r.setAlive(false)

	buf := make([]byte, 1536)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Short deadline so cancellation is observed between reads.
		if err := conn.SetReadDeadline(r.cfg.Now().Add(100 * time.Millisecond)); err != nil {
			log.Printf("telemetry: set read deadline: %v", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			log.Printf("telemetry: read error: %v", err)
			continue
		}

		r.handleDatagram(buf[:n])
	}
}

// handleDatagram decodes a single datagram and, on success, merges the
// channel update into the running level state and publishes a snapshot.
func (r *Receiver) handleDatagram(data []byte) {
	channel, level, err := r.decodeMeter(data)
	if err != nil {
		r.mu.Lock()
		r.stats.Malformed++
		r.mu.Unlock()
		log.Printf("telemetry: dropping datagram: %v", err)
		return
	}

	r.levels[channel] = level
	now := r.cfg.Now()
	snap := newSnapshot(float64(now.UnixNano())/1e9, r.levels)

	r.mu.Lock()
	r.stats.Received++
	r.stats.LastRecv = now
	r.mu.Unlock()

	r.publish(snap)
}

// publish pushes a snapshot onto the queue, evicting the oldest entry on
// overflow. Bounded staleness beats blocking the socket read.
func (r *Receiver) publish(snap MeterSnapshot) {
	select {
	case r.out <- snap:
		return
	default:
	}
	select {
	case <-r.out:
		r.mu.Lock()
		r.stats.Dropped++
		r.mu.Unlock()
	default:
	}
	select {
	case r.out <- snap:
	default:
	}
}

// decodeMeter validates a meter datagram and extracts the channel index
// and level value.
func (r *Receiver) decodeMeter(data []byte) (int, float64, error) {
	msg, err := Decode(data)
	if err != nil {
		return 0, 0, err
	}
	if !strings.HasPrefix(msg.Address, meterPrefix) {
		return 0, 0, fmt.Errorf("unexpected address %q", msg.Address)
	}
	channel, err := strconv.Atoi(msg.Address[len(meterPrefix):])
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric channel in %q", msg.Address)
	}
	if channel < 0 || channel >= r.cfg.Channels {
		return 0, 0, fmt.Errorf("channel %d out of range [0,%d)", channel, r.cfg.Channels)
	}
	level, ok := NumericArg(msg)
	if !ok {
		return 0, 0, fmt.Errorf("missing numeric argument in %q", msg.Address)
	}
	return channel, clamp01(level), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
