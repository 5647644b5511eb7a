package artnet

import (
	"fmt"
	"net"
	"sync"
	"syscall"
)

// FrameSender abstracts the broadcast socket so the output stage can be
// tested without a network.
type FrameSender interface {
	SendFrame(universe uint16, dmx []byte) error
	SendSync() error
	Close() error
}

// UDPSender broadcasts ArtDMX packets on the local subnet.
type UDPSender struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr

	mu  sync.Mutex
	seq uint8
}

// NewUDPSender opens a broadcast-capable UDP socket. subnet is a CIDR
// like "192.168.1.0/24" whose directed broadcast address is used;
// empty selects the limited broadcast 255.255.255.255.
func NewUDPSender(subnet string) (*UDPSender, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open artnet socket: %w", err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("artnet raw conn: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err == nil {
		err = sockErr
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable broadcast: %w", err)
	}

	ip := net.IPv4bcast
	if subnet != "" {
		ip, err = directedBroadcast(subnet)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &UDPSender{
		conn:      conn,
		broadcast: &net.UDPAddr{IP: ip, Port: Port},
		seq:       1,
	}, nil
}

// SendFrame broadcasts one universe's DMX payload.
func (s *UDPSender) SendFrame(universe uint16, dmx []byte) error {
	if len(dmx) > FrameSize {
		return fmt.Errorf("dmx payload %d exceeds %d channels", len(dmx), FrameSize)
	}
	s.mu.Lock()
	seq := s.seq
	s.seq++
	if s.seq == 0 {
		s.seq = 1 // sequence 0 tells nodes to disable resequencing
	}
	s.mu.Unlock()

	_, err := s.conn.WriteToUDP(BuildArtDMX(seq, universe, dmx), s.broadcast)
	return err
}

// SendSync broadcasts an ArtSync so nodes latch all buffered universes
// at once.
func (s *UDPSender) SendSync() error {
	_, err := s.conn.WriteToUDP(BuildArtSync(), s.broadcast)
	return err
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}

// BroadcastAddr reports where frames are sent, for startup logging.
func (s *UDPSender) BroadcastAddr() string {
	return s.broadcast.String()
}

func directedBroadcast(subnet string) (net.IP, error) {
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("parse broadcast subnet %q: %w", subnet, err)
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("broadcast subnet %q is not IPv4", subnet)
	}
	bcast := make(net.IP, 4)
	for i := range bcast {
		bcast[i] = ip4[i] | ^ipnet.Mask[i]
	}
	return bcast, nil
}
