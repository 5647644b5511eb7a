//go:build pcap
// +build pcap

// Command replay-telemetry replays mixer meter telemetry captured with
// tcpdump against a running daemon, preserving the original packet
// timing. Build with -tags pcap (needs libpcap).
package main

import (
	"flag"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	file := flag.String("pcap", "", "capture file to replay (required)")
	target := flag.String("target", "127.0.0.1:10024", "daemon telemetry address")
	port := flag.Int("port", 10024, "UDP port the capture recorded")
	speed := flag.Float64("speed", 1.0, "playback speed multiplier")
	flag.Parse()

	if *file == "" {
		log.Fatal("missing -pcap")
	}
	if *speed <= 0 {
		log.Fatal("-speed must be positive")
	}

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("bad target: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	handle, err := pcap.OpenOffline(*file)
	if err != nil {
		log.Fatalf("open capture: %v", err)
	}
	defer handle.Close()

	source := gopacket.NewPacketSource(handle, handle.LinkType())

	var lastTS time.Time
	sent := 0
	for packet := range source.Packets() {
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || int(udp.DstPort) != *port {
			continue
		}
		payload := udp.Payload
		if len(payload) == 0 {
			continue
		}

		ts := packet.Metadata().Timestamp
		if !lastTS.IsZero() {
			gap := ts.Sub(lastTS)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / *speed))
			}
		}
		lastTS = ts

		if _, err := conn.Write(payload); err != nil {
			log.Fatalf("send: %v", err)
		}
		sent++
		if sent%1000 == 0 {
			log.Printf("%d datagrams replayed", sent)
		}
	}
	log.Printf("✓ replayed %d datagrams from %s", sent, *file)
}
