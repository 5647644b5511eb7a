// Command telemetry-send generates synthetic mixer meter telemetry for
// testing the daemon without a mixer on the network. It emits one OSC
// datagram per channel per tick, with a beat pulse on the rhythm
// channels at the requested tempo.
package main

import (
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/christianprison/lighting.ai/internal/osc"
)

func main() {
	target := flag.String("target", "127.0.0.1:10024", "daemon telemetry address")
	channels := flag.Int("channels", 18, "mixer channel count")
	bpm := flag.Float64("bpm", 120, "simulated tempo")
	rate := flag.Int("rate", 100, "snapshots per second")
	duration := flag.Duration("duration", 0, "how long to send (0 = forever)")
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("bad target: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	beatPeriod := 60.0 / *bpm
	tick := time.Second / time.Duration(*rate)
	start := time.Now()
	log.Printf("sending %d channels at %.0f BPM to %s", *channels, *bpm, *target)

	sent := 0
	for t := range time.Tick(tick) {
		elapsed := t.Sub(start).Seconds()
		if *duration > 0 && elapsed > duration.Seconds() {
			break
		}

		// Sharp pulse on the rhythm channels right after each beat,
		// decaying over ~80ms; background noise everywhere else.
		phase := math.Mod(elapsed, beatPeriod)
		pulse := math.Exp(-phase / 0.08)

		for ch := 0; ch < *channels; ch++ {
			level := 0.05 + 0.03*rand.Float64()
			switch ch {
			case 0:
				level = 0.1 + 0.9*pulse
			case 1:
				level = 0.1 + 0.7*pulse
			case 2:
				level = 0.1 + 0.5*pulse
			}
			pkt := osc.Encode(osc.Message{
				Address: "/meters/" + strconv.Itoa(ch),
				Args:    []any{float32(level)},
			})
			if _, err := conn.Write(pkt); err != nil {
				log.Fatalf("send: %v", err)
			}
			sent++
		}
		if sent%(*channels**rate*10) == 0 {
			log.Printf("%d datagrams sent", sent)
		}
	}
	log.Printf("done, %d datagrams sent", sent)
}
