//go:build !pcap
// +build !pcap

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "replay-telemetry requires libpcap; rebuild with -tags pcap")
	os.Exit(1)
}
