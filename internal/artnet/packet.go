// Package artnet broadcasts DMX lighting frames over Art-Net UDP.
package artnet

// Port is the well-known Art-Net UDP port.
const Port = 6454

// FrameSize is the channel count of one full DMX universe frame.
const FrameSize = 512

const protocolVersion = 14

// BuildArtDMX assembles an ArtDMX packet for one universe. The payload
// must already be sized by the caller; nodes expect an even length and
// most want the full 512 channels.
func BuildArtDMX(seq uint8, universe uint16, payload []byte) []byte {
	subUni := byte(universe & 0xFF)
	netHi := byte((universe >> 8) & 0x7F)
	pkt := make([]byte, 18+len(payload))
	copy(pkt[0:], []byte("Art-Net\x00"))
	pkt[8], pkt[9] = 0x00, 0x50 // OpCode ArtDMX
	pkt[10], pkt[11] = 0x00, protocolVersion
	pkt[12], pkt[13] = seq, 0x00 // sequence, physical port (unused)
	pkt[14], pkt[15] = subUni, netHi
	n := len(payload)
	pkt[16], pkt[17] = byte((n>>8)&0xFF), byte(n&0xFF)
	copy(pkt[18:], payload)
	return pkt
}

// BuildArtSync assembles an ArtSync packet. Nodes that buffered ArtDMX
// data latch it simultaneously on receipt, which keeps multi-universe
// fixtures in step.
func BuildArtSync() []byte {
	return []byte("Art-Net\x00\x00\x52\x00\x0e\x00\x00")
}
