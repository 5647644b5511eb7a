package artnet

import (
	"bytes"
	"testing"
)

func TestBuildArtDMXLayout(t *testing.T) {
	payload := make([]byte, 512)
	payload[0], payload[511] = 255, 7

	pkt := BuildArtDMX(9, 0x0203, payload)
	if len(pkt) != 18+512 {
		t.Fatalf("packet length = %d, want %d", len(pkt), 18+512)
	}
	if !bytes.Equal(pkt[0:8], []byte("Art-Net\x00")) {
		t.Errorf("bad ID field: %q", pkt[0:8])
	}
	if pkt[8] != 0x00 || pkt[9] != 0x50 {
		t.Errorf("opcode = %#x %#x, want ArtDMX", pkt[8], pkt[9])
	}
	if pkt[10] != 0x00 || pkt[11] != 14 {
		t.Errorf("protocol version = %d %d, want 0 14", pkt[10], pkt[11])
	}
	if pkt[12] != 9 {
		t.Errorf("sequence = %d, want 9", pkt[12])
	}
	if pkt[14] != 0x03 || pkt[15] != 0x02 {
		t.Errorf("SubUni/Net = %#x %#x, want 0x03 0x02", pkt[14], pkt[15])
	}
	if pkt[16] != 0x02 || pkt[17] != 0x00 {
		t.Errorf("length = %#x %#x, want 0x02 0x00", pkt[16], pkt[17])
	}
	if pkt[18] != 255 || pkt[18+511] != 7 {
		t.Errorf("payload not copied through")
	}
}

func TestBuildArtSync(t *testing.T) {
	pkt := BuildArtSync()
	if !bytes.Equal(pkt[0:8], []byte("Art-Net\x00")) {
		t.Errorf("bad ID field: %q", pkt[0:8])
	}
	if pkt[8] != 0x00 || pkt[9] != 0x52 {
		t.Errorf("opcode = %#x %#x, want ArtSync", pkt[8], pkt[9])
	}
}
