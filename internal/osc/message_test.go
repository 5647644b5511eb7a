package osc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeMeterMessage(t *testing.T) {
	msg := Message{Address: "/meters/3", Args: []any{float32(0.75)}}
	data := Encode(msg)

	if len(data)%4 != 0 {
		t.Errorf("encoded length %d not 4-byte aligned", len(data))
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeArgTypes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"int32", Message{Address: "/meters/0", Args: []any{int32(1)}}},
		{"float64", Message{Address: "/meters/1", Args: []any{float64(0.5)}}},
		{"string", Message{Address: "/info", Args: []any{"XR18"}}},
		{"mixed", Message{Address: "/x", Args: []any{int32(7), float32(0.25), "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.msg))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{'/', 'a'}},
		// Address (12 bytes) + typetag ",f" (4 bytes) intact, float cut short.
		{"truncated float", Encode(Message{Address: "/meters/0", Args: []any{float32(1)}})[:17]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("expected error for malformed datagram")
			}
		})
	}
}

func TestDecodeNoTypetag(t *testing.T) {
	// An address with no argument section decodes with nil args.
	data := []byte("/meters/2\x00\x00\x00")
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Address != "/meters/2" {
		t.Errorf("address = %q, want /meters/2", msg.Address)
	}
	if len(msg.Args) != 0 {
		t.Errorf("args = %v, want none", msg.Args)
	}
}

func TestNumericArg(t *testing.T) {
	if _, ok := NumericArg(Message{Address: "/meters/0"}); ok {
		t.Error("NumericArg on empty args should report false")
	}
	if v, ok := NumericArg(Message{Args: []any{float32(0.5)}}); !ok || v != 0.5 {
		t.Errorf("NumericArg(float32) = %v, %v", v, ok)
	}
	if v, ok := NumericArg(Message{Args: []any{int32(3)}}); !ok || v != 3 {
		t.Errorf("NumericArg(int32) = %v, %v", v, ok)
	}
	if _, ok := NumericArg(Message{Args: []any{"nope"}}); ok {
		t.Error("NumericArg(string) should report false")
	}
}
