package osc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message is a decoded OSC datagram: an address pattern plus typed
// arguments. The mixer sends one message per channel update, e.g.
// "/meters/3" with a single float argument.
type Message struct {
	Address string
	Args    []any
}

// pad returns the number of zero bytes needed to align n to 4 bytes.
func pad(n int) int {
	return (4 - n%4) % 4
}

// Encode serialises a message into OSC wire format: padded address,
// padded typetag string, then big-endian arguments.
func Encode(msg Message) []byte {
	var buf []byte

	buf = append(buf, []byte(msg.Address)...)
	buf = append(buf, 0)
	for range pad(len(msg.Address) + 1) {
		buf = append(buf, 0)
	}

	typetag := ","
	for _, arg := range msg.Args {
		switch arg.(type) {
		case int32:
			typetag += "i"
		case float32:
			typetag += "f"
		case float64:
			typetag += "d"
		case string:
			typetag += "s"
		}
	}
	buf = append(buf, []byte(typetag)...)
	buf = append(buf, 0)
	for range pad(len(typetag) + 1) {
		buf = append(buf, 0)
	}

	for _, arg := range msg.Args {
		switch v := arg.(type) {
		case int32:
			buf = binary.BigEndian.AppendUint32(buf, uint32(v))
		case float32:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
		case float64:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
		case string:
			buf = append(buf, []byte(v)...)
			buf = append(buf, 0)
			for range pad(len(v) + 1) {
				buf = append(buf, 0)
			}
		}
	}

	return buf
}

// Decode parses an OSC datagram. A message without a typetag section is
// returned with nil Args. Truncated argument data yields an error so the
// caller can drop the datagram.
func Decode(data []byte) (Message, error) {
	if len(data) < 4 {
		return Message{}, fmt.Errorf("osc: message too short (%d bytes)", len(data))
	}

	end := 0
	for end < len(data) && data[end] != 0 {
		end++
	}
	msg := Message{Address: string(data[:end])}
	pos := end + 1 + pad(end+1)

	if pos >= len(data) || data[pos] != ',' {
		return msg, nil
	}

	ttEnd := pos
	for ttEnd < len(data) && data[ttEnd] != 0 {
		ttEnd++
	}
	typetag := string(data[pos+1 : ttEnd])
	pos = ttEnd + 1 + pad(ttEnd-pos+1)

	for _, t := range typetag {
		switch t {
		case 'i':
			if pos+4 > len(data) {
				return msg, fmt.Errorf("osc: truncated int32 in %q", msg.Address)
			}
			msg.Args = append(msg.Args, int32(binary.BigEndian.Uint32(data[pos:])))
			pos += 4
		case 'f':
			if pos+4 > len(data) {
				return msg, fmt.Errorf("osc: truncated float32 in %q", msg.Address)
			}
			msg.Args = append(msg.Args, math.Float32frombits(binary.BigEndian.Uint32(data[pos:])))
			pos += 4
		case 'd':
			if pos+8 > len(data) {
				return msg, fmt.Errorf("osc: truncated float64 in %q", msg.Address)
			}
			msg.Args = append(msg.Args, math.Float64frombits(binary.BigEndian.Uint64(data[pos:])))
			pos += 8
		case 's':
			strEnd := pos
			for strEnd < len(data) && data[strEnd] != 0 {
				strEnd++
			}
			msg.Args = append(msg.Args, string(data[pos:strEnd]))
			pos = strEnd + 1 + pad(strEnd-pos+1)
		case 'T':
			msg.Args = append(msg.Args, true)
		case 'F':
			msg.Args = append(msg.Args, false)
		default:
			return msg, fmt.Errorf("osc: unsupported type tag %q in %q", t, msg.Address)
		}
	}

	return msg, nil
}

// NumericArg extracts the first argument of msg as a float64. The mixer
// encodes levels as float32, but int32 and float64 encodings are accepted
// for tooling convenience.
func NumericArg(msg Message) (float64, bool) {
	if len(msg.Args) == 0 {
		return 0, false
	}
	switch v := msg.Args[0].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	}
	return 0, false
}
