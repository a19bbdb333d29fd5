package websocket

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bits of the first two header bytes.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
const (
	finBit     = 1 << 7
	rsv1Bit    = 1 << 6
	rsv2Bit    = 1 << 5
	rsv3Bit    = 1 << 4
	rsvBits    = rsv1Bit | rsv2Bit | rsv3Bit
	opcodeBits = 0x0f

	maskBit    = 1 << 7
	lengthBits = 0x7f
)

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5.
const maxControlPayload = 125

// First byte contains fin, rsv1, rsv2, rsv3 and the opcode.
// Second byte contains the mask flag and the 7 bit payload length.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
const maxHeaderSize = 1 + 1 + 8 + 4

// header represents a WebSocket frame header.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
type header struct {
	fin    bool
	opcode opcode

	payloadLength int64

	masked  bool
	maskKey uint32
}

// headerLength returns the full length of a frame header given its
// second byte. The length includes the extended payload length and
// the masking key.
func headerLength(b1 byte) int {
	n := 2
	switch b1 & lengthBits {
	case 126:
		n += 2
	case 127:
		n += 8
	}
	if b1&maskBit != 0 {
		n += 4
	}
	return n
}

// frameLengths derives the header length and payload length of the frame
// whose complete header is at the start of b. b must hold at least
// headerLength(b[1]) bytes.
func frameLengths(b []byte) (headerLen int, payloadLen int64, err error) {
	headerLen = headerLength(b[1])
	switch l := b[1] & lengthBits; l {
	case 126:
		payloadLen = int64(binary.BigEndian.Uint16(b[2:]))
	case 127:
		u := binary.BigEndian.Uint64(b[2:])
		if u > math.MaxInt64 {
			return 0, 0, &ProtocolError{Reason: "invalid payload length"}
		}
		payloadLen = int64(u)
	default:
		payloadLen = int64(l)
	}
	return headerLen, payloadLen, nil
}

// appendFrameHeader appends the wire encoding of h to b.
// The payload length always uses the shortest encoding.
func appendFrameHeader(b []byte, h header) []byte {
	var b0 byte
	if h.fin {
		b0 |= finBit
	}
	b0 |= byte(h.opcode) & opcodeBits

	var b1 byte
	if h.masked {
		b1 |= maskBit
	}

	switch {
	case h.payloadLength < 0:
		panic(fmt.Sprintf("websocket: invalid header: negative length: %v", h.payloadLength))
	case h.payloadLength <= maxControlPayload:
		b = append(b, b0, b1|byte(h.payloadLength))
	case h.payloadLength <= math.MaxUint16:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.payloadLength))
	default:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, uint64(h.payloadLength))
	}

	if h.masked {
		b = binary.LittleEndian.AppendUint32(b, h.maskKey)
	}
	return b
}
