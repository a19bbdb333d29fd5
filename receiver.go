package websocket

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/wsengine/websocket/internal/msgqueue"
)

// messageInProgress tracks the kind of fragmented data message
// being reassembled.
type messageInProgress int

const (
	inProgressNone messageInProgress = iota
	inProgressText
	inProgressBinary
)

const reasonMessageTooLarge = "message too large"

// frameReceiver validates received frames, reassembles fragmented
// messages and handles control frames.
// It is only used by the read loop.
type frameReceiver struct {
	direction maskDirection
	sender    *frameSender
	messages  *msgqueue.Queue[Message]

	// maxMessageSize bounds reassembled data messages when positive.
	maxMessageSize int64

	// onPong is called with the payload of every pong. It may be nil.
	onPong func(p []byte)

	inProgress       messageInProgress
	reassemblyBuffer []byte

	// peerClose is the last close frame received.
	peerClose CloseError
}

func newFrameReceiver(direction maskDirection, sender *frameSender, messages *msgqueue.Queue[Message]) *frameReceiver {
	return &frameReceiver{
		direction: direction,
		sender:    sender,
		messages:  messages,
	}
}

// receiveFrame handles the complete frame at the start of buf.
// The header occupies buf[:headerLen] and the payload the following
// payloadLen bytes. A masked payload is unmasked in place.
//
// It reports whether the frame was a close frame. Every error is fatal
// to the connection.
func (r *frameReceiver) receiveFrame(ctx context.Context, buf []byte, headerLen, payloadLen int) (receivedClose bool, err error) {
	fin := buf[0]&finBit != 0

	if buf[0]&rsvBits != 0 {
		return false, &ProtocolError{Reason: "reserved bits set"}
	}

	masked := buf[1]&maskBit != 0
	switch {
	case masked && r.direction == maskTransmit:
		return false, &ProtocolError{Reason: "masked frame"}
	case !masked && r.direction == maskReceive:
		return false, &ProtocolError{Reason: "unmasked frame"}
	}

	op := opcode(buf[0] & opcodeBits)

	// See https://tools.ietf.org/html/rfc6455#section-5.5.
	if op.controlOp() && payloadLen > maxControlPayload {
		return false, &ProtocolError{Reason: "frame too large"}
	}

	payload := buf[headerLen : headerLen+payloadLen]
	if masked {
		// The key is copied out before the payload next to it is mutated.
		key := binary.LittleEndian.Uint32(buf[headerLen-4 : headerLen])
		mask(key, payload)
	}

	switch op {
	case opContinuation:
		return false, r.receiveContinuation(payload, fin)
	case opText, opBinary:
		if r.inProgress != inProgressNone {
			return false, &ProtocolError{Reason: "last message incomplete"}
		}
		if op == opText {
			return false, r.receiveText(payload, fin)
		}
		return false, r.receiveBinary(payload, fin)
	case opPing:
		if !fin {
			return false, &ProtocolError{Reason: "fragmented control frame"}
		}
		return false, r.receivePing(ctx, payload)
	case opPong:
		if !fin {
			return false, &ProtocolError{Reason: "fragmented control frame"}
		}
		r.receivePong(payload)
		return false, nil
	case opClose:
		if !fin {
			return false, &ProtocolError{Reason: "fragmented control frame"}
		}
		err = r.receiveClose(payload)
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, &ProtocolError{Reason: "unknown opcode"}
	}
}

// checkFrameLength validates the payload length a frame header declares
// before the payload is read. b0 is the first header byte.
func (r *frameReceiver) checkFrameLength(b0 byte, payloadLen int64) error {
	op := opcode(b0 & opcodeBits)
	if op.controlOp() {
		if payloadLen > maxControlPayload {
			return &ProtocolError{Reason: "frame too large"}
		}
		return nil
	}
	if r.maxMessageSize <= 0 {
		return nil
	}
	limit := r.maxMessageSize
	if op == opContinuation {
		limit -= int64(len(r.reassemblyBuffer))
	}
	if payloadLen > limit {
		return &ProtocolError{Reason: reasonMessageTooLarge}
	}
	return nil
}

func (r *frameReceiver) receiveContinuation(payload []byte, fin bool) error {
	switch r.inProgress {
	case inProgressText:
		return r.receiveText(payload, fin)
	case inProgressBinary:
		return r.receiveBinary(payload, fin)
	default:
		return &ProtocolError{Reason: "unexpected continuation frame"}
	}
}

func (r *frameReceiver) receiveText(payload []byte, fin bool) error {
	err := r.reassemble(payload)
	if err != nil {
		return err
	}
	if !fin {
		r.inProgress = inProgressText
		return nil
	}

	err = validateUTF8(r.reassemblyBuffer, "text message")
	if err != nil {
		return err
	}
	r.messages.Publish(TextMessage(string(r.reassemblyBuffer)))
	r.resetMessage()
	return nil
}

func (r *frameReceiver) receiveBinary(payload []byte, fin bool) error {
	err := r.reassemble(payload)
	if err != nil {
		return err
	}
	if !fin {
		r.inProgress = inProgressBinary
		return nil
	}

	// The consumer owns the delivered slice.
	p := r.reassemblyBuffer
	r.reassemblyBuffer = nil
	r.messages.Publish(BinaryMessage(p))
	r.resetMessage()
	return nil
}

func (r *frameReceiver) reassemble(payload []byte) error {
	if r.maxMessageSize > 0 && int64(len(r.reassemblyBuffer)+len(payload)) > r.maxMessageSize {
		return &ProtocolError{Reason: reasonMessageTooLarge}
	}
	r.reassemblyBuffer = append(r.reassemblyBuffer, payload...)
	return nil
}

func (r *frameReceiver) resetMessage() {
	r.inProgress = inProgressNone
	if cap(r.reassemblyBuffer) > maxRetainedFrameBuffer {
		r.reassemblyBuffer = nil
		return
	}
	r.reassemblyBuffer = r.reassemblyBuffer[:0]
}

func (r *frameReceiver) receivePing(ctx context.Context, payload []byte) error {
	// The payload aliases the frame buffer so the delivered copy is made first.
	p := append([]byte(nil), payload...)
	err := r.sender.writeFrame(ctx, true, opPong, p)
	// Once a close frame is sent no pong is owed.
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	r.messages.Publish(PingMessage(p))
	return nil
}

func (r *frameReceiver) receivePong(payload []byte) {
	p := append([]byte(nil), payload...)
	if r.onPong != nil {
		r.onPong(p)
	}
	r.messages.Publish(PongMessage(p))
}

func (r *frameReceiver) receiveClose(payload []byte) error {
	ce, err := parseClosePayload(payload)
	if err != nil {
		return err
	}
	// The close message is delivered by the read loop once the
	// handshake reply has been settled.
	r.peerClose = ce
	return nil
}
