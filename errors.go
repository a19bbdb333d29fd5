package websocket

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrClosed is returned by Send and the other write methods once the
// connection is closing or closed.
var ErrClosed = errors.New("websocket: connection closing or closed")

// ErrInvalidUTF8 is the decode error wrapped by every UTF8Error.
var ErrInvalidUTF8 = errors.New("invalid UTF-8 sequence")

// ProtocolError is returned when the peer sends a frame that violates
// RFC 6455. It is always fatal to the connection.
type ProtocolError struct {
	// Reason is a short static description of the violation,
	// such as "reserved bits set" or "unknown opcode".
	Reason string
}

func (e *ProtocolError) Error() string {
	return "bad frame: " + e.Reason
}

// UTF8Error is returned when a text message or a close reason
// received from the peer is not valid UTF-8.
type UTF8Error struct {
	// Context is "text message" or "close reason".
	Context string
	// Offset is the index of the first invalid byte.
	Offset int
}

func (e *UTF8Error) Error() string {
	return fmt.Sprintf("invalid UTF-8 in %v at byte %v", e.Context, e.Offset)
}

func (e *UTF8Error) Unwrap() error {
	return ErrInvalidUTF8
}

func validateUTF8(b []byte, context string) error {
	if utf8.Valid(b) {
		return nil
	}
	i := 0
	for i < len(b) {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		i += size
	}
	return &UTF8Error{
		Context: context,
		Offset:  i,
	}
}

// errorCloseCode returns the status code to send to the peer
// when the connection fails with err.
func errorCloseCode(err error) StatusCode {
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.Reason == reasonMessageTooLarge {
		return StatusMessageTooBig
	}
	var ue *UTF8Error
	if errors.As(err, &ue) {
		return StatusInvalidFramePayloadData
	}
	if pe != nil {
		return StatusProtocolError
	}
	return StatusInternalError
}
