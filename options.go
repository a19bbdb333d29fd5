package websocket

import (
	"fmt"
	"time"

	"cdr.dev/slog"
)

// Role is the side of the connection an endpoint plays.
// It decides which direction masks its frames.
type Role int

// Role constants.
const (
	// RoleClient masks every frame it sends.
	RoleClient Role = iota + 1
	// RoleServer sends unmasked frames and requires masked ones.
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func (r Role) maskDirection() maskDirection {
	if r == RoleClient {
		return maskTransmit
	}
	return maskReceive
}

// DefaultCloseTimeout is used when ConnOptions.CloseTimeout is zero.
const DefaultCloseTimeout = time.Second * 5

// DefaultMaxMessageSize is used when ConnOptions.MaxMessageSize is zero.
const DefaultMaxMessageSize = 32768

// ConnOptions configures a Conn.
// The zero value is ready to use.
type ConnOptions struct {
	// CloseTimeout bounds how long the connection waits for the peer's
	// close frame after sending its own, and how long a close frame sent
	// because of an error may take to write.
	// Defaults to DefaultCloseTimeout.
	CloseTimeout time.Duration

	// MaxMessageSize is the maximum size in bytes of a reassembled data
	// message. Frames declaring a length that would exceed it fail the
	// connection with StatusMessageTooBig before their payload is read.
	// Defaults to DefaultMaxMessageSize. A negative value disables the
	// limit.
	MaxMessageSize int64

	// MaxFrameSize is the maximum payload size in bytes of a single frame.
	// Larger frames fail the connection with StatusProtocolError.
	// Defaults to MaxMessageSize. A negative value disables the limit.
	// Control frames are always limited to 125 bytes.
	MaxFrameSize int64

	// Logger receives connection lifecycle and protocol violation logs.
	// The zero value discards them.
	Logger slog.Logger
}

func (opts *ConnOptions) ensure() ConnOptions {
	var o ConnOptions
	if opts != nil {
		o = *opts
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = o.MaxMessageSize
	}
	return o
}
