package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/wsengine/websocket/internal/errd"
)

var errFragmentInProgress = errors.New("a fragmented message is being sent")

// Send writes m to the peer as a single frame.
//
// Sending a close message starts the close handshake without waiting
// for it to complete. Use Close to also wait for the peer.
// Once the handshake has started Send returns ErrClosed.
func (c *Conn) Send(ctx context.Context, m Message) (err error) {
	defer errd.Wrap(&err, "failed to send %v", m.Type)

	switch m.Type {
	case MessageClose:
		return c.sendClose(m.Code, m.Reason)
	case MessageText, MessageBinary:
		err = c.fragmentMu.Lock(ctx)
		if err != nil {
			return err
		}
		defer c.fragmentMu.Unlock()

		if c.fragmentType != 0 {
			return errFragmentInProgress
		}
		return c.writeFrame(ctx, true, m.Type, m.payload())
	case MessagePing, MessagePong:
		if len(m.Data) > maxControlPayload {
			return fmt.Errorf("control payload of %v bytes exceeds %v", len(m.Data), maxControlPayload)
		}
		return c.writeFrame(ctx, true, m.Type, m.Data)
	default:
		return fmt.Errorf("unknown message type: %v", m.Type)
	}
}

// Write writes a data message of the given type to the peer.
func (c *Conn) Write(ctx context.Context, typ MessageType, p []byte) error {
	switch typ {
	case MessageText:
		return c.Send(ctx, TextMessage(string(p)))
	case MessageBinary:
		return c.Send(ctx, BinaryMessage(p))
	default:
		return fmt.Errorf("failed to write: %v is not a data message type", typ)
	}
}

// WriteFragment writes p as the next fragment of a data message.
// The first call picks the message type. Later calls must pass the same
// type until a call with last set finishes the message. Other data sends
// fail while a fragmented message is in progress. Control messages may
// be interleaved.
func (c *Conn) WriteFragment(ctx context.Context, typ MessageType, p []byte, last bool) (err error) {
	defer errd.Wrap(&err, "failed to write %v fragment", typ)

	if typ != MessageText && typ != MessageBinary {
		return fmt.Errorf("%v is not a data message type", typ)
	}

	err = c.fragmentMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer c.fragmentMu.Unlock()

	op, _ := typ.opcode()
	switch c.fragmentType {
	case 0:
	case typ:
		op = opContinuation
	default:
		return fmt.Errorf("%v fragment sent while a %v message is in progress", typ, c.fragmentType)
	}

	err = c.writeOp(ctx, last, op, p)
	if err != nil {
		return err
	}
	if last {
		c.fragmentType = 0
	} else {
		c.fragmentType = typ
	}
	return nil
}

func (c *Conn) writeFrame(ctx context.Context, fin bool, typ MessageType, p []byte) error {
	op, _ := typ.opcode()
	return c.writeOp(ctx, fin, op, p)
}

func (c *Conn) writeOp(ctx context.Context, fin bool, op opcode, p []byte) error {
	if c.State() != StateOpen {
		return ErrClosed
	}
	return c.sender.writeFrame(ctx, fin, op, p)
}
