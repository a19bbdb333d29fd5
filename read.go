package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"cdr.dev/slog"

	"github.com/wsengine/websocket/internal/bufpool"
	"github.com/wsengine/websocket/internal/errd"
)

// Receive returns the next message from the peer, control messages
// included, in the order they were received.
//
// Once the connection is closed and every queued message has been
// returned, Receive returns io.EOF after a clean close handshake, or the
// error that failed the connection. A peer that disconnects without a
// close handshake yields io.ErrUnexpectedEOF.
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	m, err := c.messages.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("failed to receive: %w", err)
	}
	return m, nil
}

// Read returns the next data message from the peer.
// Control messages are skipped. Text messages are returned as bytes.
func (c *Conn) Read(ctx context.Context) (MessageType, []byte, error) {
	for {
		m, err := c.Receive(ctx)
		if err != nil {
			return 0, nil, err
		}
		switch m.Type {
		case MessageText:
			return m.Type, []byte(m.Text), nil
		case MessageBinary:
			return m.Type, m.Data, nil
		}
	}
}

// CloseRead detaches the consumer. Every message received from then on
// is discarded while pings, pongs and close frames are still handled.
// Call it when the application never reads from the connection.
//
// The returned context is cancelled when the connection closes.
func (c *Conn) CloseRead(ctx context.Context) context.Context {
	c.messages.Detach()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-ctx.Done():
		case <-c.closed:
		}
	}()
	return ctx
}

func (c *Conn) readLoop() {
	defer func() {
		bufpool.PutReader(c.br)
		c.br = nil
		c.frame = nil
	}()

	for {
		receivedClose, err := c.readFrame(c.loopCtx)
		if err != nil {
			c.readFailed(err)
			return
		}
		if receivedClose {
			c.closeReceived()
			return
		}
	}
}

// readFrame reads one complete frame and hands it to the receiver.
func (c *Conn) readFrame(ctx context.Context) (receivedClose bool, err error) {
	c.frame = growFrameBuffer(c.frame, maxHeaderSize)

	_, err = io.ReadFull(c.br, c.frame[:2])
	if err != nil {
		return false, err
	}
	headerLen := headerLength(c.frame[1])
	_, err = io.ReadFull(c.br, c.frame[2:headerLen])
	if err != nil {
		return false, unexpectedEOF(err)
	}

	_, payloadLen, err := frameLengths(c.frame[:headerLen])
	if err != nil {
		return false, err
	}
	// The declared length is checked before anything is allocated for it.
	err = c.receiver.checkFrameLength(c.frame[0], payloadLen)
	if err != nil {
		return false, err
	}
	if c.opts.MaxFrameSize > 0 && payloadLen > c.opts.MaxFrameSize && !opcode(c.frame[0]&opcodeBits).controlOp() {
		return false, &ProtocolError{Reason: "frame too large"}
	}
	if payloadLen > int64(math.MaxInt-headerLen) {
		return false, &ProtocolError{Reason: "frame too large"}
	}

	n := headerLen + int(payloadLen)
	c.frame, err = readPayload(c.br, c.frame, headerLen, n)
	if err != nil {
		return false, unexpectedEOF(err)
	}

	receivedClose, err = c.receiver.receiveFrame(ctx, c.frame[:n], headerLen, int(payloadLen))
	if cap(c.frame) > maxRetainedFrameBuffer {
		c.frame = nil
	}
	return receivedClose, err
}

// payloadChunk is the most a payload read asks for at once.
const payloadChunk = 1 << 20

// readPayload reads buf[off:n] from r, growing buf as needed.
// The declared length is untrusted when no size limit applies, so buf
// only grows in proportion to the bytes that have arrived.
func readPayload(r io.Reader, buf []byte, off, n int) ([]byte, error) {
	for off < n {
		end := n
		if end-off > payloadChunk {
			end = off + payloadChunk
		}
		buf = growFrameBuffer(buf, end)
		_, err := io.ReadFull(r, buf[off:end])
		if err != nil {
			return buf, err
		}
		off = end
	}
	return buf[:n], nil
}

// growFrameBuffer returns b resliced to n bytes, reallocating when its
// capacity is too small. The first len(b) bytes are preserved.
func growFrameBuffer(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	c := 2 * cap(b)
	if c < n {
		c = n
	}
	nb := make([]byte, n, c)
	copy(nb, b)
	return nb
}

// unexpectedEOF converts an EOF in the middle of a frame.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// closeReceived completes the close handshake after the peer's
// close frame and delivers it.
func (c *Conn) closeReceived() {
	ce := c.receiver.peerClose

	c.closeMu.Lock()
	st := c.state
	if st == StateOpen {
		c.state = StateClosing
	}
	c.closeMu.Unlock()

	if st != StateOpen {
		c.log.Debug(c.loopCtx, "close handshake completed", slog.F("code", ce.Code))
		c.publishClose(ce, c.sender.closeFrameSent(c.loopCtx))
		c.close(io.EOF)
		return
	}

	c.log.Debug(c.loopCtx, "peer initiated close handshake", slog.F("code", ce.Code), slog.F("reason", ce.Reason))

	// The reply mirrors the peer's status. A reply to a close frame
	// without a status carries none either.
	reply, err := CloseError{Code: ce.Code}.bytes()
	if err == nil {
		err = c.writeCloseTimeout(reply)
	}
	c.publishClose(ce, err == nil)
	if err != nil {
		c.close(err)
		return
	}
	c.close(io.EOF)
}

func (c *Conn) publishClose(ce CloseError, replySent bool) {
	c.messages.Publish(Message{
		Type:      MessageClose,
		Code:      ce.Code,
		Reason:    ce.Reason,
		ReplySent: replySent,
	})
}

// readFailed ends the connection after the read loop fails.
func (c *Conn) readFailed(err error) {
	c.closeMu.Lock()
	st := c.state
	if st == StateOpen {
		c.state = StateClosing
	}
	c.closeMu.Unlock()

	switch {
	case st == StateClosed:
		// The stream was released under the read loop.
		return
	case errors.Is(err, io.EOF):
		err = io.ErrUnexpectedEOF
	}

	code := errorCloseCode(err)
	if code == StatusInternalError {
		// The stream itself failed so no close frame can be delivered.
		c.close(err)
		return
	}

	c.log.Warn(c.loopCtx, "peer violated the protocol", slog.Error(err), slog.F("code", code))

	if st == StateOpen {
		reason := err.Error()
		if len(reason) > maxCloseReason {
			reason = ""
		}
		p, perr := CloseError{Code: code, Reason: reason}.bytes()
		if perr == nil {
			// Best effort.
			c.writeCloseTimeout(p)
		}
	}
	c.close(err)
}

// writeCloseTimeout writes a close frame, releasing the stream if the
// write does not complete within the close timeout.
func (c *Conn) writeCloseTimeout(p []byte) (err error) {
	defer errd.Wrap(&err, "failed to write close frame")

	t := time.AfterFunc(c.opts.CloseTimeout, func() {
		c.close(errors.New("timed out writing close frame"))
	})
	defer t.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CloseTimeout)
	defer cancel()

	return c.sender.writeFrame(ctx, true, opClose, p)
}
