package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cdr.dev/slog"
	"go.uber.org/multierr"

	"github.com/wsengine/websocket/internal/errd"
)

// Close performs the WebSocket close handshake with the given status code and reason.
//
// It writes a close frame and waits up to the close timeout for the
// peer's close frame before releasing the connection.
// StatusNoStatusRcvd sends a close frame without a status code.
// StatusAbnormalClosure releases the connection at once without a close frame.
//
// The maximum length of reason is 123 bytes. Avoid sending a dynamic reason.
//
// Calling Close on a connection that is already closing waits for the
// handshake in progress.
func (c *Conn) Close(code StatusCode, reason string) (err error) {
	defer errd.Wrap(&err, "failed to close WebSocket")

	if code == StatusAbnormalClosure {
		c.close(ErrClosed)
		return c.releaseError()
	}

	writeErr := c.sendClose(code, reason)
	switch {
	case writeErr == nil, errors.Is(writeErr, ErrClosed):
		writeErr = nil
	case c.State() == StateOpen:
		// Invalid code or reason.
		return writeErr
	default:
		c.close(writeErr)
	}

	<-c.closed
	if errors.Is(c.terminalErr(), io.EOF) {
		// The peer's close frame arrived while ours was being written.
		writeErr = nil
	}
	return multierr.Append(writeErr, c.releaseError())
}

func (c *Conn) releaseError() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.releaseErr
}

// sendClose writes a close frame and moves the connection to StateClosing.
// The connection is closed when the peer's close frame arrives or the
// close timeout expires.
func (c *Conn) sendClose(code StatusCode, reason string) error {
	p, err := CloseError{Code: code, Reason: reason}.bytes()
	if err != nil {
		return err
	}

	c.closeMu.Lock()
	if c.state != StateOpen {
		c.closeMu.Unlock()
		return ErrClosed
	}
	c.state = StateClosing
	// Armed before writing so a peer that stops reading cannot block the
	// write forever.
	c.closeTimer = time.AfterFunc(c.opts.CloseTimeout, c.closeTimedOut)
	c.closeMu.Unlock()

	c.log.Debug(context.Background(), "sending close frame", slog.F("code", code), slog.F("reason", reason))

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CloseTimeout)
	defer cancel()

	err = c.sender.writeFrame(ctx, true, opClose, p)
	if err != nil {
		return fmt.Errorf("failed to write close frame: %w", err)
	}
	return nil
}

func (c *Conn) closeTimedOut() {
	c.log.Debug(context.Background(), "timed out waiting for the peer's close frame")
	c.close(io.EOF)
}
