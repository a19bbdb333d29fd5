package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// NetConn converts a *websocket.Conn into a net.Conn.
//
// It's for tunneling arbitrary protocols over WebSockets.
// Few users of the library will need this but it's tricky to implement
// correctly and so provided in the library.
//
// Every Write to the net.Conn corresponds to a message of type msgType.
// Writing MessageText requires p to be valid UTF-8.
// Read returns io.EOF once the close handshake completes and fails the
// connection with StatusUnsupportedData if a message of another type arrives.
//
// Close will close the *websocket.Conn with StatusNormalClosure.
//
// When a deadline is hit the pending Read or Write returns an error
// matching os.ErrDeadlineExceeded. The connection stays open.
//
// The Addr methods return a mock net.Addr that returns "websocket" for Network
// and "websocket/unknown-addr" for String.
//
// ctx bounds the lifetime of the net.Conn.
func NetConn(ctx context.Context, c *Conn, msgType MessageType) net.Conn {
	return &netConn{
		c:       c,
		msgType: msgType,
		read:    newDeadline(ctx),
		write:   newDeadline(ctx),
	}
}

type netConn struct {
	c       *Conn
	msgType MessageType

	read  *deadline
	write *deadline

	readMu  sync.Mutex
	pending []byte
	eof     bool
}

var _ net.Conn = &netConn{}

func (nc *netConn) Close() error {
	nc.read.stop()
	nc.write.stop()
	return nc.c.Close(StatusNormalClosure, "")
}

func (nc *netConn) Write(p []byte) (int, error) {
	ctx := nc.write.context()
	err := nc.c.Write(ctx, nc.msgType, p)
	if err != nil {
		return 0, nc.opError(ctx, "write", err)
	}
	return len(p), nil
}

func (nc *netConn) Read(p []byte) (int, error) {
	nc.readMu.Lock()
	defer nc.readMu.Unlock()

	for len(nc.pending) == 0 {
		if nc.eof {
			return 0, io.EOF
		}

		ctx := nc.read.context()
		typ, b, err := nc.c.Read(ctx)
		if errors.Is(err, io.EOF) {
			nc.eof = true
			return 0, io.EOF
		}
		if err != nil {
			return 0, nc.opError(ctx, "read", err)
		}
		if typ != nc.msgType {
			nc.c.Close(StatusUnsupportedData, "unexpected message type")
			return 0, fmt.Errorf("unexpected frame type read (expected %v): %v", nc.msgType, typ)
		}
		nc.pending = b
	}

	n := copy(p, nc.pending)
	nc.pending = nc.pending[n:]
	return n, nil
}

// opError reports a deadline expiry the way net.Conn implementations do.
func (nc *netConn) opError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && nc.read.parent.Err() == nil && nc.c.State() != StateClosed {
		err = os.ErrDeadlineExceeded
	}
	return &net.OpError{
		Op:   op,
		Net:  "websocket",
		Addr: websocketAddr{},
		Err:  err,
	}
}

type websocketAddr struct {
}

func (a websocketAddr) Network() string {
	return "websocket"
}

func (a websocketAddr) String() string {
	return "websocket/unknown-addr"
}

func (nc *netConn) RemoteAddr() net.Addr {
	return websocketAddr{}
}

func (nc *netConn) LocalAddr() net.Addr {
	return websocketAddr{}
}

func (nc *netConn) SetDeadline(t time.Time) error {
	nc.SetWriteDeadline(t)
	nc.SetReadDeadline(t)
	return nil
}

func (nc *netConn) SetWriteDeadline(t time.Time) error {
	nc.write.set(t)
	return nil
}

func (nc *netConn) SetReadDeadline(t time.Time) error {
	nc.read.set(t)
	return nil
}

// deadline is a context cancelled when a deadline expires.
// Setting a new deadline after expiry renews the context.
type deadline struct {
	parent context.Context

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	gen    uint64
}

func newDeadline(parent context.Context) *deadline {
	d := &deadline{parent: parent}
	d.ctx, d.cancel = context.WithCancel(parent)
	return d
}

func (d *deadline) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.ctx.Err() != nil && d.parent.Err() == nil {
		d.ctx, d.cancel = context.WithCancel(d.parent)
	}
	if t.IsZero() {
		return
	}

	dur := time.Until(t)
	if dur <= 0 {
		d.cancel()
		return
	}
	gen := d.gen
	d.timer = time.AfterFunc(dur, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gen == gen {
			d.cancel()
		}
	})
}

func (d *deadline) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.cancel()
}
