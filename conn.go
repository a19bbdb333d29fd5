package websocket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"cdr.dev/slog"

	"github.com/wsengine/websocket/internal/bufpool"
	"github.com/wsengine/websocket/internal/msgqueue"
)

// State is the close handshake state of a Conn.
//
// A connection failed by a protocol violation from the peer stays in
// StateClosing while it writes a close frame carrying the violation,
// which takes up to ConnOptions.CloseTimeout, and only then moves to
// StateClosed. Receive returns the violation once the connection is
// closed.
type State int

// State constants.
const (
	// StateOpen connections send and receive freely.
	StateOpen State = iota
	// StateClosing connections have sent a close frame and wait for
	// the peer's. Nothing more can be sent.
	StateClosing
	// StateClosed connections have released their stream.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Conn represents a WebSocket connection.
// All methods may be called concurrently.
//
// A read loop started by NewConn handles control frames and queues
// received messages without bound until Receive or Read consumes them.
// Call CloseRead if the application never reads.
//
// Be sure to call Close on the connection when you
// are finished with it to release the associated resources.
type Conn struct {
	subprotocol string
	rwc         io.ReadWriteCloser
	role        Role
	opts        ConnOptions
	log         slog.Logger

	br       *bufio.Reader
	frame    []byte
	sender   *frameSender
	receiver *frameReceiver
	messages *msgqueue.Queue[Message]

	// loopCtx is cancelled when the connection closes.
	loopCtx    context.Context
	loopCancel context.CancelFunc

	closeMu    sync.Mutex
	state      State
	closeTimer *time.Timer
	closeErr   error
	releaseErr error
	closeOnce  sync.Once
	closed     chan struct{}

	// fragmentMu is held for every data send.
	fragmentMu mu
	// Guarded by fragmentMu.
	fragmentType MessageType

	pingCounter   atomic.Int64
	activePingsMu sync.Mutex
	activePings   map[string]chan struct{}
}

// NewConn turns rwc into a WebSocket connection playing the given role.
// The opening handshake must already have completed.
// The connection is reading from rwc when NewConn returns.
func NewConn(rwc io.ReadWriteCloser, role Role, opts *ConnOptions) *Conn {
	return newConn(rwc, role, opts, "")
}

func newConn(rwc io.ReadWriteCloser, role Role, opts *ConnOptions, subprotocol string) *Conn {
	o := opts.ensure()

	c := &Conn{
		subprotocol: subprotocol,
		rwc:         rwc,
		role:        role,
		opts:        o,
		log:         o.Logger.Named("websocket").With(slog.F("role", role)),
		br:          bufpool.GetReader(rwc),
		messages:    msgqueue.New[Message](),
		closed:      make(chan struct{}),
		activePings: make(map[string]chan struct{}),
	}
	c.loopCtx, c.loopCancel = context.WithCancel(context.Background())

	c.sender = newFrameSender(rwc, role.maskDirection())
	c.receiver = newFrameReceiver(role.maskDirection(), c.sender, c.messages)
	c.receiver.maxMessageSize = o.MaxMessageSize
	c.receiver.onPong = c.handlePong

	go c.readLoop()

	return c
}

// Subprotocol returns the negotiated subprotocol.
// An empty string means the default protocol.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// State returns the current close handshake state.
func (c *Conn) State() State {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.state
}

// close moves the connection to StateClosed and releases the stream.
// err becomes the terminal event of Receive. Only the first call has
// an effect.
func (c *Conn) close(err error) {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.state = StateClosed
		c.closeErr = err
		if c.closeTimer != nil {
			c.closeTimer.Stop()
		}
		c.closeMu.Unlock()

		// The stream is closed before waking anyone so a goroutine that
		// observes c.closed also observes the released stream.
		releaseErr := c.rwc.Close()

		c.closeMu.Lock()
		c.releaseErr = releaseErr
		c.closeMu.Unlock()

		c.log.Debug(context.Background(), "connection closed", slog.Error(err))

		c.loopCancel()
		c.messages.Close(err)
		close(c.closed)
	})
}

func (c *Conn) terminalErr() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// Ping sends a ping to the peer and waits for a pong.
// Use this to measure latency or ensure the peer is responsive.
// The pong is picked up by the read loop so Ping works whether
// or not the application is reading.
func (c *Conn) Ping(ctx context.Context) error {
	p := c.pingCounter.Add(1)

	err := c.ping(ctx, strconv.FormatInt(p, 10))
	if err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}
	return nil
}

func (c *Conn) ping(ctx context.Context, p string) error {
	pong := make(chan struct{})

	c.activePingsMu.Lock()
	c.activePings[p] = pong
	c.activePingsMu.Unlock()

	defer func() {
		c.activePingsMu.Lock()
		delete(c.activePings, p)
		c.activePingsMu.Unlock()
	}()

	err := c.Send(ctx, PingMessage([]byte(p)))
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for pong: %w", ctx.Err())
	case <-pong:
		return nil
	}
}

func (c *Conn) handlePong(p []byte) {
	c.activePingsMu.Lock()
	defer c.activePingsMu.Unlock()

	pong, ok := c.activePings[string(p)]
	if !ok {
		return
	}
	delete(c.activePings, string(p))
	close(pong)
}
