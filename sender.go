package websocket

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/wsengine/websocket/internal/errd"
)

// maskDirection is the direction in which an endpoint masks frames.
type maskDirection int

const (
	// maskTransmit endpoints mask every frame they send and reject
	// masked frames they receive. Clients are maskTransmit.
	maskTransmit maskDirection = iota + 1
	// maskReceive endpoints send unmasked frames and reject unmasked
	// frames they receive. Servers are maskReceive.
	maskReceive
)

func (d maskDirection) String() string {
	switch d {
	case maskTransmit:
		return "transmit"
	case maskReceive:
		return "receive"
	}
	return fmt.Sprintf("maskDirection(%d)", int(d))
}

// Frame buffers larger than this are not retained between writes.
const maxRetainedFrameBuffer = 1 << 16

// frameSender encodes frames and writes them to the connection.
// It is shared by user sends and the automatic pong and close replies
// of the read loop. frameMu serializes whole frames.
type frameSender struct {
	w         io.Writer
	direction maskDirection

	frameMu mu

	// Guarded by frameMu.
	buf       []byte
	err       error
	closeSent bool
}

func newFrameSender(w io.Writer, direction maskDirection) *frameSender {
	return &frameSender{
		w:         w,
		direction: direction,
	}
}

// writeFrame writes one frame with the given FIN flag, opcode and payload.
// The header, masking key and payload go out in a single Write.
// p is never modified.
func (s *frameSender) writeFrame(ctx context.Context, fin bool, op opcode, p []byte) (err error) {
	defer errd.Wrap(&err, "failed to write %v frame", op)

	err = s.frameMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.frameMu.Unlock()

	if s.err != nil {
		return s.err
	}
	// Nothing may follow a close frame.
	if s.closeSent {
		return ErrClosed
	}

	h := header{
		fin:           fin,
		opcode:        op,
		payloadLength: int64(len(p)),
		masked:        s.direction == maskTransmit,
	}
	if h.masked {
		err = binary.Read(rand.Reader, binary.LittleEndian, &h.maskKey)
		if err != nil {
			return fmt.Errorf("failed to generate masking key: %w", err)
		}
	}

	s.buf = appendFrameHeader(s.buf[:0], h)
	headerLen := len(s.buf)
	s.buf = append(s.buf, p...)
	if h.masked {
		mask(h.maskKey, s.buf[headerLen:])
	}

	_, err = s.w.Write(s.buf)
	if cap(s.buf) > maxRetainedFrameBuffer {
		s.buf = nil
	}
	if err != nil {
		// A partially written frame corrupts the stream.
		s.err = err
		return err
	}
	if op == opClose {
		s.closeSent = true
	}
	return nil
}

// closeFrameSent reports whether a close frame has been written.
func (s *frameSender) closeFrameSent(ctx context.Context) bool {
	err := s.frameMu.Lock(ctx)
	if err != nil {
		return false
	}
	defer s.frameMu.Unlock()
	return s.closeSent
}

// mu is a mutex whose Lock can be bounded by a context.
type mu struct {
	once sync.Once
	ch   chan struct{}
}

func (m *mu) init() {
	m.once.Do(func() {
		m.ch = make(chan struct{}, 1)
	})
}

func (m *mu) Lock(ctx context.Context) error {
	m.init()
	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
	case m.ch <- struct{}{}:
		return nil
	}
}

func (m *mu) Unlock() {
	<-m.ch
}
