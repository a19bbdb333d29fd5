package wsecho

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wsengine/websocket"
)

var errShuttingDown = errors.New("server shutting down")

// grace records accepted connections so they can be closed with
// StatusGoingAway on shutdown. net/http.Server does not track hijacked
// connections.
type grace struct {
	mu      sync.Mutex
	closing bool
	conns   map[*websocket.Conn]struct{}
}

func (g *grace) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

func (g *grace) add(c *websocket.Conn) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return errShuttingDown
	}
	if g.conns == nil {
		g.conns = make(map[*websocket.Conn]struct{})
	}
	g.conns[c] = struct{}{}
	return nil
}

func (g *grace) del(c *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c)
}

func (g *grace) zeroConns() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns) == 0
}

// shutdown stops accepting connections, starts the close handshake on
// every recorded connection and waits until their handlers return.
func (g *grace) shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	for c := range g.conns {
		go c.Close(websocket.StatusGoingAway, errShuttingDown.Error())
	}
	g.mu.Unlock()

	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		if g.zeroConns() {
			return nil
		}

		select {
		case <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("failed to shutdown WebSockets: %w", ctx.Err())
		}
	}
}
