// Package wsecho implements a rate limited WebSocket echo service.
package wsecho

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cdr.dev/slog"
	"golang.org/x/time/rate"

	"github.com/wsengine/websocket"
)

// Subprotocol is negotiated by clients that want the echo service.
const Subprotocol = "echo"

// Server accepts WebSocket connections and echoes every data message
// they send.
type Server struct {
	// Limit and Burst bound the rate of echoed messages per connection.
	// A zero Limit disables rate limiting.
	Limit rate.Limit
	Burst int

	// Conn configures every accepted connection.
	Conn websocket.ConnOptions

	Logger slog.Logger

	grace grace
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := s.serve(w, r)
	if err != nil {
		s.Logger.Warn(r.Context(), "echo connection failed", slog.F("remote_addr", r.RemoteAddr), slog.Error(err))
	}
}

// Shutdown stops accepting connections and closes the accepted ones
// with StatusGoingAway. It returns once every connection handler has
// returned or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.grace.shutdown(ctx)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) error {
	if s.grace.isClosing() {
		http.Error(w, errShuttingDown.Error(), http.StatusServiceUnavailable)
		return errShuttingDown
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
		ConnOptions:  s.Conn,
	})
	if err != nil {
		return err
	}
	defer c.Close(websocket.StatusInternalError, "the sky is falling")

	err = s.grace.add(c)
	if err != nil {
		c.Close(websocket.StatusGoingAway, err.Error())
		return err
	}
	defer s.grace.del(c)

	if c.Subprotocol() != Subprotocol {
		c.Close(websocket.StatusPolicyViolation, "client must speak the echo subprotocol")
		return errors.New("client does not speak echo sub protocol")
	}

	l := rate.NewLimiter(rate.Inf, 0)
	if s.Limit > 0 {
		l = rate.NewLimiter(s.Limit, s.Burst)
	}

	err = Loop(r.Context(), c, l)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to echo with %v: %w", r.RemoteAddr, err)
	}
	return nil
}

// Loop echos every data message received from c until an error
// occurs or the context expires. l paces the echoes.
// A clean close handshake ends the loop with io.EOF.
func Loop(ctx context.Context, c *websocket.Conn, l *rate.Limiter) error {
	for {
		err := echo(ctx, c, l)
		if err != nil {
			return err
		}
	}
}

// echo reads one data message and writes it back.
// Writing has 10s to complete.
func echo(ctx context.Context, c *websocket.Conn, l *rate.Limiter) error {
	typ, p, err := c.Read(ctx)
	if err != nil {
		return err
	}

	err = l.Wait(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	return c.Write(ctx, typ, p)
}
