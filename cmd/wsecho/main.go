// Command wsecho serves a rate limited WebSocket echo endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/wsengine/websocket"
	"github.com/wsengine/websocket/internal/wsecho"
)

func main() {
	var (
		addr         = pflag.String("addr", "localhost:8080", "address to listen on")
		msgRate      = pflag.Float64("rate", 10, "echoed messages per second per connection, 0 for no limit")
		burst        = pflag.Int("burst", 10, "burst of echoed messages per connection")
		closeTimeout = pflag.Duration("close-timeout", websocket.DefaultCloseTimeout, "close handshake timeout")
		maxMessage   = pflag.Int64("max-message-size", 1<<20, "maximum size in bytes of a received message, negative for no limit")
		debug        = pflag.Bool("debug", false, "enable debug logs")
	)
	pflag.Parse()

	log := slog.Make(sloghuman.Sink(os.Stderr))
	if *debug {
		log = log.Leveled(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, log, *addr, &wsecho.Server{
		Limit: rate.Limit(*msgRate),
		Burst: *burst,
		Conn: websocket.ConnOptions{
			CloseTimeout:   *closeTimeout,
			MaxMessageSize: *maxMessage,
			Logger:         log,
		},
		Logger: log,
	})
	if err != nil {
		log.Fatal(ctx, "echo server failed", slog.Error(err))
	}
}

func newRouter(echo *wsecho.Server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", gin.WrapH(echo))
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func run(ctx context.Context, log slog.Logger, addr string, echo *wsecho.Server) error {
	s := &http.Server{
		Addr:              addr,
		Handler:           newRouter(echo),
		ReadHeaderTimeout: time.Second * 10,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", slog.F("addr", addr))
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err := s.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	// Hijacked connections are not tracked by http.Server.
	return multierr.Append(err, echo.Shutdown(shutdownCtx))
}
