// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"context"
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/wsengine/websocket"
	"github.com/wsengine/websocket/internal/bufpool"
)

// Read reads a json message from c into v.
// A message that is not text or not valid JSON closes the connection.
func Read(ctx context.Context, c *websocket.Conn, v interface{}) error {
	err := read(ctx, c, v)
	if err != nil {
		return xerrors.Errorf("failed to read json: %w", err)
	}
	return nil
}

func read(ctx context.Context, c *websocket.Conn, v interface{}) error {
	typ, b, err := c.Read(ctx)
	if err != nil {
		return err
	}

	if typ != websocket.MessageText {
		c.Close(websocket.StatusUnsupportedData, "expected text message")
		return xerrors.Errorf("unexpected frame type for json (expected %v): %v", websocket.MessageText, typ)
	}

	err = json.Unmarshal(b, v)
	if err != nil {
		c.Close(websocket.StatusInvalidFramePayloadData, "failed to unmarshal JSON")
		return xerrors.Errorf("failed to unmarshal json: %w", err)
	}

	return nil
}

// Write writes the json message v to c as a text message.
func Write(ctx context.Context, c *websocket.Conn, v interface{}) error {
	err := write(ctx, c, v)
	if err != nil {
		return xerrors.Errorf("failed to write json: %w", err)
	}
	return nil
}

func write(ctx context.Context, c *websocket.Conn, v interface{}) error {
	b := bufpool.Get()
	defer bufpool.Put(b)

	err := json.NewEncoder(b).Encode(v)
	if err != nil {
		return xerrors.Errorf("failed to encode json: %w", err)
	}

	return c.Write(ctx, websocket.MessageText, b.Bytes())
}
