// Package websocket implements the framing layer of the WebSocket
// protocol.
//
// See https://tools.ietf.org/html/rfc6455
//
// A Conn wraps an established byte stream in the client or server
// role. Accept and Dial perform the opening handshake over HTTP and
// NewConn takes a stream that is already upgraded.
//
// Every Conn runs a read loop from the moment it is created. Frames
// are decoded, validated and reassembled into Messages which are
// queued in arrival order without bound. Receive returns them, control
// messages included. Pings are answered and close frames are replied
// to without waiting for the application.
//
// The close handshake moves the connection from StateOpen through
// StateClosing to StateClosed. Once every queued message has been
// returned, Receive reports io.EOF after a clean handshake, or the
// error that failed the connection.
//
// Writes are safe for concurrent use. Each frame reaches the stream
// in a single write and nothing follows a close frame.
package websocket
