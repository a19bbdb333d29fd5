package websocket

import "fmt"

// MessageType represents the type of a WebSocket message.
// See https://tools.ietf.org/html/rfc6455#section-5.6
type MessageType int

// MessageType constants.
const (
	// MessageText is for UTF-8 encoded text messages like JSON.
	MessageText MessageType = iota + 1
	// MessageBinary is for binary messages like protobufs.
	MessageBinary
	// MessagePing is a ping control message.
	MessagePing
	// MessagePong is a pong control message.
	MessagePong
	// MessageClose is a close control message.
	MessageClose
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "MessageText"
	case MessageBinary:
		return "MessageBinary"
	case MessagePing:
		return "MessagePing"
	case MessagePong:
		return "MessagePong"
	case MessageClose:
		return "MessageClose"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

func (t MessageType) opcode() (opcode, bool) {
	switch t {
	case MessageText:
		return opText, true
	case MessageBinary:
		return opBinary, true
	case MessagePing:
		return opPing, true
	case MessagePong:
		return opPong, true
	case MessageClose:
		return opClose, true
	}
	return 0, false
}

// Message is one whole WebSocket message.
//
// Text is only set for MessageText. Data holds the payload of
// MessageBinary, MessagePing and MessagePong. Code, Reason and
// ReplySent are only set for MessageClose.
type Message struct {
	Type MessageType

	Text string
	Data []byte

	Code   StatusCode
	Reason string
	// ReplySent reports whether this side's close frame had been
	// written when the message was delivered, either as the reply to
	// the peer or because this side started the handshake. It is false
	// when the reply could not be written.
	ReplySent bool
}

// TextMessage returns a text message carrying s.
func TextMessage(s string) Message {
	return Message{Type: MessageText, Text: s}
}

// BinaryMessage returns a binary message carrying p.
func BinaryMessage(p []byte) Message {
	return Message{Type: MessageBinary, Data: p}
}

// PingMessage returns a ping message carrying p.
// p must be at most 125 bytes.
func PingMessage(p []byte) Message {
	return Message{Type: MessagePing, Data: p}
}

// PongMessage returns a pong message carrying p.
// p must be at most 125 bytes.
func PongMessage(p []byte) Message {
	return Message{Type: MessagePong, Data: p}
}

// CloseMessage returns a close message.
// Use StatusNoStatusRcvd to send a close frame without a status code.
func CloseMessage(code StatusCode, reason string) Message {
	return Message{Type: MessageClose, Code: code, Reason: reason}
}

// payload returns the bytes carried by a text, binary, ping or pong message.
func (m Message) payload() []byte {
	if m.Type == MessageText {
		return []byte(m.Text)
	}
	return m.Data
}
