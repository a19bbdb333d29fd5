package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// StatusCode represents a WebSocket status code.
// https://tools.ietf.org/html/rfc6455#section-7.4
type StatusCode int

// These codes were retrieved from:
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
//
// The 3000-4999 range of status codes is reserved for libraries, frameworks
// and applications.
const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusUnsupportedData StatusCode = 1003

	// 1004 is reserved and so not exported.
	statusReserved StatusCode = 1004

	// StatusNoStatusRcvd cannot be sent in a close message.
	// It is observed when a close message is received without
	// an explicit status. Sending it produces a close frame
	// with an empty payload.
	StatusNoStatusRcvd StatusCode = 1005

	// StatusAbnormalClosure cannot be sent in a close message.
	// Passing it to Close releases the connection without a close frame.
	StatusAbnormalClosure StatusCode = 1006

	StatusInvalidFramePayloadData StatusCode = 1007
	StatusPolicyViolation         StatusCode = 1008
	StatusMessageTooBig           StatusCode = 1009
	StatusMandatoryExtension      StatusCode = 1010
	StatusInternalError           StatusCode = 1011
)

func (c StatusCode) String() string {
	switch c {
	case StatusNormalClosure:
		return "StatusNormalClosure"
	case StatusGoingAway:
		return "StatusGoingAway"
	case StatusProtocolError:
		return "StatusProtocolError"
	case StatusUnsupportedData:
		return "StatusUnsupportedData"
	case statusReserved:
		return "statusReserved"
	case StatusNoStatusRcvd:
		return "StatusNoStatusRcvd"
	case StatusAbnormalClosure:
		return "StatusAbnormalClosure"
	case StatusInvalidFramePayloadData:
		return "StatusInvalidFramePayloadData"
	case StatusPolicyViolation:
		return "StatusPolicyViolation"
	case StatusMessageTooBig:
		return "StatusMessageTooBig"
	case StatusMandatoryExtension:
		return "StatusMandatoryExtension"
	case StatusInternalError:
		return "StatusInternalError"
	}
	return fmt.Sprintf("StatusCode(%d)", int(c))
}

// CloseError represents the status code and reason of a WebSocket
// close frame. Handlers that end a connection because of a close
// message can return it so callers may use CloseStatus.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (ce CloseError) Error() string {
	return fmt.Sprintf("status = %v and reason = %q", ce.Code, ce.Reason)
}

// CloseStatus is a convenience wrapper around errors.As to grab
// the status code from a CloseError. If the passed error is nil
// or not a CloseError, the returned StatusCode will be -1.
func CloseStatus(err error) StatusCode {
	var ce CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

// validWireCloseCode reports whether code may appear in a close frame.
// See https://tools.ietf.org/html/rfc6455#section-7.4.1
func validWireCloseCode(code StatusCode) bool {
	switch code {
	case StatusNormalClosure, StatusGoingAway, StatusProtocolError, StatusUnsupportedData,
		StatusInvalidFramePayloadData, StatusPolicyViolation, StatusMessageTooBig,
		StatusMandatoryExtension, StatusInternalError:
		return true
	}
	return code >= 3000 && code <= 4999
}

// parseClosePayload decodes the payload of a received close frame.
//
// A payload shorter than 2 bytes carries no status code and is observed
// as StatusNoStatusRcvd. This includes the malformed 1 byte payload.
func parseClosePayload(p []byte) (CloseError, error) {
	if len(p) < 2 {
		return CloseError{
			Code: StatusNoStatusRcvd,
		}, nil
	}

	code := StatusCode(binary.BigEndian.Uint16(p))
	if !validWireCloseCode(code) {
		return CloseError{}, &ProtocolError{Reason: "illegal close code"}
	}

	reason := p[2:]
	err := validateUTF8(reason, "close reason")
	if err != nil {
		return CloseError{}, err
	}

	return CloseError{
		Code:   code,
		Reason: string(reason),
	}, nil
}

const maxCloseReason = maxControlPayload - 2

// bytes returns the payload of a close frame carrying ce.
// StatusNoStatusRcvd produces an empty payload.
func (ce CloseError) bytes() ([]byte, error) {
	if ce.Code == StatusNoStatusRcvd {
		if ce.Reason != "" {
			return nil, fmt.Errorf("cannot send reason %q without a status code", ce.Reason)
		}
		return nil, nil
	}

	if len(ce.Reason) > maxCloseReason {
		return nil, fmt.Errorf("reason string max is %v but got %q with length %v", maxCloseReason, ce.Reason, len(ce.Reason))
	}
	if !validWireCloseCode(ce.Code) {
		return nil, fmt.Errorf("status code %v cannot be set", ce.Code)
	}
	err := validateUTF8([]byte(ce.Reason), "close reason")
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 2+len(ce.Reason))
	binary.BigEndian.PutUint16(buf, uint16(ce.Code))
	copy(buf[2:], ce.Reason)
	return buf, nil
}
