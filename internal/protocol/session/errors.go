package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
)

var (
	ErrHandshakeFailed = errors.New("session: handshake failed")
	ErrConnectionLost  = errors.New("session: connection lost")
	ErrTimeout         = errors.New("session: call timed out")
	ErrClosed          = errors.New("session: closed")
	ErrRemote          = errors.New("session: remote error")
	ErrInvalidTarget   = errors.New("session: invalid target url")
)

// RemoteError is a host-reported failure for one call.
type RemoteError struct {
	Method  string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("session: remote error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("session: remote error %d on %s: %s", e.Code, e.Method, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

func remoteErrorFrom(method string, body *envelope.ErrorBody) *RemoteError {
	if body == nil {
		return &RemoteError{Method: method, Message: "missing error body"}
	}
	return &RemoteError{Method: method, Code: body.Code, Message: body.Message}
}
