package plugin

import (
	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/danmuck/tilepad-sdk/internal/protocol/session"
)

// Call and connection failures; match with errors.Is.
var (
	ErrTimeout         = session.ErrTimeout
	ErrConnectionLost  = session.ErrConnectionLost
	ErrClosed          = session.ErrClosed
	ErrRemote          = session.ErrRemote
	ErrHandshakeFailed = session.ErrHandshakeFailed
	ErrMalformedFrame  = envelope.ErrMalformedFrame
)

// RemoteError carries the host's code and message; match with errors.As.
type RemoteError = session.RemoteError
