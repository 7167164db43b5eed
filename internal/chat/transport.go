package chat

import (
	"context"
	"net/http"
)

// Close codes understood by the connection manager.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseAbnormal        = 1006
	ClosePolicyViolation = 1008
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
)

// IsAuthClose reports whether a close code means the server rejected the
// viewer's credentials. Such closes are terminal.
func IsAuthClose(code int) bool {
	switch code {
	case ClosePolicyViolation, CloseUnauthorized, CloseForbidden:
		return true
	}
	return false
}

// Listener receives connection lifecycle callbacks. Implementations of
// Transport may invoke it from any goroutine. OnError is always followed by
// OnClose, and OnClose is delivered exactly once per connection.
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// Conn is one persistent, message-oriented connection.
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Transport opens connections. Open must not block on the network: the
// outcome of the dial is reported through the Listener.
type Transport interface {
	Open(ctx context.Context, endpoint string, header http.Header, l Listener) (Conn, error)
}
