package gateway

import (
	"errors"
	"fmt"
)

// ConnectReason classifies why a handshake failed.
type ConnectReason string

const (
	ReasonHandshakeTimeout ConnectReason = "handshake_timeout" // A handshake step did not complete in time.
	ReasonTransportError   ConnectReason = "transport_error"   // Socket-level failure during the handshake.
	ReasonAuthRejected     ConnectReason = "auth_rejected"     // The server refused the credentials.
)

// ConnectError is returned by Connect when the handshake does not reach
// Ready. The caller must not retry internally — reconnect policy belongs
// to the supervising layer.
type ConnectError struct {
	Reason ConnectReason
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect failed: %s", e.Reason)
	}
	return fmt.Sprintf("connect failed (%s): %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ErrAlreadyConnected is returned by Connect on a connection that is not
// in the Disconnected state.
var ErrAlreadyConnected = errors.New("connection already established")

// ErrConnReused is returned by Connect on a Conn whose session already
// ended. A Conn is single-session; the supervising runner builds a
// fresh one per attempt.
var ErrConnReused = errors.New("connection cannot be reused after teardown")

// ErrSessionInvalidated reports a server-issued InvalidSession. Terminal
// for the session: the core never resumes or re-identifies on its own.
var ErrSessionInvalidated = errors.New("session invalidated by server")
