package conn

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send while the socket is not open.
var ErrNotConnected = errors.New("not connected")

// TransportError is a socket-level failure. It drives the reconnect machinery
// and is never surfaced to the user as-is.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
