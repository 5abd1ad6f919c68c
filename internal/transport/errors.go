package transport

import "errors"

// ErrClosed is returned by Receiver.Run when Close was called on the
// receiver while a read was in flight.
var ErrClosed = errors.New("transport: receiver closed")

// ErrBindFailed wraps a failed socket bind/resolve in Run, so callers
// can use errors.Is to tell a bind failure apart from a context
// cancellation, which Run also returns as an error.
var ErrBindFailed = errors.New("transport: bind failed")
