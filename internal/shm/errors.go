package shm

import "errors"

// ErrDropped is returned by Writer.Publish when PolicyDrop is configured
// and the payload exceeded slot capacity. write_cursor is not advanced.
var ErrDropped = errors.New("shm: payload dropped (exceeds slot capacity)")
