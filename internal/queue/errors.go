package queue

import "errors"

// ErrClosed is returned by ReceiveContext once the buffer is closed and empty.
var ErrClosed = errors.New("buffer closed")
