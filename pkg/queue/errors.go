package queue

import "errors"

// ErrNilResult indicates a nil result payload was provided to a publisher.
var ErrNilResult = errors.New("nil result message")

// ErrClosed indicates the consumer or publisher has been closed.
var ErrClosed = errors.New("queue closed")
