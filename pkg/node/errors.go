package node

import "errors"

// ErrSubscriberPanic wraps a panic raised inside a subscriber's Receive.
var ErrSubscriberPanic = errors.New("node: subscriber panicked")
