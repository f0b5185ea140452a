// Package node provides the publish/subscribe graph that connects the robot's
// audio, text and control streams.
//
// A node receives values of one type from upstream publishers and publishes
// values of another type to its subscribers. Delivery is synchronous and in
// subscription order. A failing subscriber never prevents delivery to the
// others.
//
//	gain := pcm.NewGain("mic-gain", 2.0, logger)
//	mic.Subscribe(gain)
//	gain.Subscribe(stt)
package node

import (
	"fmt"
	"log/slog"
	"sync"
)

// Receiver accepts values published by an upstream node.
// from is the name of the publishing node.
type Receiver[T any] interface {
	Receive(v T, from string) error
}

// ReceiverFunc adapts a plain function to a Receiver.
type ReceiverFunc[T any] func(v T, from string) error

// Receive calls f.
func (f ReceiverFunc[T]) Receive(v T, from string) error {
	return f(v, from)
}

// Publisher is the subscription side of a node.
type Publisher[T any] interface {
	Subscribe(r Receiver[T])
}

// Broadcaster holds an ordered subscriber list and publishes to it.
// Nodes embed it to gain Subscribe and Publish.
type Broadcaster[T any] struct {
	name   string
	logger *slog.Logger

	mu   sync.RWMutex
	subs []Receiver[T]
}

// NewBroadcaster creates a broadcaster identified by name.
func NewBroadcaster[T any](name string, logger *slog.Logger) *Broadcaster[T] {
	b := &Broadcaster[T]{}
	b.Init(name, logger)
	return b
}

// Init sets the name and logger of an embedded broadcaster.
func (b *Broadcaster[T]) Init(name string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	b.name = name
	b.logger = logger.With("node", name)
}

// Name returns the node name passed to subscribers as the sender.
func (b *Broadcaster[T]) Name() string {
	return b.name
}

// Subscribe appends r to the subscriber list.
func (b *Broadcaster[T]) Subscribe(r Receiver[T]) {
	b.mu.Lock()
	b.subs = append(b.subs, r)
	b.mu.Unlock()
}

// SubscriberCount returns the number of subscribers.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers v to every subscriber present when the call starts.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	// Subscribe only appends, so the captured slice header stays valid.
	for i, r := range subs {
		if err := b.deliver(r, v); err != nil {
			b.logger.Warn("subscriber failed",
				"subscriber", i,
				"error", err,
			)
		}
	}
}

func (b *Broadcaster[T]) deliver(r Receiver[T], v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrSubscriberPanic, p)
		}
	}()
	return r.Receive(v, b.name)
}
