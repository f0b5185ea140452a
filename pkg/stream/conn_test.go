package stream

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-distillo/internal/log"
	"github.com/teslashibe/go-distillo/pkg/node"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// collector gathers published values and signals each arrival.
type collector[T any] struct {
	mu  sync.Mutex
	got []T
	ch  chan struct{}
}

func newCollector[T any]() *collector[T] {
	return &collector[T]{ch: make(chan struct{}, 64)}
}

func (c *collector[T]) Receive(v T, _ string) error {
	c.mu.Lock()
	c.got = append(c.got, v)
	c.mu.Unlock()
	c.ch <- struct{}{}
	return nil
}

func (c *collector[T]) wait(t *testing.T, n int) []T {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for value %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.got...)
}

func TestConnPublishesDecodedText(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, Text(), RawBytes(), WithName("stt"), WithLogger(log.Discard()))
	out := newCollector[string]()
	c.Subscribe(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	remote.Write([]byte("one cocktail please"))
	remote.Write([]byte("with rum"))

	got := out.wait(t, 2)
	want := []string{"one cocktail please", "with rum"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("published text (-want +got):\n%s", diff)
	}
}

func TestConnWritesEncoded(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, Bytes(), TextEncoder(), WithName("tts"), WithLogger(log.Discard()))

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := remote.Read(buf)
		done <- buf[:n]
	}()

	if err := c.Receive("Hallo", "dispatcher"); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	select {
	case got := <-done:
		if string(got) != "Hallo" {
			t.Errorf("Expected 'Hallo' on the wire, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestConnLostFiresOnce(t *testing.T) {
	local, remote := net.Pipe()

	c := New(local, Bytes(), RawBytes(), WithName("esp"), WithLogger(log.Discard()))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	remote.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionLost) {
			t.Errorf("Expected ErrConnectionLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after peer closed")
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after connection lost")
	}

	// A second failure must not panic on a double close.
	c.Close()
	if err := c.Receive([]byte{1}, "test"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after loss, got %v", err)
	}
}

func TestConnRunCancel(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, Bytes(), RawBytes(), WithLogger(log.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEmissionTracking(t *testing.T) {
	clock := newFakeClock()
	local, remote := net.Pipe()
	defer remote.Close()

	const rate = 16000
	c := New(local, Bytes(), RawBytes(),
		WithEmission(rate),
		WithClock(clock.Now),
		WithLogger(log.Discard()),
	)

	if c.IsEmitting(0) {
		t.Fatal("Expected not emitting before any output")
	}

	// One second of 16-bit mono audio.
	c.handleChunk(make([]byte, 2*rate))

	tests := []struct {
		name    string
		advance time.Duration
		slack   time.Duration
		want    bool
	}{
		{"during playback", 500 * time.Millisecond, 0, true},
		{"just before end", 499 * time.Millisecond, 0, true},
		{"after end without slack", 2 * time.Millisecond, 0, false},
		{"after end within slack", 0, 500 * time.Millisecond, true},
		{"after slack", 600 * time.Millisecond, 500 * time.Millisecond, false},
	}
	for _, tt := range tests {
		clock.Advance(tt.advance)
		if got := c.IsEmitting(tt.slack); got != tt.want {
			t.Errorf("%s: IsEmitting(%v) = %v, want %v", tt.name, tt.slack, got, tt.want)
		}
	}
}

func TestEmissionAccumulates(t *testing.T) {
	clock := newFakeClock()
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, Bytes(), RawBytes(),
		WithEmission(1000),
		WithClock(clock.Now),
		WithLogger(log.Discard()),
	)

	start := clock.Now()
	// Two back-to-back 100ms chunks queue behind each other.
	c.handleChunk(make([]byte, 200))
	c.handleChunk(make([]byte, 200))

	if want := start.Add(200 * time.Millisecond); !emissionEnd(c).Equal(want) {
		t.Errorf("emission end = %v, want %v", emissionEnd(c), want)
	}

	// A chunk after playback drained starts from now.
	clock.Advance(time.Second)
	c.handleChunk(make([]byte, 200))
	if want := start.Add(1100 * time.Millisecond); !emissionEnd(c).Equal(want) {
		t.Errorf("emission end after gap = %v, want %v", emissionEnd(c), want)
	}
}

func emissionEnd[In, Out any](c *Conn[In, Out]) time.Time {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	return c.emissionEnd
}

func TestMuteSuppressesPublish(t *testing.T) {
	clock := newFakeClock()
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, Bytes(), RawBytes(),
		WithEmission(1000),
		WithClock(clock.Now),
		WithLogger(log.Discard()),
	)

	var got [][]byte
	c.Subscribe(node.ReceiverFunc[[]byte](func(v []byte, _ string) error {
		got = append(got, v)
		return nil
	}))

	c.SetMuted(true)
	c.handleChunk([]byte{1, 2})
	if len(got) != 0 {
		t.Fatalf("Expected no publish while muted, got %d", len(got))
	}
	if c.IsEmitting(0) {
		t.Error("Muted output must not count as emitting")
	}

	c.SetMuted(false)
	c.handleChunk([]byte{3, 4})
	if len(got) != 1 {
		t.Fatalf("Expected 1 publish after unmute, got %d", len(got))
	}
	if c.Muted() {
		t.Error("Expected Muted() false after unmute")
	}
}

func TestDialLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ctx := context.Background()
	c, err := Dial(ctx, ln.Addr().String(), Text(), TextEncoder(), WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	server := <-accepted
	defer server.Close()

	out := newCollector[string]()
	c.Subscribe(out)
	go c.Run(ctx)

	server.Write([]byte("ready"))
	if got := out.wait(t, 1); got[0] != "ready" {
		t.Errorf("Expected 'ready', got %q", got[0])
	}
}
