package node

import "log/slog"

// Func is a stateless node applying fn to every received value.
// A false second result drops the value.
type Func[In, Out any] struct {
	Broadcaster[Out]
	fn func(In) (Out, bool)
}

// NewFunc creates a transform node.
func NewFunc[In, Out any](name string, fn func(In) (Out, bool), logger *slog.Logger) *Func[In, Out] {
	n := &Func[In, Out]{fn: fn}
	n.Init(name, logger)
	return n
}

// Receive transforms v and publishes the result.
func (n *Func[In, Out]) Receive(v In, _ string) error {
	out, ok := n.fn(v)
	if ok {
		n.Publish(out)
	}
	return nil
}

// Debug is a terminal node that logs every value it receives.
type Debug[T any] struct {
	logger *slog.Logger
	format func(T) any
}

// NewDebug creates a logging sink. format may be nil to log values as is.
func NewDebug[T any](name string, format func(T) any, logger *slog.Logger) *Debug[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debug[T]{
		logger: logger.With("node", name),
		format: format,
	}
}

// Receive logs v at debug level.
func (d *Debug[T]) Receive(v T, from string) error {
	var out any = v
	if d.format != nil {
		out = d.format(v)
	}
	d.logger.Debug("received", "from", from, "value", out)
	return nil
}

var (
	_ Receiver[int] = (*Func[int, int])(nil)
	_ Publisher[int] = (*Func[int, int])(nil)
	_ Receiver[int] = (*Debug[int])(nil)
)
