package transfer

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type options struct {
	logger *zap.Logger
	clock  clockwork.Clock
	hook   func(ReceiveResult)
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
}

// Option customizes a Sender or Receiver at construction time.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock used for pacing and timeout arithmetic.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithCompletionHook registers a callback the Receiver invokes exactly
// once per successfully completed transfer, after the buffer has been
// reassembled. Senders ignore it.
func WithCompletionHook(hook func(ReceiveResult)) Option {
	return func(o *options) {
		o.hook = hook
	}
}
