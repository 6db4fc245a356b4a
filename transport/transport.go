// Package transport defines the byte-oriented link abstraction the
// transfer state machines send and receive through. Implementations
// own all link-layer framing and addressing; the bodies they carry are
// opaque to them.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransport is the root of all link I/O failures. It is fatal
	// for the operation that encounters it.
	ErrTransport = errors.New("transport error")

	// ErrSessionClosed is returned by Send and Receive after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Datagram is one received link payload together with the address of
// the node that sent it.
type Datagram struct {
	Source  uint16
	Payload []byte
}

// Session is one open link. It is owned by exactly one transfer at a
// time and must be closed on every exit path.
type Session interface {
	// Send transmits payload to the node addressed by dest.
	Send(dest uint16, payload []byte) error

	// Receive blocks for up to timeout waiting for the next inbound
	// payload. It returns (nil, nil) when the timeout elapses without
	// traffic and a non-nil error only on link failure, context
	// cancellation or a closed session.
	Receive(ctx context.Context, timeout time.Duration) (*Datagram, error)

	// Close releases the underlying link resources. Idempotent.
	Close() error
}
