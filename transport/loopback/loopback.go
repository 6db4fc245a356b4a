// Package loopback provides an in-memory Session pair for tests and
// simulations. Loss and corruption are injectable per direction, which
// makes every retry path of the transfer protocol reproducible without
// radio hardware.
package loopback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loradrop/loradrop/transport"
)

// queueSize bounds the in-flight datagrams per direction. It has to
// hold at least one full bulk-send burst because the sender does not
// wait for the receiver to drain between chunks.
const queueSize = 4096

// Endpoint is one side of an in-memory link. It implements
// transport.Session.
type Endpoint struct {
	addr uint16
	peer *Endpoint

	inbox chan transport.Datagram

	mu        sync.Mutex
	sendCount int
	dropFunc  func(n int, payload []byte) bool
	corrupt   func(n int, payload []byte) []byte

	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Session = (*Endpoint)(nil)

// NewPair links two endpoints so that everything one sends to the
// other's address arrives in the other's inbox.
func NewPair(addrA, addrB uint16) (*Endpoint, *Endpoint) {
	a := &Endpoint{
		addr:   addrA,
		inbox:  make(chan transport.Datagram, queueSize),
		closed: make(chan struct{}),
	}
	b := &Endpoint{
		addr:   addrB,
		inbox:  make(chan transport.Datagram, queueSize),
		closed: make(chan struct{}),
	}
	a.peer, b.peer = b, a
	return a, b
}

// SetDropFunc installs a loss hook for this endpoint's sends. The hook
// sees the 0-based send count and the payload; returning true drops
// the datagram on the floor, like the air would.
func (e *Endpoint) SetDropFunc(f func(n int, payload []byte) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropFunc = f
}

// SetCorruptFunc installs a corruption hook for this endpoint's sends.
// The returned slice replaces the payload on the wire.
func (e *Endpoint) SetCorruptFunc(f func(n int, payload []byte) []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.corrupt = f
}

func (e *Endpoint) Send(dest uint16, payload []byte) error {
	select {
	case <-e.closed:
		return fmt.Errorf("%w: %w", transport.ErrTransport, transport.ErrSessionClosed)
	default:
	}

	e.mu.Lock()
	n := e.sendCount
	e.sendCount++
	drop := e.dropFunc != nil && e.dropFunc(n, payload)
	corrupt := e.corrupt
	e.mu.Unlock()

	// Datagrams for other addresses never reach the peer. The radio
	// hardware performs this filtering on a real link.
	if drop || dest != e.peer.addr {
		return nil
	}

	body := make([]byte, len(payload))
	copy(body, payload)
	if corrupt != nil {
		body = corrupt(n, body)
	}

	select {
	case e.peer.inbox <- transport.Datagram{Source: e.addr, Payload: body}:
		return nil
	case <-e.peer.closed:
		return nil
	default:
		return fmt.Errorf("%w: loopback queue full", transport.ErrTransport)
	}
}

func (e *Endpoint) Receive(ctx context.Context, timeout time.Duration) (*transport.Datagram, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-e.inbox:
		return &d, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closed:
		return nil, fmt.Errorf("%w: %w", transport.ErrTransport, transport.ErrSessionClosed)
	}
}

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}
