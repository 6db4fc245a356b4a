// Package sx126x drives a serial-attached SX126x LoRa module as a
// transport.Session. The module itself performs address filtering and
// channel access; this package only frames bodies with the addressing
// header the module expects and reassembles inbound bursts from the
// serial byte stream.
package sx126x

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/loradrop/loradrop/transport"
)

const (
	// maxFrameSize is the module's per-transmission buffer limit.
	maxFrameSize = 241

	// readTimeout paces the blocking serial reads. A full read gap of
	// this length also marks the end of an inbound burst.
	readTimeout = 100 * time.Millisecond
)

// Config selects the serial port and the link parameters of this node.
type Config struct {
	// Port is the serial device, e.g. /dev/ttyS0.
	Port string

	// Baud is the UART rate of the module. Defaults to 9600.
	Baud int

	// Address is this node's 16-bit link address.
	Address uint16

	// Channel is the module's channel/frequency offset byte. It is
	// copied into the addressing header verbatim.
	Channel byte
}

// Session is an open serial link to the module. It implements
// transport.Session.
type Session struct {
	cfg  Config
	port serial.Port

	mu sync.Mutex // serializes writes

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

var _ transport.Session = (*Session)(nil)

// Open configures the serial port and returns a ready Session.
func Open(cfg Config) (*Session, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", transport.ErrTransport, cfg.Port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set read timeout: %w", transport.ErrTransport, err)
	}

	return &Session{
		cfg:    cfg,
		port:   port,
		closed: make(chan struct{}),
	}, nil
}

func (s *Session) Send(dest uint16, payload []byte) error {
	if s.isClosed() {
		return fmt.Errorf("%w: %w", transport.ErrTransport, transport.ErrSessionClosed)
	}
	if headerSize+len(payload) > maxFrameSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds module buffer", transport.ErrTransport, len(payload))
	}

	frame := appendHeader(make([]byte, 0, headerSize+len(payload)), dest, s.cfg.Address, s.cfg.Channel)
	frame = append(frame, payload...)

	s.mu.Lock()
	defer s.mu.Unlock()
	for sent := 0; sent < len(frame); {
		n, err := s.port.Write(frame[sent:])
		if err != nil {
			return fmt.Errorf("%w: serial write: %w", transport.ErrTransport, err)
		}
		sent += n
	}
	return nil
}

// Receive collects one inbound burst. The module delivers a whole
// packet back-to-back on the UART, so a read gap of readTimeout after
// the first bytes marks the frame boundary.
func (s *Session) Receive(ctx context.Context, timeout time.Duration) (*transport.Datagram, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, maxFrameSize)
	var frame []byte

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.isClosed() {
			return nil, fmt.Errorf("%w: %w", transport.ErrTransport, transport.ErrSessionClosed)
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: serial read: %w", transport.ErrTransport, err)
		}

		if n > 0 {
			frame = append(frame, buf[:n]...)
			if len(frame) >= maxFrameSize {
				return s.finishFrame(frame)
			}
			continue
		}

		// n == 0: the port's read timeout elapsed.
		if len(frame) > 0 {
			return s.finishFrame(frame)
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
	}
}

func (s *Session) finishFrame(frame []byte) (*transport.Datagram, error) {
	dest, src, body, err := parseFrame(frame)
	if err != nil {
		// Garbage on the UART, not a link failure.
		return nil, nil
	}
	if dest != s.cfg.Address {
		return nil, nil
	}
	return &transport.Datagram{Source: src, Payload: body}, nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
