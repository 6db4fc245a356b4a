package transfer

import (
	"fmt"
	"time"

	"github.com/loradrop/loradrop/protocol"
)

// Config carries the protocol knobs shared by sender and receiver.
// The defaults match a 433 MHz SX126x link at 24 kbps air speed.
type Config struct {
	// ChunkSize is the file payload carried per DATA packet.
	ChunkSize int

	// PacingDelay separates consecutive DATA packets during a burst.
	// It is pure rate limiting so the receiver's intake buffer is not
	// overrun; it is not an acknowledgment wait.
	PacingDelay time.Duration

	// NackTimeout is how long the sender waits for a NACK or ACK
	// after sending END.
	NackTimeout time.Duration

	// MaxRetryRounds caps the sender's retransmit rounds.
	MaxRetryRounds int

	// RecvTimeout is the receiver-side silence interval after which a
	// transfer with no END packet is finalized anyway.
	RecvTimeout time.Duration

	// NackAckTimeout is how long the receiver waits for the sender to
	// react to a NACK before resending it.
	NackAckTimeout time.Duration

	// MaxNackRetries caps the receiver's NACK resends.
	MaxNackRetries int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      protocol.DefaultChunkSize,
		PacingDelay:    50 * time.Millisecond,
		NackTimeout:    10 * time.Second,
		MaxRetryRounds: 3,
		RecvTimeout:    5 * time.Second,
		NackAckTimeout: 3 * time.Second,
		MaxNackRetries: 3,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > protocol.MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d not in (0, %d]", ErrInvalidConfig, c.ChunkSize, protocol.MaxChunkSize)
	}
	if c.PacingDelay < 0 {
		return fmt.Errorf("%w: negative pacing delay", ErrInvalidConfig)
	}
	if c.NackTimeout <= 0 {
		return fmt.Errorf("%w: nack timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetryRounds <= 0 {
		return fmt.Errorf("%w: max retry rounds must be positive", ErrInvalidConfig)
	}
	if c.RecvTimeout <= 0 {
		return fmt.Errorf("%w: recv timeout must be positive", ErrInvalidConfig)
	}
	if c.NackAckTimeout <= 0 {
		return fmt.Errorf("%w: nack ack timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxNackRetries <= 0 {
		return fmt.Errorf("%w: max nack retries must be positive", ErrInvalidConfig)
	}
	return nil
}
