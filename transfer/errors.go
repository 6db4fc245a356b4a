package transfer

import "errors"

var (
	// ErrInvalidConfig is returned before any packet is sent when a
	// Config field is out of range.
	ErrInvalidConfig = errors.New("invalid transfer config")

	// ErrFileTooLarge is returned when the file needs more chunks than
	// a 16-bit sequence number can address.
	ErrFileTooLarge = errors.New("file too large for sequence space")

	// ErrMaxRetries is the sender's terminal failure after exhausting
	// every retry round with chunks still unacknowledged.
	ErrMaxRetries = errors.New("max retry rounds exceeded")

	// ErrIncomplete is returned by Reassemble while sequence gaps
	// remain.
	ErrIncomplete = errors.New("chunk set incomplete")
)
