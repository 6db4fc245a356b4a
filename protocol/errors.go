package protocol

import "errors"

var (
	// ErrMalformedPacket is returned by DecodePacket for bodies that do
	// not parse. Callers drop such packets and keep going.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrPayloadTooLarge is returned when a chunk payload does not fit
	// a single DATA body.
	ErrPayloadTooLarge = errors.New("payload exceeds max chunk size")
)
