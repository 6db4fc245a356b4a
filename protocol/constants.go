package protocol

const (
	// KindData carries one chunk of file payload.
	KindData PacketKind = 0x01

	// KindEnd marks the end of a bulk-send or retransmit burst and
	// carries the total chunk count of the transfer.
	KindEnd PacketKind = 0xFF

	// KindNack is sent by the receiver and lists the sequence numbers
	// it is still missing. An empty list signals a complete transfer.
	KindNack PacketKind = 0xDD

	// KindAck acknowledges either a received NACK list (sender side)
	// or a completed transfer (receiver side).
	KindAck PacketKind = 0xAA
)

// PacketKind is the one-byte tag that leads every packet body.
type PacketKind byte

const (
	// MaxBodySize is the biggest packet body the link accepts.
	// The SX126x module buffers at most 241 bytes per send, of which
	// 6 are consumed by the addressing header the transport prepends.
	MaxBodySize = 235

	kindSize   = 1
	fileIDSize = 2
	seqSize    = 2

	dataHeaderSize = kindSize + fileIDSize + seqSize + 1 // + checksum byte
	endBodySize    = kindSize + fileIDSize + 2           // + totalChunks
	nackHeaderSize = kindSize + fileIDSize + 2           // + missingCount
	ackBodySize    = kindSize + fileIDSize + 2           // + reserved

	// MaxChunkSize is the biggest chunk payload that still fits a
	// DATA body.
	MaxChunkSize = MaxBodySize - dataHeaderSize

	// DefaultChunkSize is the chunk payload size used when the caller
	// does not pick one.
	DefaultChunkSize = 200

	// MaxNackSeqs bounds the number of sequence numbers a single NACK
	// body can list. A longer missing set is truncated and surfaced
	// over subsequent rounds.
	MaxNackSeqs = (MaxBodySize - nackHeaderSize) / 2
)

const (
	// MinFileID and MaxFileID bound the valid file identifier range.
	// Values outside it are reserved so that a file id can never be
	// mistaken for a packet kind tag echoed into the id field.
	MinFileID FileID = 0x0100
	MaxFileID FileID = 0xFFFE
)

// FileID distinguishes the packets of one transfer from those of
// successive or accidentally overlapping transfers.
type FileID uint16

// Seq is a chunk sequence number within one transfer.
type Seq uint16
