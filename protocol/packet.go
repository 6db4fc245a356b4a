package protocol

import (
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Packet is one decoded protocol body. Addressing (destination, source
// and the link offset byte) is added and stripped by the transport and
// never reaches this package.
type Packet interface {
	Kind() PacketKind
	File() FileID
	Encode() []byte
}

// NewFileID draws a random file identifier from the valid range.
func NewFileID() FileID {
	span := int(MaxFileID) - int(MinFileID) + 1
	return MinFileID + FileID(rand.Intn(span))
}

// Data carries one verified-by-checksum chunk of the file.
type Data struct {
	FileID   FileID
	Seq      Seq
	Checksum byte
	Payload  []byte
}

// NewData builds a DATA packet for the given chunk, computing its
// checksum. Fails if the payload cannot fit a single body.
func NewData(id FileID, seq Seq, payload []byte) (Data, error) {
	if len(payload) > MaxChunkSize {
		return Data{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxChunkSize)
	}
	return Data{
		FileID:   id,
		Seq:      seq,
		Checksum: Checksum(payload),
		Payload:  payload,
	}, nil
}

func (d Data) Kind() PacketKind { return KindData }
func (d Data) File() FileID     { return d.FileID }

func (d Data) Encode() []byte {
	body := make([]byte, dataHeaderSize+len(d.Payload))
	body[0] = byte(KindData)
	binary.BigEndian.PutUint16(body[1:3], uint16(d.FileID))
	binary.BigEndian.PutUint16(body[3:5], uint16(d.Seq))
	body[5] = d.Checksum
	copy(body[dataHeaderSize:], d.Payload)
	return body
}

// End marks the end of a burst and tells the receiver how many chunks
// the transfer consists of.
type End struct {
	FileID      FileID
	TotalChunks uint16
}

func (e End) Kind() PacketKind { return KindEnd }
func (e End) File() FileID     { return e.FileID }

func (e End) Encode() []byte {
	body := make([]byte, endBodySize)
	body[0] = byte(KindEnd)
	binary.BigEndian.PutUint16(body[1:3], uint16(e.FileID))
	binary.BigEndian.PutUint16(body[3:5], e.TotalChunks)
	return body
}

// Nack lists the sequence numbers the receiver is still missing, in
// ascending order. An empty list reports a complete transfer.
type Nack struct {
	FileID  FileID
	Missing []Seq
}

func (n Nack) Kind() PacketKind { return KindNack }
func (n Nack) File() FileID     { return n.FileID }

// Encode truncates the missing list to MaxNackSeqs. Truncation keeps
// the lowest sequence numbers; later rounds surface the rest.
func (n Nack) Encode() []byte {
	missing := n.Missing
	if len(missing) > MaxNackSeqs {
		missing = missing[:MaxNackSeqs]
	}
	body := make([]byte, nackHeaderSize+2*len(missing))
	body[0] = byte(KindNack)
	binary.BigEndian.PutUint16(body[1:3], uint16(n.FileID))
	binary.BigEndian.PutUint16(body[3:5], uint16(len(missing)))
	for i, seq := range missing {
		binary.BigEndian.PutUint16(body[nackHeaderSize+2*i:], uint16(seq))
	}
	return body
}

// Ack acknowledges a NACK list (sender side) or reports a completed
// transfer (receiver side).
type Ack struct {
	FileID FileID
}

func (a Ack) Kind() PacketKind { return KindAck }
func (a Ack) File() FileID     { return a.FileID }

func (a Ack) Encode() []byte {
	body := make([]byte, ackBodySize)
	body[0] = byte(KindAck)
	binary.BigEndian.PutUint16(body[1:3], uint16(a.FileID))
	return body
}

// DecodePacket parses one packet body. It fails with a wrapped
// ErrMalformedPacket for unknown tags, truncated fixed fields and NACK
// bodies whose declared count disagrees with the remaining length.
func DecodePacket(body []byte) (Packet, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPacket)
	}

	kind := PacketKind(body[0])
	switch kind {
	case KindData:
		if len(body) < dataHeaderSize {
			return nil, fmt.Errorf("%w: data body too short: %d", ErrMalformedPacket, len(body))
		}
		payload := make([]byte, len(body)-dataHeaderSize)
		copy(payload, body[dataHeaderSize:])
		return Data{
			FileID:   FileID(binary.BigEndian.Uint16(body[1:3])),
			Seq:      Seq(binary.BigEndian.Uint16(body[3:5])),
			Checksum: body[5],
			Payload:  payload,
		}, nil
	case KindEnd:
		if len(body) < endBodySize {
			return nil, fmt.Errorf("%w: end body too short: %d", ErrMalformedPacket, len(body))
		}
		return End{
			FileID:      FileID(binary.BigEndian.Uint16(body[1:3])),
			TotalChunks: binary.BigEndian.Uint16(body[3:5]),
		}, nil
	case KindNack:
		if len(body) < nackHeaderSize {
			return nil, fmt.Errorf("%w: nack body too short: %d", ErrMalformedPacket, len(body))
		}
		count := int(binary.BigEndian.Uint16(body[3:5]))
		rest := body[nackHeaderSize:]
		if len(rest) != 2*count {
			return nil, fmt.Errorf("%w: nack declares %d seqs, body carries %d bytes", ErrMalformedPacket, count, len(rest))
		}
		missing := make([]Seq, count)
		for i := range missing {
			missing[i] = Seq(binary.BigEndian.Uint16(rest[2*i:]))
		}
		return Nack{
			FileID:  FileID(binary.BigEndian.Uint16(body[1:3])),
			Missing: missing,
		}, nil
	case KindAck:
		if len(body) < ackBodySize {
			return nil, fmt.Errorf("%w: ack body too short: %d", ErrMalformedPacket, len(body))
		}
		return Ack{
			FileID: FileID(binary.BigEndian.Uint16(body[1:3])),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind 0x%02X", ErrMalformedPacket, body[0])
	}
}
