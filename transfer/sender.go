package transfer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/loradrop/loradrop/protocol"
	"github.com/loradrop/loradrop/transport"
)

// SendResult reports how a send attempt ended.
type SendResult struct {
	FileID      protocol.FileID
	TotalChunks int

	// Rounds is the number of retransmit rounds that were needed.
	Rounds int

	// Residual is the number of chunks still unacknowledged when the
	// retry budget ran out. Zero on success.
	Residual int
}

// Sender drives one file through the bulk-send/selective-retry cycle.
// It owns its Session for the duration of Send and is not safe for
// concurrent use.
type Sender struct {
	sess  transport.Session
	dest  uint16
	cfg   Config
	opts  options
	state SenderState
}

// NewSender builds a sender that transmits to the node addressed by
// dest over sess. The caller keeps ownership of sess and closes it.
func NewSender(sess transport.Session, dest uint16, cfg Config, opts ...Option) *Sender {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Sender{
		sess: sess,
		dest: dest,
		cfg:  cfg,
		opts: o,
	}
}

// State returns the sender's current protocol state.
func (s *Sender) State() SenderState { return s.state }

// Send transmits data as one transfer and blocks until the receiver
// acknowledged every chunk, the retry budget ran out (ErrMaxRetries,
// with SendResult.Residual set) or the link failed. Bulk transmission
// never waits for per-chunk acknowledgments; reliability comes from
// the NACK rounds that follow the END packet.
func (s *Sender) Send(ctx context.Context, data []byte) (SendResult, error) {
	if err := s.cfg.Validate(); err != nil {
		return SendResult{}, err
	}

	s.setState(SenderInit)
	chunks := split(data, s.cfg.ChunkSize)
	if len(chunks) > math.MaxUint16 {
		return SendResult{}, fmt.Errorf("%w: %d bytes need %d chunks", ErrFileTooLarge, len(data), len(chunks))
	}

	id := protocol.NewFileID()
	result := SendResult{FileID: id, TotalChunks: len(chunks)}
	log := s.opts.logger.With(zap.Uint16("file_id", uint16(id)))
	log.Info("starting transfer",
		zap.Int("size", len(data)),
		zap.Int("total_chunks", len(chunks)),
		zap.Int("chunk_size", s.cfg.ChunkSize),
	)

	s.setState(SenderBulkSend)
	allSeqs := make([]protocol.Seq, len(chunks))
	for i := range chunks {
		allSeqs[i] = protocol.Seq(i)
	}
	if err := s.sendChunks(ctx, id, chunks, allSeqs, log); err != nil {
		s.setState(SenderFailed)
		return result, err
	}
	if err := s.sendEnd(id, len(chunks)); err != nil {
		s.setState(SenderFailed)
		return result, err
	}

	// Until the first complete NACK arrives, every chunk counts as
	// unacknowledged.
	unacked := make(map[protocol.Seq]struct{}, len(chunks))
	for _, seq := range allSeqs {
		unacked[seq] = struct{}{}
	}

	for round := 1; round <= s.cfg.MaxRetryRounds; round++ {
		s.setState(SenderAwaitFeedback)
		fb, err := s.awaitFeedback(ctx, id, log)
		if err != nil {
			s.setState(SenderFailed)
			return result, err
		}
		if fb == nil {
			// Silence can mean the END packet itself was lost.
			log.Info("no feedback, resending end packet", zap.Int("round", round))
			if err := s.sendEnd(id, len(chunks)); err != nil {
				s.setState(SenderFailed)
				return result, err
			}
			fb, err = s.awaitFeedback(ctx, id, log)
			if err != nil {
				s.setState(SenderFailed)
				return result, err
			}
		}

		var resend []protocol.Seq
		switch pkt := fb.(type) {
		case nil:
			// Lost round: resend everything not yet reported received.
			resend = sortedSeqs(unacked)
			log.Warn("round lost to silence",
				zap.Int("round", round),
				zap.Int("resend", len(resend)),
			)
		case protocol.Ack:
			s.setState(SenderDone)
			log.Info("transfer complete", zap.Int("rounds", result.Rounds))
			return result, nil
		case protocol.Nack:
			if len(pkt.Missing) == 0 {
				s.setState(SenderDone)
				log.Info("transfer complete", zap.Int("rounds", result.Rounds))
				return result, nil
			}
			unacked = applyNack(unacked, pkt.Missing)
			resend = pkt.Missing
			// Acknowledge the NACK list so the receiver stops
			// resending it.
			if err := s.sendPacket(protocol.Ack{FileID: id}); err != nil {
				s.setState(SenderFailed)
				return result, err
			}
			log.Info("received nack list",
				zap.Int("round", round),
				zap.Int("missing", len(pkt.Missing)),
			)
		}

		s.setState(SenderRetransmit)
		result.Rounds = round
		valid := resend[:0:0]
		for _, seq := range resend {
			if int(seq) < len(chunks) {
				valid = append(valid, seq)
			} else {
				log.Warn("nack lists unknown chunk", zap.Uint16("seq", uint16(seq)))
			}
		}
		if err := s.sendChunks(ctx, id, chunks, valid, log); err != nil {
			s.setState(SenderFailed)
			return result, err
		}
		if err := s.sendEnd(id, len(chunks)); err != nil {
			s.setState(SenderFailed)
			return result, err
		}
	}

	s.setState(SenderFailed)
	result.Residual = len(unacked)
	log.Error("transfer failed",
		zap.Int("rounds", s.cfg.MaxRetryRounds),
		zap.Int("residual", result.Residual),
	)
	return result, fmt.Errorf("%w: %d chunks unacknowledged after %d rounds", ErrMaxRetries, result.Residual, s.cfg.MaxRetryRounds)
}

// sendChunks transmits the chunks picked out by seqs in ascending
// order, separated by the pacing delay.
func (s *Sender) sendChunks(ctx context.Context, id protocol.FileID, chunks [][]byte, seqs []protocol.Seq, log *zap.Logger) error {
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := protocol.NewData(id, seq, chunks[seq])
		if err != nil {
			return err
		}
		if err := s.sendPacket(pkt); err != nil {
			return err
		}
		log.Debug("sent chunk", zap.Uint16("seq", uint16(seq)), zap.Int("size", len(chunks[seq])))
		if err := s.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendEnd(id protocol.FileID, total int) error {
	return s.sendPacket(protocol.End{FileID: id, TotalChunks: uint16(total)})
}

func (s *Sender) sendPacket(pkt protocol.Packet) error {
	return s.sess.Send(s.dest, pkt.Encode())
}

// awaitFeedback waits up to NackTimeout for a NACK or ACK bearing the
// transfer's file id. It returns (nil, nil) on timeout; anything else
// on the air is dropped.
func (s *Sender) awaitFeedback(ctx context.Context, id protocol.FileID, log *zap.Logger) (protocol.Packet, error) {
	deadline := s.opts.clock.Now().Add(s.cfg.NackTimeout)
	for {
		remaining := deadline.Sub(s.opts.clock.Now())
		if remaining <= 0 {
			return nil, nil
		}

		d, err := s.sess.Receive(ctx, remaining)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, nil
		}

		pkt, err := protocol.DecodePacket(d.Payload)
		if err != nil {
			log.Debug("dropping malformed packet", zap.Error(err))
			continue
		}
		if pkt.File() != id {
			log.Debug("dropping packet for other transfer", zap.Uint16("their_id", uint16(pkt.File())))
			continue
		}

		switch pkt.(type) {
		case protocol.Ack, protocol.Nack:
			return pkt, nil
		}
		// DATA or END bearing our id is not feedback; keep waiting.
	}
}

func (s *Sender) pace(ctx context.Context) error {
	if s.cfg.PacingDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.opts.clock.After(s.cfg.PacingDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sender) setState(state SenderState) {
	if s.state == state {
		return
	}
	s.opts.logger.Debug("sender state change",
		zap.Stringer("from", s.state),
		zap.Stringer("to", state),
	)
	s.state = state
}

// applyNack narrows the unacked set with a fresh missing list. A list
// shorter than the NACK capacity is a complete report. A full-length
// list may be truncated, so absence from it proves receipt only for
// seqs at or below its highest entry.
func applyNack(unacked map[protocol.Seq]struct{}, missing []protocol.Seq) map[protocol.Seq]struct{} {
	next := make(map[protocol.Seq]struct{}, len(missing))
	for _, seq := range missing {
		next[seq] = struct{}{}
	}
	if len(missing) >= protocol.MaxNackSeqs {
		var hi protocol.Seq
		for _, seq := range missing {
			if seq > hi {
				hi = seq
			}
		}
		for seq := range unacked {
			if seq > hi {
				next[seq] = struct{}{}
			}
		}
	}
	return next
}

func sortedSeqs(set map[protocol.Seq]struct{}) []protocol.Seq {
	seqs := make([]protocol.Seq, 0, len(set))
	for seq := range set {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
