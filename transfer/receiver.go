package transfer

import (
	"context"

	"go.uber.org/zap"

	"github.com/loradrop/loradrop/protocol"
	"github.com/loradrop/loradrop/transport"
)

// ReceiveResult is the outcome of one inbound transfer.
type ReceiveResult struct {
	FileID      protocol.FileID
	Source      uint16
	TotalChunks int

	// Data is the reassembled buffer. When Complete is false it holds
	// whatever arrived, concatenated in ascending seq order.
	Data []byte

	// Missing is the number of chunks still absent. Zero when
	// Complete.
	Missing int

	// Complete reports whether every chunk arrived and verified.
	Complete bool
}

// Receiver collects exactly one inbound transfer: the first DATA or
// END packet seen while idle fixes the transfer's file id, and
// everything bearing another id is ignored until that transfer reaches
// a terminal state. Not safe for concurrent use.
type Receiver struct {
	sess  transport.Session
	cfg   Config
	opts  options
	state ReceiverState
}

// NewReceiver builds a receiver listening on sess. The caller keeps
// ownership of sess and closes it.
func NewReceiver(sess transport.Session, cfg Config, opts ...Option) *Receiver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Receiver{
		sess: sess,
		cfg:  cfg,
		opts: o,
	}
}

// State returns the receiver's current protocol state.
func (r *Receiver) State() ReceiverState { return r.state }

// inbound is the receiver-side view of one in-flight transfer.
type inbound struct {
	id     protocol.FileID
	source uint16
	store  *ChunkStore

	// total is trustworthy once totalKnown is set by an END packet;
	// before that it may be inferred from the highest seq seen.
	total      int
	totalKnown bool

	// endSeen marks that the current burst's END arrived; it is reset
	// before every retransmit wait.
	endSeen bool

	nackRetries int
}

// Receive blocks until one transfer completes, the NACK retry budget
// runs out (the result then carries Complete=false and the partial
// buffer) or the link fails. The completion hook, if registered, runs
// exactly once for a complete transfer before Receive returns.
func (r *Receiver) Receive(ctx context.Context) (ReceiveResult, error) {
	if err := r.cfg.Validate(); err != nil {
		return ReceiveResult{}, err
	}

	r.setState(ReceiverIdle)
	var (
		t   *inbound
		log = r.opts.logger
	)

	for {
		switch r.state {
		case ReceiverIdle:
			var err error
			t, err = r.awaitTransfer(ctx)
			if err != nil {
				return ReceiveResult{}, err
			}
			log = r.opts.logger.With(
				zap.Uint16("file_id", uint16(t.id)),
				zap.Uint16("source", t.source),
			)
			log.Info("transfer started")
			if t.endSeen {
				r.setState(ReceiverFinalizing)
			} else {
				r.setState(ReceiverCollecting)
			}

		case ReceiverCollecting:
			if err := r.collect(ctx, t, log); err != nil {
				return ReceiveResult{}, err
			}
			r.setState(ReceiverFinalizing)

		case ReceiverFinalizing:
			missing := t.store.Missing(t.total)
			log.Info("finalizing",
				zap.Int("total", t.total),
				zap.Int("received", t.store.Len()),
				zap.Int("missing", len(missing)),
				zap.Int("corrupt", t.store.CorruptCount()),
			)
			if len(missing) == 0 {
				if err := r.sendPacket(t, protocol.Ack{FileID: t.id}); err != nil {
					return ReceiveResult{}, err
				}
				return r.finish(t, log)
			}
			if t.nackRetries >= r.cfg.MaxNackRetries {
				// The sender went quiet for good. Hand back what we
				// have instead of blocking forever.
				log.Warn("nack retries exhausted, finalizing incomplete",
					zap.Int("missing", len(missing)),
				)
				r.setState(ReceiverDone)
				return ReceiveResult{
					FileID:      t.id,
					Source:      t.source,
					TotalChunks: t.total,
					Data:        t.store.assemblePartial(),
					Missing:     len(missing),
					Complete:    false,
				}, nil
			}
			r.setState(ReceiverReportingNack)
			if err := r.sendPacket(t, protocol.Nack{FileID: t.id, Missing: missing}); err != nil {
				return ReceiveResult{}, err
			}
			t.nackRetries++
			log.Info("sent nack list",
				zap.Int("missing", len(missing)),
				zap.Int("attempt", t.nackRetries),
			)
			r.setState(ReceiverAwaitingNackAck)

		case ReceiverAwaitingNackAck:
			t.endSeen = false
			alive, err := r.awaitNackAck(ctx, t, log)
			if err != nil {
				return ReceiveResult{}, err
			}
			switch {
			case alive && t.endSeen:
				// The whole retransmit burst slipped past during the
				// wait; its END is already recorded.
				t.nackRetries = 0
				r.setState(ReceiverFinalizing)
			case alive:
				// The sender reacted, a retransmit burst is coming.
				t.nackRetries = 0
				r.setState(ReceiverCollecting)
			default:
				// NACK itself may have been lost; Finalizing resends
				// it until the retry budget runs out.
				r.setState(ReceiverFinalizing)
			}
		}
	}
}

// finish reassembles a complete transfer and runs the completion hook.
func (r *Receiver) finish(t *inbound, log *zap.Logger) (ReceiveResult, error) {
	data, err := t.store.Reassemble(t.total)
	if err != nil {
		return ReceiveResult{}, err
	}
	r.setState(ReceiverDone)
	result := ReceiveResult{
		FileID:      t.id,
		Source:      t.source,
		TotalChunks: t.total,
		Data:        data,
		Complete:    true,
	}
	log.Info("transfer complete",
		zap.Int("size", len(data)),
		zap.String("digest", Digest(data)),
	)
	if r.opts.hook != nil {
		r.opts.hook(result)
	}
	return result, nil
}

// awaitTransfer blocks in Idle until a DATA or END packet opens a
// fresh transfer.
func (r *Receiver) awaitTransfer(ctx context.Context) (*inbound, error) {
	for {
		d, err := r.sess.Receive(ctx, r.cfg.RecvTimeout)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}

		pkt, err := protocol.DecodePacket(d.Payload)
		if err != nil {
			r.opts.logger.Debug("dropping malformed packet", zap.Error(err))
			continue
		}

		t := &inbound{store: NewChunkStore(), source: d.Source}
		switch p := pkt.(type) {
		case protocol.Data:
			t.id = p.FileID
			r.storeChunk(t, p, r.opts.logger)
			return t, nil
		case protocol.End:
			t.id = p.FileID
			t.total = int(p.TotalChunks)
			t.totalKnown = true
			t.endSeen = true
			return t, nil
		default:
			// Stray feedback packets never open a transfer.
		}
	}
}

// collect ingests DATA packets for the active transfer until its END
// packet arrives or the link stays silent for RecvTimeout, which
// covers a lost END.
func (r *Receiver) collect(ctx context.Context, t *inbound, log *zap.Logger) error {
	for {
		d, err := r.sess.Receive(ctx, r.cfg.RecvTimeout)
		if err != nil {
			return err
		}
		if d == nil {
			// Silence: assume the END packet was lost. A total learned
			// from an earlier END stays authoritative; otherwise infer
			// it from the highest seq seen so far.
			if !t.totalKnown {
				if max, ok := t.store.MaxSeen(); ok {
					t.total = int(max) + 1
				}
			}
			log.Warn("silence while collecting, assuming end packet lost",
				zap.Int("total", t.total),
				zap.Bool("inferred", !t.totalKnown),
			)
			return nil
		}

		pkt, err := protocol.DecodePacket(d.Payload)
		if err != nil {
			log.Debug("dropping malformed packet", zap.Error(err))
			continue
		}
		if pkt.File() != t.id {
			log.Debug("dropping packet for other transfer", zap.Uint16("their_id", uint16(pkt.File())))
			continue
		}

		switch p := pkt.(type) {
		case protocol.Data:
			r.storeChunk(t, p, log)
		case protocol.End:
			t.total = int(p.TotalChunks)
			t.totalKnown = true
			t.endSeen = true
			return nil
		}
	}
}

// awaitNackAck waits for proof that the sender received the NACK list:
// either its ACK or the first packet of the retransmit burst. It
// reports false when the wait stays silent.
func (r *Receiver) awaitNackAck(ctx context.Context, t *inbound, log *zap.Logger) (bool, error) {
	deadline := r.opts.clock.Now().Add(r.cfg.NackAckTimeout)
	for {
		remaining := deadline.Sub(r.opts.clock.Now())
		if remaining <= 0 {
			return false, nil
		}

		d, err := r.sess.Receive(ctx, remaining)
		if err != nil {
			return false, err
		}
		if d == nil {
			return false, nil
		}

		pkt, err := protocol.DecodePacket(d.Payload)
		if err != nil {
			log.Debug("dropping malformed packet", zap.Error(err))
			continue
		}
		if pkt.File() != t.id {
			continue
		}

		switch p := pkt.(type) {
		case protocol.Ack:
			return true, nil
		case protocol.Data:
			r.storeChunk(t, p, log)
			return true, nil
		case protocol.End:
			// The sender already finished its retransmit burst.
			t.total = int(p.TotalChunks)
			t.totalKnown = true
			t.endSeen = true
			return true, nil
		}
	}
}

// storeChunk verifies and stores one DATA payload. Bad checksums leave
// the seq missing so the next NACK round requests it again.
func (r *Receiver) storeChunk(t *inbound, p protocol.Data, log *zap.Logger) {
	if got := protocol.Checksum(p.Payload); got != p.Checksum {
		t.store.MarkCorrupt(p.Seq)
		log.Warn("chunk checksum mismatch",
			zap.Uint16("seq", uint16(p.Seq)),
			zap.Uint8("want", p.Checksum),
			zap.Uint8("got", got),
		)
		return
	}
	t.store.Put(p.Seq, p.Payload)
	log.Debug("stored chunk",
		zap.Uint16("seq", uint16(p.Seq)),
		zap.Int("size", len(p.Payload)),
		zap.Int("have", t.store.Len()),
	)
}

func (r *Receiver) sendPacket(t *inbound, pkt protocol.Packet) error {
	return r.sess.Send(t.source, pkt.Encode())
}

func (r *Receiver) setState(state ReceiverState) {
	if r.state == state {
		return
	}
	r.opts.logger.Debug("receiver state change",
		zap.Stringer("from", r.state),
		zap.Stringer("to", state),
	)
	r.state = state
}
