package transfer

// SenderState tracks where the sender is in its bulk-send/retry cycle.
type SenderState int

const (
	SenderInit SenderState = iota
	SenderBulkSend
	SenderAwaitFeedback
	SenderRetransmit
	SenderDone
	SenderFailed
)

func (s SenderState) String() string {
	switch s {
	case SenderInit:
		return "init"
	case SenderBulkSend:
		return "bulk-send"
	case SenderAwaitFeedback:
		return "await-feedback"
	case SenderRetransmit:
		return "retransmit"
	case SenderDone:
		return "done"
	case SenderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReceiverState tracks where the receiver is in its collection cycle.
type ReceiverState int

const (
	ReceiverIdle ReceiverState = iota
	ReceiverCollecting
	ReceiverFinalizing
	ReceiverReportingNack
	ReceiverAwaitingNackAck
	ReceiverDone
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverIdle:
		return "idle"
	case ReceiverCollecting:
		return "collecting"
	case ReceiverFinalizing:
		return "finalizing"
	case ReceiverReportingNack:
		return "reporting-nack"
	case ReceiverAwaitingNackAck:
		return "awaiting-nack-ack"
	case ReceiverDone:
		return "done"
	default:
		return "unknown"
	}
}
