package transfer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loradrop/loradrop/protocol"
	"github.com/loradrop/loradrop/transport/loopback"
)

// testConfig shrinks every timeout so loss scenarios converge quickly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PacingDelay = 0
	cfg.NackTimeout = 500 * time.Millisecond
	cfg.RecvTimeout = 150 * time.Millisecond
	cfg.NackAckTimeout = 250 * time.Millisecond
	return cfg
}

func patternedData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

// decodeData returns the DATA packet carried by payload, if any.
func decodeData(payload []byte) (protocol.Data, bool) {
	pkt, err := protocol.DecodePacket(payload)
	if err != nil {
		return protocol.Data{}, false
	}
	d, ok := pkt.(protocol.Data)
	return d, ok
}

type e2eOutcome struct {
	sendRes SendResult
	sendErr error
	recvRes ReceiveResult
	recvErr error
}

// runTransfer wires a sender and a receiver over a loopback pair,
// lets rig install loss/corruption hooks, and runs both to completion.
func runTransfer(t *testing.T, data []byte, cfg Config, rig func(sender, receiver *loopback.Endpoint), recvOpts ...Option) e2eOutcome {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	senderEnd, receiverEnd := loopback.NewPair(1, 2)
	defer senderEnd.Close()
	defer receiverEnd.Close()
	if rig != nil {
		rig(senderEnd, receiverEnd)
	}

	var out e2eOutcome
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		out.recvRes, out.recvErr = NewReceiver(receiverEnd, cfg, recvOpts...).Receive(ctx)
	}()

	out.sendRes, out.sendErr = NewSender(senderEnd, 2, cfg).Send(ctx, data)

	select {
	case <-recvDone:
	case <-ctx.Done():
		t.Fatal("receiver did not finish")
	}
	return out
}

func TestTransferNoLoss(t *testing.T) {
	require := require.New(t)

	data := patternedData(1000)
	var (
		hookCalls  int
		hookResult ReceiveResult
	)
	out := runTransfer(t, data, testConfig(), nil, WithCompletionHook(func(res ReceiveResult) {
		hookCalls++
		hookResult = res
	}))

	require.NoError(out.sendErr)
	require.Equal(0, out.sendRes.Rounds)
	require.Equal(5, out.sendRes.TotalChunks)

	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Equal(data, out.recvRes.Data)
	require.Equal(uint16(1), out.recvRes.Source)
	require.Equal(out.sendRes.FileID, out.recvRes.FileID)
	require.Equal(1, hookCalls)
	require.True(hookResult.Complete)
	require.Equal(Digest(data), Digest(out.recvRes.Data))
}

func TestTransferEmptyFile(t *testing.T) {
	require := require.New(t)

	out := runTransfer(t, nil, testConfig(), nil)

	require.NoError(out.sendErr)
	require.Equal(0, out.sendRes.TotalChunks)
	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Empty(out.recvRes.Data)
}

func TestTransferSingleShortChunk(t *testing.T) {
	require := require.New(t)

	data := []byte("shorter than one chunk")
	out := runTransfer(t, data, testConfig(), nil)

	require.NoError(out.sendErr)
	require.Equal(1, out.sendRes.TotalChunks)
	require.NoError(out.recvErr)
	require.Equal(data, out.recvRes.Data)
}

// TestTransferLostChunk is the canonical scenario: a 1000-byte file in
// 200-byte chunks with chunk 2 lost converges in one NACK round.
func TestTransferLostChunk(t *testing.T) {
	require := require.New(t)

	data := patternedData(1000)
	out := runTransfer(t, data, testConfig(), func(sender, _ *loopback.Endpoint) {
		dropped := false
		sender.SetDropFunc(func(_ int, payload []byte) bool {
			if d, ok := decodeData(payload); ok && d.Seq == 2 && !dropped {
				dropped = true
				return true
			}
			return false
		})
	})

	require.NoError(out.sendErr)
	require.Equal(1, out.sendRes.Rounds)
	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Equal(data, out.recvRes.Data)
}

// TestTransferConvergesUnderLoss drops an arbitrary missing set during
// the bulk phase; one retransmit round of exactly that set completes
// the transfer.
func TestTransferConvergesUnderLoss(t *testing.T) {
	require := require.New(t)

	lost := map[protocol.Seq]bool{1: true, 3: true, 4: true, 7: true}
	data := patternedData(10 * 50)
	cfg := testConfig()
	cfg.ChunkSize = 50

	out := runTransfer(t, data, cfg, func(sender, _ *loopback.Endpoint) {
		dropped := make(map[protocol.Seq]bool, len(lost))
		sender.SetDropFunc(func(_ int, payload []byte) bool {
			d, ok := decodeData(payload)
			if ok && lost[d.Seq] && !dropped[d.Seq] {
				dropped[d.Seq] = true
				return true
			}
			return false
		})
	})

	require.NoError(out.sendErr)
	require.Equal(1, out.sendRes.Rounds)
	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Equal(data, out.recvRes.Data)
}

// TestTransferCorruptChunk flips a payload byte in flight; the bad
// chunk counts as missing and is resent in the NACK round.
func TestTransferCorruptChunk(t *testing.T) {
	require := require.New(t)

	data := patternedData(600)
	out := runTransfer(t, data, testConfig(), func(sender, _ *loopback.Endpoint) {
		corrupted := false
		sender.SetCorruptFunc(func(_ int, payload []byte) []byte {
			if d, ok := decodeData(payload); ok && d.Seq == 1 && !corrupted {
				corrupted = true
				payload[len(payload)-1] ^= 0xFF
			}
			return payload
		})
	})

	require.NoError(out.sendErr)
	require.Equal(1, out.sendRes.Rounds)
	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Equal(data, out.recvRes.Data)
}

// TestTransferLostEnd drops the first END packet; the receiver's
// silence timeout finalizes the transfer anyway.
func TestTransferLostEnd(t *testing.T) {
	require := require.New(t)

	data := patternedData(450)
	out := runTransfer(t, data, testConfig(), func(sender, _ *loopback.Endpoint) {
		dropped := false
		sender.SetDropFunc(func(_ int, payload []byte) bool {
			pkt, err := protocol.DecodePacket(payload)
			if err == nil && pkt.Kind() == protocol.KindEnd && !dropped {
				dropped = true
				return true
			}
			return false
		})
	})

	require.NoError(out.sendErr)
	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Equal(data, out.recvRes.Data)
}

// TestTransferRoundCap keeps dropping every DATA packet; the sender
// must fail after exactly MaxRetryRounds rounds and the receiver must
// hand back an incomplete result instead of blocking forever.
func TestTransferRoundCap(t *testing.T) {
	require := require.New(t)

	cfg := testConfig()
	cfg.MaxRetryRounds = 2
	cfg.MaxNackRetries = 2

	data := patternedData(1000)
	out := runTransfer(t, data, cfg, func(sender, _ *loopback.Endpoint) {
		sender.SetDropFunc(func(_ int, payload []byte) bool {
			_, isData := decodeData(payload)
			return isData
		})
	})

	require.ErrorIs(out.sendErr, ErrMaxRetries)
	require.Equal(2, out.sendRes.Rounds)
	require.Equal(5, out.sendRes.Residual)

	require.NoError(out.recvErr)
	require.False(out.recvRes.Complete)
	require.Equal(5, out.recvRes.Missing)
	require.Empty(out.recvRes.Data)
}

// TestTransferNackTruncation loses more chunks than one NACK can list;
// successive rounds must surface every missing seq.
func TestTransferNackTruncation(t *testing.T) {
	require := require.New(t)

	const total = protocol.MaxNackSeqs + 35
	cfg := testConfig()
	cfg.ChunkSize = 4

	data := patternedData(total * 4)
	out := runTransfer(t, data, cfg, func(sender, _ *loopback.Endpoint) {
		sender.SetDropFunc(func(n int, payload []byte) bool {
			// the bulk phase is exactly the first `total` DATA sends
			_, isData := decodeData(payload)
			return isData && n < total
		})
	})

	require.NoError(out.sendErr)
	require.Equal(2, out.sendRes.Rounds)
	require.NoError(out.recvErr)
	require.True(out.recvRes.Complete)
	require.Equal(data, out.recvRes.Data)
}

// TestTransferIsolation verifies that packets of a foreign file id
// never leak into the active transfer's chunk store.
func TestTransferIsolation(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	senderEnd, receiverEnd := loopback.NewPair(1, 2)
	defer senderEnd.Close()
	defer receiverEnd.Close()

	cfg := testConfig()
	done := make(chan struct{})
	var (
		res ReceiveResult
		err error
	)
	go func() {
		defer close(done)
		res, err = NewReceiver(receiverEnd, cfg).Receive(ctx)
	}()

	const (
		active  protocol.FileID = 0x0200
		foreign protocol.FileID = 0x0300
	)
	send := func(pkt protocol.Packet) {
		require.NoError(senderEnd.Send(2, pkt.Encode()))
	}
	mustData := func(id protocol.FileID, seq protocol.Seq, payload string) protocol.Data {
		d, err := protocol.NewData(id, seq, []byte(payload))
		require.NoError(err)
		return d
	}

	send(mustData(active, 0, "AAAA"))
	send(mustData(foreign, 0, "XXXX")) // ignored: transfer 0x0200 is active
	send(mustData(foreign, 1, "YYYY"))
	send(mustData(active, 1, "BBBB"))
	send(protocol.End{FileID: foreign, TotalChunks: 2}) // ignored too
	send(protocol.End{FileID: active, TotalChunks: 2})

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("receiver did not finish")
	}

	require.NoError(err)
	require.True(res.Complete)
	require.Equal(active, res.FileID)
	require.Equal([]byte("AAAABBBB"), res.Data)
	require.False(bytes.Contains(res.Data, []byte("XXXX")))
}

// TestReceiverIdempotentIntake replays a DATA packet with conflicting
// bytes under the same seq; the first valid copy must win.
func TestReceiverIdempotentIntake(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	senderEnd, receiverEnd := loopback.NewPair(1, 2)
	defer senderEnd.Close()
	defer receiverEnd.Close()

	done := make(chan struct{})
	var (
		res ReceiveResult
		err error
	)
	go func() {
		defer close(done)
		res, err = NewReceiver(receiverEnd, testConfig()).Receive(ctx)
	}()

	const id protocol.FileID = 0x0150
	first, perr := protocol.NewData(id, 0, []byte("keep"))
	require.NoError(perr)
	replay, perr := protocol.NewData(id, 0, []byte("drop"))
	require.NoError(perr)

	require.NoError(senderEnd.Send(2, first.Encode()))
	require.NoError(senderEnd.Send(2, first.Encode())) // exact duplicate
	require.NoError(senderEnd.Send(2, replay.Encode()))
	require.NoError(senderEnd.Send(2, protocol.End{FileID: id, TotalChunks: 1}.Encode()))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("receiver did not finish")
	}

	require.NoError(err)
	require.True(res.Complete)
	require.Equal([]byte("keep"), res.Data)
}
