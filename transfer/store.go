package transfer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/loradrop/loradrop/protocol"
)

// ChunkStore collects the verified chunks of one in-flight transfer,
// keyed by sequence number. It belongs to a single file id; the owner
// filters out packets of other transfers before they get here.
type ChunkStore struct {
	chunks  map[protocol.Seq][]byte
	corrupt map[protocol.Seq]struct{}
}

// NewChunkStore returns an empty store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks:  make(map[protocol.Seq][]byte),
		corrupt: make(map[protocol.Seq]struct{}),
	}
}

// Put stores a checksum-verified payload under seq. The first write
// wins: re-receiving a chunk never changes the stored bytes. A valid
// copy clears any earlier corrupt mark for the same seq.
func (cs *ChunkStore) Put(seq protocol.Seq, payload []byte) {
	if _, ok := cs.chunks[seq]; ok {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	cs.chunks[seq] = cp
	delete(cs.corrupt, seq)
}

// MarkCorrupt records that a chunk for seq arrived with a bad
// checksum. It never displaces a stored valid copy.
func (cs *ChunkStore) MarkCorrupt(seq protocol.Seq) {
	if _, ok := cs.chunks[seq]; ok {
		return
	}
	cs.corrupt[seq] = struct{}{}
}

// Has reports whether a valid chunk is stored under seq.
func (cs *ChunkStore) Has(seq protocol.Seq) bool {
	_, ok := cs.chunks[seq]
	return ok
}

// Len is the number of valid chunks stored.
func (cs *ChunkStore) Len() int { return len(cs.chunks) }

// CorruptCount is the number of seqs whose only arrivals were corrupt.
func (cs *ChunkStore) CorruptCount() int { return len(cs.corrupt) }

// MaxSeen returns the highest sequence number observed, counting both
// stored and corrupt arrivals. The second return is false when nothing
// arrived yet.
func (cs *ChunkStore) MaxSeen() (protocol.Seq, bool) {
	if len(cs.chunks) == 0 && len(cs.corrupt) == 0 {
		return 0, false
	}
	var max protocol.Seq
	for seq := range cs.chunks {
		if seq > max {
			max = seq
		}
	}
	for seq := range cs.corrupt {
		if seq > max {
			max = seq
		}
	}
	return max, true
}

// Missing returns, in ascending order, every seq in [0, total) without
// a valid stored chunk. Corrupt-only arrivals count as missing.
func (cs *ChunkStore) Missing(total int) []protocol.Seq {
	missing := make([]protocol.Seq, 0)
	for seq := 0; seq < total; seq++ {
		if _, ok := cs.chunks[protocol.Seq(seq)]; !ok {
			missing = append(missing, protocol.Seq(seq))
		}
	}
	return missing
}

// Reassemble concatenates the stored chunks for seq 0..total-1 into
// the original buffer. It fails with ErrIncomplete while gaps remain.
func (cs *ChunkStore) Reassemble(total int) ([]byte, error) {
	if missing := cs.Missing(total); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %d of %d chunks missing", ErrIncomplete, len(missing), total)
	}

	size := 0
	for seq := 0; seq < total; seq++ {
		size += len(cs.chunks[protocol.Seq(seq)])
	}
	buf := make([]byte, 0, size)
	for seq := 0; seq < total; seq++ {
		buf = append(buf, cs.chunks[protocol.Seq(seq)]...)
	}
	return buf, nil
}

// assemblePartial concatenates whatever chunks are present, in
// ascending seq order, for the incomplete-result path.
func (cs *ChunkStore) assemblePartial() []byte {
	seqs := make([]protocol.Seq, 0, len(cs.chunks))
	for seq := range cs.chunks {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var buf []byte
	for _, seq := range seqs {
		buf = append(buf, cs.chunks[seq]...)
	}
	return buf
}

// Digest returns the hex MD5 of a reassembled buffer. Callers that
// exchange the digest out of band get a whole-file integrity check on
// top of the per-chunk checksums.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
