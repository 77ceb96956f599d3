package changelogtesting

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/forestrie/go-changelog/changelog"
	"github.com/stretchr/testify/require"
)

// SeededLeaf returns a deterministic leaf generator. Different seeds give
// unrelated leaves for the same sequence numbers.
func SeededLeaf(seed uint64) func(seq uint64) [32]byte {
	return func(seq uint64) [32]byte {
		var b [16]byte
		binary.BigEndian.PutUint64(b[:8], seed)
		binary.BigEndian.PutUint64(b[8:], seq)
		return sha256.Sum256(b[:])
	}
}

// DecodeAll strictly decodes every message, failing the test on the first
// error.
func DecodeAll(t *testing.T, msgs [][]byte) [][]changelog.DecodedRecord {
	t.Helper()
	batches := make([][]changelog.DecodedRecord, len(msgs))
	for i, m := range msgs {
		records, err := changelog.DecodeBatch(m)
		require.NoError(t, err, "message %d", i)
		batches[i] = records
	}
	return batches
}

// Digest is the SHA256 of the concatenated messages.
func Digest(msgs [][]byte) [32]byte {
	h := sha256.New()
	for _, m := range msgs {
		h.Write(m)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// AllZero reports whether every byte of b is zero.
func AllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
