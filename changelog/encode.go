package changelog

import (
	"encoding/binary"
	"fmt"
)

const (
	CountPrefixBytes = 4
	TagBytes         = 1
	SequenceBytes    = 8
	LeafIndexBytes   = 4

	// recordFixedBytes is everything in an encoded record except its paths
	recordFixedBytes = TagBytes + IdentityBytes + CountPrefixBytes + SequenceBytes + LeafIndexBytes
)

// EncodedPathSize is the encoded size of one path of height nodes.
func EncodedPathSize(height int) int {
	return CountPrefixBytes + height*PathNodeBytes
}

// EncodedRecordSize is the encoded size of a record carrying paths paths, each
// of height nodes.
func EncodedRecordSize(height, paths int) int {
	return recordFixedBytes + paths*EncodedPathSize(height)
}

// EncodedBatchSize is the encoded size of a batch of leaves single path
// records.
func EncodedBatchSize(height, leaves int) int {
	return CountPrefixBytes + leaves*EncodedRecordSize(height, 1)
}

func encodedSize(records []Record) int {
	n := CountPrefixBytes
	for _, r := range records {
		n += recordFixedBytes
		for _, p := range r.paths {
			n += EncodedPathSize(p.Len())
		}
	}
	return n
}

// EncodeBatch writes records to dst and returns the number of bytes written.
// The size is established before anything is written. If the encoding does
// not fit dst then dst is left untouched and ErrEncodingOverflow is returned.
func EncodeBatch(dst []byte, records []Record) (int, error) {
	need := encodedSize(records)
	if need > len(dst) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrEncodingOverflow, need, len(dst))
	}

	e := encoder{buf: dst[:need]}
	e.u32(uint32(len(records)))
	for _, r := range records {
		e.u8(uint8(r.Tag()))
		e.bytes(r.treeID())
		e.u32(uint32(len(r.paths)))
		for _, p := range r.paths {
			e.u32(uint32(p.Len()))
			// the slot layout of a node is its wire layout
			e.bytes(p.Bytes())
		}
		e.u64(r.Sequence())
		e.u32(r.LeafIndex())
	}
	return e.off, nil
}

// encoder writes into a buffer that is known to be large enough.
type encoder struct {
	buf []byte
	off int
}

func (e *encoder) u8(v uint8) {
	e.buf[e.off] = v
	e.off++
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[e.off:e.off+4], v)
	e.off += 4
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[e.off:e.off+8], v)
	e.off += 8
}

func (e *encoder) bytes(b []byte) {
	e.off += copy(e.buf[e.off:], b)
}
