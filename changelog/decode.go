package changelog

import (
	"encoding/binary"
	"fmt"
)

// DecodedRecord is a heap owned copy of a record read back from a message.
type DecodedRecord struct {
	Tag       Tag
	TreeID    Identity
	Paths     [][]PathNode
	Sequence  uint64
	LeafIndex uint32
}

// DecodeBatch strictly decodes one emitted message.
func DecodeBatch(msg []byte) ([]DecodedRecord, error) {
	d := decoder{buf: msg}

	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	// Every record needs at least its fixed fields, reject counts the message
	// can not possibly hold before allocating for them.
	if uint64(count)*recordFixedBytes > uint64(d.remaining()) {
		return nil, fmt.Errorf("%w: %d records declared, %d bytes remain", ErrTruncated, count, d.remaining())
	}

	records := make([]DecodedRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		r, err := d.record()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	if d.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, d.remaining())
	}
	return records, nil
}

// CheckOrdering verifies the order consumers rely on: leaf indices strictly
// increase within a batch and sequence numbers strictly increase across the
// whole stream of batches.
func CheckOrdering(batches [][]DecodedRecord) error {
	var lastSeq uint64
	first := true
	for bi, batch := range batches {
		for ri, r := range batch {
			if ri > 0 && r.LeafIndex <= batch[ri-1].LeafIndex {
				return fmt.Errorf("%w: batch %d record %d leaf index %d follows %d",
					ErrOrdering, bi, ri, r.LeafIndex, batch[ri-1].LeafIndex)
			}
			if !first && r.Sequence <= lastSeq {
				return fmt.Errorf("%w: batch %d record %d sequence %d follows %d",
					ErrOrdering, bi, ri, r.Sequence, lastSeq)
			}
			lastSeq = r.Sequence
			first = false
		}
	}
	return nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) take(n int) ([]byte, error) {
	if n > d.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, d.off, d.remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) record() (DecodedRecord, error) {
	var r DecodedRecord

	tag, err := d.u8()
	if err != nil {
		return r, err
	}
	if Tag(tag) != TagV1 {
		return r, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	r.Tag = Tag(tag)

	id, err := d.take(IdentityBytes)
	if err != nil {
		return r, err
	}
	copy(r.TreeID[:], id)

	npaths, err := d.u32()
	if err != nil {
		return r, err
	}
	if uint64(npaths)*CountPrefixBytes > uint64(d.remaining()) {
		return r, fmt.Errorf("%w: %d paths declared", ErrTruncated, npaths)
	}
	r.Paths = make([][]PathNode, 0, npaths)
	for i := uint32(0); i < npaths; i++ {
		nnodes, err := d.u32()
		if err != nil {
			return r, err
		}
		if uint64(nnodes)*PathNodeBytes > uint64(d.remaining()) {
			return r, fmt.Errorf("%w: %d nodes declared", ErrTruncated, nnodes)
		}
		raw, err := d.take(int(nnodes) * PathNodeBytes)
		if err != nil {
			return r, err
		}
		nodes := make([]PathNode, nnodes)
		for k := range nodes {
			b := raw[k*PathNodeBytes : (k+1)*PathNodeBytes]
			copy(nodes[k].Hash[:], b[NodeHashFirstByte:NodeHashEnd])
			nodes[k].Position = binary.LittleEndian.Uint32(b[NodePositionFirstByte:NodePositionEnd])
		}
		r.Paths = append(r.Paths, nodes)
	}

	if r.Sequence, err = d.u64(); err != nil {
		return r, err
	}
	if r.LeafIndex, err = d.u32(); err != nil {
		return r, err
	}
	return r, nil
}
