package changelog

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-changelog/arena"
)

// Builder produces the records of one batch. The record and path headers are
// held in slices sized once for the configured number of leaves, so building
// a batch performs no heap allocation. Frames come from the arena and are
// reclaimed when the caller rolls the arena back.
type Builder struct {
	arena   *arena.Arena
	height  int
	leaves  int
	paths   []PathView
	records []Record
}

func NewBuilder(a *arena.Arena, height, leaves int) (*Builder, error) {
	if height < 1 || height > MaxHeight {
		return nil, fmt.Errorf("%w: %d", ErrBadHeight, height)
	}
	if leaves < 1 {
		return nil, fmt.Errorf("changelog: leaves per batch must be positive, got %d", leaves)
	}
	return &Builder{
		arena:   a,
		height:  height,
		leaves:  leaves,
		paths:   make([]PathView, 0, leaves),
		records: make([]Record, 0, leaves),
	}, nil
}

// Reset forgets the records of the previous batch. It must be called once the
// arena has been rolled back past their frames.
func (b *Builder) Reset() {
	clear(b.paths[:cap(b.paths)])
	clear(b.records[:cap(b.records)])
	b.paths = b.paths[:0]
	b.records = b.records[:0]
}

// Build wraps slot, which must already hold a complete path, as a V1 record.
// The slot is borrowed, not copied.
func (b *Builder) Build(slot []byte, treeID Identity, seq uint64, leafIndex uint32) (Record, error) {
	if len(b.records) == b.leaves {
		return Record{}, fmt.Errorf("%w: %d", ErrBuilderFull, b.leaves)
	}
	pv, err := NewPathView(slot, b.height)
	if err != nil {
		return Record{}, err
	}
	frame, err := b.arena.Alloc(RecordFrameBytes, RecordFrameAlign)
	if err != nil {
		return Record{}, err
	}

	copy(frame[FrameTreeIDFirstByte:FrameTreeIDEnd], treeID[:])
	binary.LittleEndian.PutUint64(frame[FrameSequenceFirstByte:FrameSequenceEnd], seq)
	binary.LittleEndian.PutUint32(frame[FrameLeafIndexFirstByte:FrameLeafIndexEnd], leafIndex)
	frame[FrameTagFirstByte] = byte(TagV1)
	frame[FrameReservedFirstByte] = 0
	binary.LittleEndian.PutUint16(frame[FramePathCountFirstByte:FramePathCountEnd], 1)

	i := len(b.paths)
	b.paths = append(b.paths, pv)
	r := Record{frame: frame, paths: b.paths[i : i+1 : i+1]}
	b.records = append(b.records, r)
	return r, nil
}

// Records returns the records built since the last Reset, in build order.
func (b *Builder) Records() []Record { return b.records }

func (b *Builder) Height() int { return b.height }
