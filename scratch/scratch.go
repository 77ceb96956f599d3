// Package scratch holds the fixed size buffers every batch reuses: one path
// slot per leaf and one serialization slot. They are carved from the
// invocation arena once, before the first batch checkpoint, and are zeroed
// after every emission so no batch can observe bytes written by another.
package scratch

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-changelog/arena"
	"github.com/forestrie/go-changelog/changelog"
)

// SlotAlign is the alignment of both scratch allocations. It satisfies
// changelog.PathNodeAlign and the natural alignment of every wire integer.
const SlotAlign = arena.MaxAlign

var (
	ErrSlotIndex = errors.New("scratch: path slot index out of range")
	ErrBadShape  = errors.New("scratch: height, leaves and capacity must be positive")
)

type Buffers struct {
	height    int
	leaves    int
	slotBytes int
	paths     []byte
	serialize []byte
}

// RegionBytes returns a region size sufficient for the scratch buffers, one
// batch of record frames and all alignment padding.
func RegionBytes(height, leaves, capacity int) int {
	n := arena.HeaderBytes
	n += leaves*changelog.PathBytes(height) + SlotAlign
	n += capacity + SlotAlign
	n += leaves * (changelog.RecordFrameBytes + changelog.RecordFrameAlign)
	return n
}

// New makes exactly two allocations from a: the path slots and the
// serialization slot.
func New(a *arena.Arena, height, leaves, capacity int) (*Buffers, error) {
	if height <= 0 || leaves <= 0 || capacity <= 0 {
		return nil, fmt.Errorf("%w: height %d, leaves %d, capacity %d", ErrBadShape, height, leaves, capacity)
	}
	slotBytes := changelog.PathBytes(height)

	paths, err := a.Alloc(leaves*slotBytes, SlotAlign)
	if err != nil {
		return nil, fmt.Errorf("path slots: %w", err)
	}
	serialize, err := a.Alloc(capacity, SlotAlign)
	if err != nil {
		return nil, fmt.Errorf("serialize slot: %w", err)
	}
	b := &Buffers{
		height:    height,
		leaves:    leaves,
		slotBytes: slotBytes,
		paths:     paths,
		serialize: serialize,
	}
	return b, nil
}

// PathSlot returns the mutable slot for leaf j, exactly height path nodes long.
func (b *Buffers) PathSlot(j int) ([]byte, error) {
	if j < 0 || j >= b.leaves {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrSlotIndex, j, b.leaves)
	}
	start := j * b.slotBytes
	end := start + b.slotBytes
	return b.paths[start:end:end], nil
}

// SerializeSlot returns the mutable serialization slot.
func (b *Buffers) SerializeSlot() []byte { return b.serialize }

// Zero overwrites every byte of every slot.
func (b *Buffers) Zero() {
	clear(b.paths)
	clear(b.serialize)
}

// IsZero reports whether every byte of every slot is zero.
func (b *Buffers) IsZero() bool {
	for _, c := range b.paths {
		if c != 0 {
			return false
		}
	}
	for _, c := range b.serialize {
		if c != 0 {
			return false
		}
	}
	return true
}

func (b *Buffers) Height() int   { return b.height }
func (b *Buffers) Leaves() int   { return b.leaves }
func (b *Buffers) Capacity() int { return len(b.serialize) }
