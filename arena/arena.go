package arena

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

const (
	// Arena header layout
	//
	// .     | position | low water |
	// .     | 0      7 | 8      15 |
	// bytes |    8     |     8     |
	//
	// Both fields are little endian offsets from the start of the region.

	PositionFirstByte = 0
	PositionSize      = 8
	PositionEnd       = PositionFirstByte + PositionSize
	LowWaterFirstByte = PositionEnd
	LowWaterSize      = 8
	LowWaterEnd       = LowWaterFirstByte + LowWaterSize

	// HeaderBytes is reserved at the front of every region for the allocator state.
	HeaderBytes = LowWaterEnd

	// MaxAlign is the largest alignment any primitive value needs on the
	// platforms we care about.
	MaxAlign = 8

	positionUninitialized = 0
)

var (
	ErrRegionTooSmall    = errors.New("arena: the region is too small to hold the allocator header")
	ErrRegionCorrupt     = errors.New("arena: the stored position is outside the region")
	ErrOutOfMemory       = errors.New("arena: out of memory")
	ErrBadAlignment      = errors.New("arena: alignment must be a positive power of two")
	ErrBadSize           = errors.New("arena: allocation size must not be negative")
	ErrForeignCheckpoint = errors.New("arena: the checkpoint was taken from a different region")
	ErrCheckpointInvalid = errors.New("arena: the checkpoint position is outside the region")
)

// Arena is a downward growing bump allocator. It is not go routine safe.
type Arena struct {
	region []byte
	base   uintptr
}

// Checkpoint is a snapshot of the bump position of one specific region.
type Checkpoint struct {
	base     uintptr
	size     int
	position uint64
}

// Position returns the captured bump position, as an offset in the region.
func (c Checkpoint) Position() uint64 { return c.position }

// Usage reports the occupancy of the region. Sizes exclude the header.
type Usage struct {
	Capacity uint64
	Used     uint64
	Peak     uint64
}

// New wraps region. The region should be zero filled, a region that already
// carries a valid header (from an earlier Arena over the same bytes in the
// same invocation) resumes from the stored position.
func New(region []byte) (*Arena, error) {
	if len(region) < HeaderBytes {
		return nil, fmt.Errorf("%w: %d < %d", ErrRegionTooSmall, len(region), HeaderBytes)
	}
	a := &Arena{
		region: region,
		base:   uintptr(unsafe.Pointer(unsafe.SliceData(region))),
	}
	return a, nil
}

// Alloc returns size bytes whose address is a multiple of align.
//
// The bytes are not cleared. Callers that need zeroed memory must clear it, or
// rely on the region having been zeroed when it was last used.
func (a *Arena) Alloc(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, ErrBadSize
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}

	pos, err := a.position()
	if err != nil {
		return nil, err
	}
	remaining := pos - HeaderBytes

	if uint64(size) > remaining {
		return nil, fmt.Errorf(
			"%w: requested %d bytes (align %d), %d remaining", ErrOutOfMemory, size, align, remaining)
	}
	start := pos - uint64(size)

	// Align the absolute address down, growing further into the free space.
	pad := uint64((a.base + uintptr(start)) & uintptr(align-1))
	if pad > start-HeaderBytes {
		return nil, fmt.Errorf(
			"%w: requested %d bytes (align %d), %d remaining", ErrOutOfMemory, size, align, remaining)
	}
	start -= pad

	a.setPosition(start)
	end := start + uint64(size)
	return a.region[start:end:end], nil
}

// Free is a no-op. Memory is only reclaimed by Rollback.
func (a *Arena) Free([]byte) {}

// Checkpoint captures the current bump position.
func (a *Arena) Checkpoint() (Checkpoint, error) {
	pos, err := a.position()
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{base: a.base, size: len(a.region), position: pos}, nil
}

// Rollback restores the bump position captured by c, reclaiming everything
// allocated since. No slice allocated after c may be used once this returns.
func (a *Arena) Rollback(c Checkpoint) error {
	if c.base != a.base || c.size != len(a.region) {
		return ErrForeignCheckpoint
	}
	if c.position < HeaderBytes || c.position > uint64(len(a.region)) {
		return fmt.Errorf("%w: %d", ErrCheckpointInvalid, c.position)
	}
	binary.LittleEndian.PutUint64(a.region[PositionFirstByte:PositionEnd], c.position)
	return nil
}

// Remaining returns the number of bytes available for allocation, ignoring alignment.
func (a *Arena) Remaining() uint64 {
	pos, err := a.position()
	if err != nil {
		return 0
	}
	return pos - HeaderBytes
}

// Usage reports capacity, current use and the high water mark of use.
func (a *Arena) Usage() Usage {
	size := uint64(len(a.region))
	u := Usage{Capacity: size - HeaderBytes}
	pos, err := a.position()
	if err != nil {
		return u
	}
	u.Used = size - pos
	u.Peak = size - binary.LittleEndian.Uint64(a.region[LowWaterFirstByte:LowWaterEnd])
	return u
}

// position reads the bump position, initializing the header on first use.
func (a *Arena) position() (uint64, error) {
	size := uint64(len(a.region))
	pos := binary.LittleEndian.Uint64(a.region[PositionFirstByte:PositionEnd])
	if pos == positionUninitialized {
		binary.LittleEndian.PutUint64(a.region[PositionFirstByte:PositionEnd], size)
		binary.LittleEndian.PutUint64(a.region[LowWaterFirstByte:LowWaterEnd], size)
		return size, nil
	}
	if pos < HeaderBytes || pos > size {
		return 0, fmt.Errorf("%w: %d", ErrRegionCorrupt, pos)
	}
	return pos, nil
}

func (a *Arena) setPosition(pos uint64) {
	binary.LittleEndian.PutUint64(a.region[PositionFirstByte:PositionEnd], pos)
	if pos < binary.LittleEndian.Uint64(a.region[LowWaterFirstByte:LowWaterEnd]) {
		binary.LittleEndian.PutUint64(a.region[LowWaterFirstByte:LowWaterEnd], pos)
	}
}
