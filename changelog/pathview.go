package changelog

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// PathView interprets a borrowed byte slot as a sequence of PathNodes.
//
// The view never copies the slot. The accessors do not bounds check the index
// beyond what slicing does, an index outside [0, Len()) panics.
type PathView struct {
	slot []byte
	n    int
}

// NewPathView checks that slot holds exactly height nodes and is aligned for
// them. The returned view has its capacity clamped to the slot so it can not
// read past it.
func NewPathView(slot []byte, height int) (PathView, error) {
	if height < 0 || len(slot) != height*PathNodeBytes {
		return PathView{}, fmt.Errorf(
			"%w: have %d bytes, need %d for height %d", ErrPathSlotSize, len(slot), height*PathNodeBytes, height)
	}
	if len(slot) > 0 && uintptr(unsafe.Pointer(unsafe.SliceData(slot)))%PathNodeAlign != 0 {
		return PathView{}, ErrPathSlotAlignment
	}
	return PathView{slot: slot[:len(slot):len(slot)], n: height}, nil
}

// Len is the number of nodes in the path.
func (v PathView) Len() int { return v.n }

// Bytes returns the borrowed slot.
func (v PathView) Bytes() []byte { return v.slot }

func (v PathView) node(i int) []byte {
	off := i * PathNodeBytes
	return v.slot[off : off+PathNodeBytes]
}

// Hash returns the hash of node i. The bytes are borrowed from the slot.
func (v PathView) Hash(i int) []byte {
	return v.node(i)[NodeHashFirstByte:NodeHashEnd]
}

// Position returns the heap position of node i.
func (v PathView) Position(i int) uint32 {
	return binary.LittleEndian.Uint32(v.node(i)[NodePositionFirstByte:NodePositionEnd])
}

// Node returns a copy of node i.
func (v PathView) Node(i int) PathNode {
	var n PathNode
	b := v.node(i)
	copy(n.Hash[:], b[NodeHashFirstByte:NodeHashEnd])
	n.Position = binary.LittleEndian.Uint32(b[NodePositionFirstByte:NodePositionEnd])
	return n
}

// SetNode overwrites node i in the slot.
func (v PathView) SetNode(i int, n PathNode) {
	n.put(v.node(i))
}

// SetHash overwrites only the hash of node i.
func (v PathView) SetHash(i int, hash []byte) {
	copy(v.node(i)[NodeHashFirstByte:NodeHashEnd], hash)
}

// SetPosition overwrites only the position of node i.
func (v PathView) SetPosition(i int, position uint32) {
	binary.LittleEndian.PutUint32(v.node(i)[NodePositionFirstByte:NodePositionEnd], position)
}
