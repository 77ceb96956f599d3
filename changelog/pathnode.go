package changelog

import "encoding/binary"

const (
	// PathNode slot layout
	//
	// .     | hash      | position |
	// .     | 0      31 | 32     35 |
	// bytes |    32     |    4     |

	NodeHashFirstByte     = 0
	NodeHashSize          = 32
	NodeHashEnd           = NodeHashFirstByte + NodeHashSize
	NodePositionFirstByte = NodeHashEnd
	NodePositionSize      = 4
	NodePositionEnd       = NodePositionFirstByte + NodePositionSize

	PathNodeBytes = NodePositionEnd
	// PathNodeAlign is the alignment of the widest field, the u32 position.
	PathNodeAlign = 4

	// MaxHeight keeps every heap position of the tree inside a u32.
	MaxHeight = 31
)

// PathNode is one node on the path from a leaf towards the root.
type PathNode struct {
	Hash     [NodeHashSize]byte
	Position uint32
}

// NodePosition returns the 1 based heap position of the level k node on the
// path of leafIndex in a tree of the given height. Level 0 is the leaf.
func NodePosition(height int, leafIndex uint32, k int) uint32 {
	return uint32(((uint64(1) << height) + uint64(leafIndex)) >> k)
}

// PathBytes is the size of a slot holding a complete path for height.
func PathBytes(height int) int {
	return height * PathNodeBytes
}

func (n PathNode) put(b []byte) {
	copy(b[NodeHashFirstByte:NodeHashEnd], n.Hash[:])
	binary.LittleEndian.PutUint32(b[NodePositionFirstByte:NodePositionEnd], n.Position)
}
