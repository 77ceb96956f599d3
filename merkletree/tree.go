package merkletree

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"github.com/forestrie/go-changelog/changelog"
)

const HashBytes = 32

var (
	ErrBadHeight    = errors.New("merkletree: height must be in the range [1, 31]")
	ErrLeafIndex    = errors.New("merkletree: leaf index outside the tree")
	ErrPathHeight   = errors.New("merkletree: path length does not match the tree height")
	ErrProofLength  = errors.New("merkletree: proof length does not match the tree height")
	ErrPathPosition = errors.New("merkletree: path node is not at the expected position")
	ErrPathInvalid  = errors.New("merkletree: path node does not hash from its child and sibling")
	ErrRootMismatch = errors.New("merkletree: path does not lead to the expected root")
)

type Tree struct {
	height int
	nodes  map[uint64][HashBytes]byte
	root   [HashBytes]byte
	hasher hash.Hash
	sum    []byte
}

func New(height int) (*Tree, error) {
	if height < 1 || height > changelog.MaxHeight {
		return nil, fmt.Errorf("%w: %d", ErrBadHeight, height)
	}
	return &Tree{
		height: height,
		nodes:  make(map[uint64][HashBytes]byte),
		hasher: sha256.New(),
		sum:    make([]byte, 0, HashBytes),
	}, nil
}

func (t *Tree) Height() int { return t.height }

func (t *Tree) Root() [HashBytes]byte { return t.root }

// LeafCount is the number of leaf positions, written or not.
func (t *Tree) LeafCount() uint64 { return uint64(1) << t.height }

// Node returns the value at heap position p, the zero hash if it is empty.
func (t *Tree) Node(p uint64) [HashBytes]byte { return t.nodes[p] }

// LeafPosition returns the heap position of leafIndex.
func (t *Tree) LeafPosition(leafIndex uint32) uint64 {
	return t.LeafCount() + uint64(leafIndex)
}

// Update sets leaf leafIndex and writes the changed path into path, leaf
// first. It returns the new root.
func (t *Tree) Update(leafIndex uint32, leaf [HashBytes]byte, path changelog.PathView) ([HashBytes]byte, error) {
	if uint64(leafIndex) >= t.LeafCount() {
		return [HashBytes]byte{}, fmt.Errorf("%w: %d >= %d", ErrLeafIndex, leafIndex, t.LeafCount())
	}
	if path.Len() != t.height {
		return [HashBytes]byte{}, fmt.Errorf("%w: %d != %d", ErrPathHeight, path.Len(), t.height)
	}

	p := t.LeafPosition(leafIndex)
	t.set(p, leaf)
	path.SetNode(0, changelog.PathNode{Hash: leaf, Position: uint32(p)})

	for k := 1; k <= t.height; k++ {
		p >>= 1
		v := t.interior(p, t.nodes[2*p], t.nodes[2*p+1])
		t.set(p, v)
		if k < t.height {
			path.SetNode(k, changelog.PathNode{Hash: v, Position: uint32(p)})
		}
	}
	t.root = t.nodes[1]
	return t.root, nil
}

// Proof returns the sibling of every path node, leaf level first.
func (t *Tree) Proof(leafIndex uint32) ([][HashBytes]byte, error) {
	if uint64(leafIndex) >= t.LeafCount() {
		return nil, fmt.Errorf("%w: %d >= %d", ErrLeafIndex, leafIndex, t.LeafCount())
	}
	proof := make([][HashBytes]byte, t.height)
	p := t.LeafPosition(leafIndex)
	for k := 0; k < t.height; k++ {
		proof[k] = t.nodes[p^1]
		p >>= 1
	}
	return proof, nil
}

// VerifyPath checks that a decoded change path is consistent with the
// sibling proof and leads to root.
func VerifyPath(height int, leafIndex uint32, path []changelog.PathNode, proof [][HashBytes]byte, root [HashBytes]byte) error {
	if len(path) != height {
		return fmt.Errorf("%w: %d != %d", ErrPathHeight, len(path), height)
	}
	if len(proof) != height {
		return fmt.Errorf("%w: %d != %d", ErrProofLength, len(proof), height)
	}
	t := Tree{hasher: sha256.New(), sum: make([]byte, 0, HashBytes)}

	for k := 0; k < height; k++ {
		if want := changelog.NodePosition(height, leafIndex, k); path[k].Position != want {
			return fmt.Errorf("%w: level %d has %d, want %d", ErrPathPosition, k, path[k].Position, want)
		}
	}

	var v [HashBytes]byte
	for k := 0; k < height; k++ {
		p := uint64(path[k].Position)
		left, right := path[k].Hash, proof[k]
		if p&1 == 1 {
			left, right = right, left
		}
		v = t.interior(p>>1, left, right)
		if k+1 < height && v != path[k+1].Hash {
			return fmt.Errorf("%w: level %d", ErrPathInvalid, k+1)
		}
	}
	if v != root {
		return ErrRootMismatch
	}
	return nil
}

func (t *Tree) set(p uint64, v [HashBytes]byte) {
	if v == ([HashBytes]byte{}) {
		delete(t.nodes, p)
		return
	}
	t.nodes[p] = v
}

func (t *Tree) interior(p uint64, left, right [HashBytes]byte) [HashBytes]byte {
	var out [HashBytes]byte
	if left == out && right == out {
		return out
	}
	t.hasher.Reset()
	hashWriteUint64(t.hasher, p)
	t.hasher.Write(left[:])
	t.hasher.Write(right[:])
	t.sum = t.hasher.Sum(t.sum[:0])
	copy(out[:], t.sum)
	return out
}

// hashWriteUint64 writes value big endian, most significant byte first.
func hashWriteUint64(hasher hash.Hash, value uint64) {
	b := [8]byte{}
	binary.BigEndian.PutUint64(b[:], value)
	hasher.Write(b[:])
}
