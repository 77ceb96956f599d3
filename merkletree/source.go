package merkletree

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/forestrie/go-changelog/changelog"
)

// LeafFunc derives the leaf value written for a change sequence number.
type LeafFunc func(seq uint64) [HashBytes]byte

// Source applies one leaf update per call and writes the change path. It
// satisfies the batch loop's path source.
type Source struct {
	Tree *Tree
	Leaf LeafFunc

	// Roots, when not nil, receives the root after every update.
	Roots func(seq uint64, root [HashBytes]byte)
}

func NewSource(tree *Tree, leaf LeafFunc) *Source {
	if leaf == nil {
		leaf = SequenceLeaf
	}
	return &Source{Tree: tree, Leaf: leaf}
}

func (s *Source) WritePath(leafIndex uint32, seq uint64, path changelog.PathView) error {
	root, err := s.Tree.Update(leafIndex, s.Leaf(seq), path)
	if err != nil {
		return err
	}
	if s.Roots != nil {
		s.Roots(seq, root)
	}
	return nil
}

// SequenceLeaf is SHA256(BE64(seq)), a deterministic leaf for benchmarks and
// tests.
func SequenceLeaf(seq uint64) [HashBytes]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return sha256.Sum256(b[:])
}
