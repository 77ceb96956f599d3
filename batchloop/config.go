package batchloop

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-changelog/changelog"
	"github.com/forestrie/go-changelog/emitter"
	"github.com/forestrie/go-changelog/scratch"
)

const (
	DefaultTreeHeight            = 26
	DefaultLeavesPerBatch        = 10
	DefaultBatchCount            = 3
	DefaultSerializeCapacity     = 10240
	DefaultChannelMaxMessageSize = 10240
)

var (
	ErrInvalidConfig = errors.New("batchloop: invalid configuration")
	// ErrBatchTooLarge is the configuration time counterpart of
	// changelog.ErrEncodingOverflow.
	ErrBatchTooLarge = errors.New("batchloop: a full batch does not fit the serialize capacity")
)

// Config fixes the shape of one invocation.
type Config struct {
	TreeHeight            int
	LeavesPerBatch        int
	BatchCount            int
	SerializeCapacity     int
	ChannelMaxMessageSize int

	TreeID     changelog.Identity
	ChannelID  changelog.Identity
	Authorizer changelog.Identity
}

func DefaultConfig() Config {
	return Config{
		TreeHeight:            DefaultTreeHeight,
		LeavesPerBatch:        DefaultLeavesPerBatch,
		BatchCount:            DefaultBatchCount,
		SerializeCapacity:     DefaultSerializeCapacity,
		ChannelMaxMessageSize: DefaultChannelMaxMessageSize,
		ChannelID:             emitter.LogWrapperID,
	}
}

// Validate checks the dimensions and that the serialize slot can never
// produce a message larger than the channel accepts. It does not check that
// a batch fits the slot, see CheckEncodedSize.
func (c Config) Validate() error {
	if c.TreeHeight < 1 || c.TreeHeight > changelog.MaxHeight {
		return fmt.Errorf("%w: tree height %d not in [1, %d]", ErrInvalidConfig, c.TreeHeight, changelog.MaxHeight)
	}
	if c.LeavesPerBatch < 1 {
		return fmt.Errorf("%w: leaves per batch %d", ErrInvalidConfig, c.LeavesPerBatch)
	}
	if uint64(c.LeavesPerBatch) > uint64(1)<<c.TreeHeight {
		return fmt.Errorf("%w: %d leaves per batch exceeds the %d leaves of the tree",
			ErrInvalidConfig, c.LeavesPerBatch, uint64(1)<<c.TreeHeight)
	}
	if c.BatchCount < 1 {
		return fmt.Errorf("%w: batch count %d", ErrInvalidConfig, c.BatchCount)
	}
	if c.SerializeCapacity < 1 {
		return fmt.Errorf("%w: serialize capacity %d", ErrInvalidConfig, c.SerializeCapacity)
	}
	if c.ChannelMaxMessageSize < 1 {
		return fmt.Errorf("%w: channel max message size %d", ErrInvalidConfig, c.ChannelMaxMessageSize)
	}
	if c.SerializeCapacity > c.ChannelMaxMessageSize {
		return fmt.Errorf("%w: serialize capacity %d exceeds the channel limit %d",
			ErrInvalidConfig, c.SerializeCapacity, c.ChannelMaxMessageSize)
	}
	return nil
}

// CheckEncodedSize asserts a fully populated batch fits the serialize slot.
// Run does not call it, a configuration that fails here fails the first
// Serialize step instead.
func (c Config) CheckEncodedSize() error {
	if need := c.EncodedBatchSize(); need > c.SerializeCapacity {
		return fmt.Errorf("%w: need %d bytes, capacity %d", ErrBatchTooLarge, need, c.SerializeCapacity)
	}
	return nil
}

// EncodedBatchSize is the exact size of every message the invocation emits.
func (c Config) EncodedBatchSize() int {
	return changelog.EncodedBatchSize(c.TreeHeight, c.LeavesPerBatch)
}

// RegionBytes is the region size the invocation needs.
func (c Config) RegionBytes() int {
	return scratch.RegionBytes(c.TreeHeight, c.LeavesPerBatch, c.SerializeCapacity)
}

// Sequence returns the tree change sequence number of leaf j in batch.
// Sequences start at 1 and increase by one per record over the invocation.
func (c Config) Sequence(batch, j int) uint64 {
	return uint64(batch)*uint64(c.LeavesPerBatch) + uint64(j) + 1
}
