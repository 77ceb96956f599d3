package batchloop

import (
	"context"
	"errors"
	"testing"

	"github.com/forestrie/go-changelog/arena"
	"github.com/forestrie/go-changelog/changelog"
	"github.com/forestrie/go-changelog/changelogtesting"
	"github.com/forestrie/go-changelog/emitter"
	"github.com/forestrie/go-changelog/merkletree"
	"github.com/forestrie/go-changelog/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invocation struct {
	cfg     Config
	region  []byte
	channel *sink.MemoryChannel
	tree    *merkletree.Tree
	source  PathSource
	ctrl    *Controller
}

func newInvocation(t *testing.T, cfg Config, opts ...Option) *invocation {
	t.Helper()
	inv := &invocation{cfg: cfg}
	inv.region = make([]byte, cfg.RegionBytes())
	inv.channel = sink.NewMemoryChannel(cfg.ChannelMaxMessageSize)

	var err error
	inv.tree, err = merkletree.New(cfg.TreeHeight)
	require.NoError(t, err)
	inv.source = merkletree.NewSource(inv.tree, changelogtesting.SeededLeaf(1))
	inv.ctrl, err = New(cfg, inv.region, emitter.New(inv.channel, emitter.LogWrapperID), inv.source, opts...)
	require.NoError(t, err)
	return inv
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.CheckEncodedSize())
	assert.Equal(t, 26, cfg.TreeHeight)
	assert.Equal(t, 10, cfg.LeavesPerBatch)
	assert.Equal(t, 3, cfg.BatchCount)
	assert.Equal(t, 10240, cfg.SerializeCapacity)
	assert.Equal(t, 9894, cfg.EncodedBatchSize())
	assert.Equal(t, emitter.LogWrapperID, cfg.ChannelID)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero height", func(c *Config) { c.TreeHeight = 0 }},
		{"height too large", func(c *Config) { c.TreeHeight = changelog.MaxHeight + 1 }},
		{"zero leaves", func(c *Config) { c.LeavesPerBatch = 0 }},
		{"more leaves than the tree has", func(c *Config) { c.TreeHeight = 3 }},
		{"zero batches", func(c *Config) { c.BatchCount = 0 }},
		{"zero capacity", func(c *Config) { c.SerializeCapacity = 0 }},
		{"zero channel max", func(c *Config) { c.ChannelMaxMessageSize = 0 }},
		{"capacity above channel max", func(c *Config) { c.SerializeCapacity = c.ChannelMaxMessageSize + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigCheckEncodedSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SerializeCapacity = cfg.EncodedBatchSize()
	require.NoError(t, cfg.CheckEncodedSize())

	cfg.SerializeCapacity--
	require.NoError(t, cfg.Validate(), "an undersized slot is not a runtime validation failure")
	require.ErrorIs(t, cfg.CheckEncodedSize(), ErrBatchTooLarge)
}

func TestSequence(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint64(1), cfg.Sequence(0, 0))
	assert.Equal(t, uint64(10), cfg.Sequence(0, 9))
	assert.Equal(t, uint64(11), cfg.Sequence(1, 0))
	assert.Equal(t, uint64(30), cfg.Sequence(2, 9))
}

func TestRunEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	inv := newInvocation(t, cfg)
	assert.Equal(t, StateIdle, inv.ctrl.State())

	res, err := inv.ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, inv.ctrl.State())

	msgs := inv.channel.Data()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Len(t, m, cfg.EncodedBatchSize())
		assert.LessOrEqual(t, len(m), cfg.SerializeCapacity)
	}

	batches := changelogtesting.DecodeAll(t, msgs)
	for b, records := range batches {
		require.Len(t, records, 10)
		for j, r := range records {
			assert.Equal(t, changelog.TagV1, r.Tag)
			assert.Equal(t, uint32(j), r.LeafIndex)
			assert.Equal(t, cfg.Sequence(b, j), r.Sequence)
			require.Len(t, r.Paths, 1)
			require.Len(t, r.Paths[0], 26)
			for k, node := range r.Paths[0] {
				assert.Equal(t, changelog.NodePosition(26, uint32(j), k), node.Position)
			}
			assert.Equal(t, changelogtesting.SeededLeaf(1)(r.Sequence), r.Paths[0][0].Hash)
		}
	}
	require.NoError(t, changelog.CheckOrdering(batches))

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 30, res.Records)
	assert.Equal(t, int64(3*cfg.EncodedBatchSize()), res.Bytes)
	assert.Equal(t, uint64(30), res.LastSequence)
	assert.Equal(t, changelogtesting.Digest(msgs), res.Digest)

	// the authorizer is forwarded as configured
	for _, m := range inv.channel.Messages {
		assert.Equal(t, cfg.Authorizer, m.Authorizer)
	}
}

func TestRunPathsVerifyAgainstTree(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TreeHeight = 8
	cfg.LeavesPerBatch = 4
	cfg.BatchCount = 5
	cfg.SerializeCapacity = cfg.EncodedBatchSize()

	inv := newInvocation(t, cfg)
	_, err := inv.ctrl.Run(context.Background())
	require.NoError(t, err)

	// only the most recent update's path is current for the final root
	batches := changelogtesting.DecodeAll(t, inv.channel.Data())
	last := batches[len(batches)-1]
	for _, r := range last[len(last)-1:] {
		proof, err := inv.tree.Proof(r.LeafIndex)
		require.NoError(t, err)
		require.NoError(t, merkletree.VerifyPath(8, r.LeafIndex, r.Paths[0], proof, inv.tree.Root()))
	}
}

func TestRunEncodingOverflowEmitsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SerializeCapacity = cfg.EncodedBatchSize() - 1
	require.ErrorIs(t, cfg.CheckEncodedSize(), ErrBatchTooLarge)

	inv := newInvocation(t, cfg)
	res, err := inv.ctrl.Run(context.Background())
	require.ErrorIs(t, err, changelog.ErrEncodingOverflow)

	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 0, berr.Batch)
	assert.Equal(t, StateSerialize, berr.State)
	assert.Equal(t, StateFailed, inv.ctrl.State())

	assert.Empty(t, inv.channel.Messages)
	assert.Equal(t, Result{}, res)
}

// zeroCheckingSource fails the test if a path slot holds anything when it is
// handed out.
type zeroCheckingSource struct {
	t     *testing.T
	inner PathSource
	calls int
}

func (s *zeroCheckingSource) WritePath(leafIndex uint32, seq uint64, path changelog.PathView) error {
	s.calls++
	assert.True(s.t, changelogtesting.AllZero(path.Bytes()), "slot %d for sequence %d is not zero", leafIndex, seq)
	return s.inner.WritePath(leafIndex, seq, path)
}

func TestRunZeroesBetweenBatches(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchCount = 6

	tree, err := merkletree.New(cfg.TreeHeight)
	require.NoError(t, err)
	src := &zeroCheckingSource{t: t, inner: merkletree.NewSource(tree, nil)}

	channel := sink.NewMemoryChannel(cfg.ChannelMaxMessageSize)
	region := make([]byte, cfg.RegionBytes())
	ctrl, err := New(cfg, region, emitter.New(channel, emitter.LogWrapperID), src)
	require.NoError(t, err)

	_, err = ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60, src.calls)

	// after the last batch the arena holds only the scratch buffers, and they
	// are zero again.
	u := ctrl.Usage()
	used := region[len(region)-int(u.Used):]
	assert.True(t, changelogtesting.AllZero(used))
}

func TestRunPeakUsageIsIndependentOfBatchCount(t *testing.T) {
	peak := func(batches int) arena.Usage {
		cfg := DefaultConfig()
		cfg.BatchCount = batches
		inv := newInvocation(t, cfg)
		_, err := inv.ctrl.Run(context.Background())
		require.NoError(t, err)
		return inv.ctrl.Usage()
	}
	one, many := peak(1), peak(20)
	assert.Equal(t, one.Peak, many.Peak)
	assert.Equal(t, one.Used, many.Used)
	assert.Less(t, many.Used, many.Peak, "record frames must be reclaimed after each batch")
	assert.LessOrEqual(t, many.Peak, many.Capacity)
}

func TestRunRegionTooSmall(t *testing.T) {
	cfg := DefaultConfig()
	channel := sink.NewMemoryChannel(cfg.ChannelMaxMessageSize)
	tree, err := merkletree.New(cfg.TreeHeight)
	require.NoError(t, err)

	region := make([]byte, cfg.RegionBytes()/2)
	ctrl, err := New(cfg, region, emitter.New(channel, emitter.LogWrapperID), merkletree.NewSource(tree, nil))
	require.NoError(t, err)

	_, err = ctrl.Run(context.Background())
	require.ErrorIs(t, err, arena.ErrOutOfMemory)
	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, SetupBatch, berr.Batch)
	assert.Empty(t, channel.Messages)
}

func TestRunFramesExhaustRegion(t *testing.T) {
	cfg := DefaultConfig()
	channel := sink.NewMemoryChannel(cfg.ChannelMaxMessageSize)
	tree, err := merkletree.New(cfg.TreeHeight)
	require.NoError(t, err)

	// room for the scratch buffers but not for a full batch of frames
	region := make([]byte, cfg.RegionBytes()-cfg.LeavesPerBatch*(changelog.RecordFrameBytes+changelog.RecordFrameAlign))
	ctrl, err := New(cfg, region, emitter.New(channel, emitter.LogWrapperID), merkletree.NewSource(tree, nil))
	require.NoError(t, err)

	_, err = ctrl.Run(context.Background())
	require.ErrorIs(t, err, arena.ErrOutOfMemory)
	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 0, berr.Batch)
	assert.Equal(t, StateBuildRecords, berr.State)
	assert.Empty(t, channel.Messages)
}

func TestRunInvalidChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelID = changelog.Identity{1}

	inv := newInvocation(t, cfg)
	_, err := inv.ctrl.Run(context.Background())
	require.ErrorIs(t, err, emitter.ErrInvalidChannel)
	assert.Empty(t, inv.channel.Messages)
}

func TestRunChannelRejected(t *testing.T) {
	cfg := DefaultConfig()
	inv := newInvocation(t, cfg)
	// the real channel limit is below what the configuration promised
	inv.channel.MaxMessageSize = cfg.EncodedBatchSize() - 1

	_, err := inv.ctrl.Run(context.Background())
	require.ErrorIs(t, err, emitter.ErrChannelRejected)
	require.ErrorIs(t, err, sink.ErrMessageTooLarge)
	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, StateEmit, berr.State)
}

func TestRunPartialEmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchCount = 3

	var accepted [][]byte
	unavailable := errors.New("unavailable")
	ch := emitter.ChannelFunc(func(_ context.Context, msg []byte, _ changelog.Identity) error {
		if len(accepted) == 1 {
			return unavailable
		}
		accepted = append(accepted, append([]byte(nil), msg...))
		return nil
	})
	tree, err := merkletree.New(cfg.TreeHeight)
	require.NoError(t, err)
	ctrl, err := New(cfg, make([]byte, cfg.RegionBytes()), emitter.New(ch, emitter.LogWrapperID), merkletree.NewSource(tree, nil))
	require.NoError(t, err)

	res, err := ctrl.Run(context.Background())
	require.ErrorIs(t, err, unavailable)
	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 1, berr.Batch)

	// the result describes exactly what reached the channel
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, uint64(10), res.LastSequence)
	assert.Equal(t, changelogtesting.Digest(accepted), res.Digest)
}

func TestRunSourceError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TreeHeight = 4
	cfg.SerializeCapacity = cfg.EncodedBatchSize()

	boom := errors.New("boom")
	src := pathSourceFunc(func(leafIndex uint32, seq uint64, path changelog.PathView) error {
		if seq == 13 {
			return boom
		}
		return nil
	})
	channel := sink.NewMemoryChannel(cfg.ChannelMaxMessageSize)
	ctrl, err := New(cfg, make([]byte, cfg.RegionBytes()), emitter.New(channel, emitter.LogWrapperID), src)
	require.NoError(t, err)

	_, err = ctrl.Run(context.Background())
	require.ErrorIs(t, err, boom)
	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 1, berr.Batch)
	assert.Equal(t, StateBuildRecords, berr.State)
	assert.Len(t, channel.Messages, 1)
}

func TestRunCancelled(t *testing.T) {
	inv := newInvocation(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.ctrl.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, inv.channel.Messages)
}

func TestRunOnlyOnce(t *testing.T) {
	inv := newInvocation(t, DefaultConfig())
	_, err := inv.ctrl.Run(context.Background())
	require.NoError(t, err)

	_, err = inv.ctrl.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRun)
	assert.Len(t, inv.channel.Messages, 3)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchCount = 0
	_, err := New(cfg, make([]byte, 1024), emitter.New(sink.NewMemoryChannel(0), emitter.LogWrapperID), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(DefaultConfig(), make([]byte, 3), emitter.New(sink.NewMemoryChannel(0), emitter.LogWrapperID), nil)
	require.ErrorIs(t, err, arena.ErrRegionTooSmall)
}

type pathSourceFunc func(leafIndex uint32, seq uint64, path changelog.PathView) error

func (f pathSourceFunc) WritePath(leafIndex uint32, seq uint64, path changelog.PathView) error {
	return f(leafIndex, seq, path)
}
