package batchloop

import (
	"context"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/forestrie/go-changelog/arena"
	"github.com/forestrie/go-changelog/changelog"
	"github.com/forestrie/go-changelog/scratch"
)

var ErrAlreadyRun = errors.New("batchloop: the controller has already run its invocation")

// PathSource writes the change path for one leaf update into path.
type PathSource interface {
	WritePath(leafIndex uint32, seq uint64, path changelog.PathView) error
}

// Emitter forwards one serialized batch.
type Emitter interface {
	Emit(ctx context.Context, msg []byte, channelID, authorizer changelog.Identity) error
}

// Result summarises the batches that were emitted.
type Result struct {
	Batches      int
	Records      int
	Bytes        int64
	LastSequence uint64
	// Digest is SHA256 over every emitted message, in emission order.
	Digest [sha256.Size]byte
}

type Controller struct {
	cfg     Config
	arena   *arena.Arena
	emitter Emitter
	source  PathSource
	opts    Options
	state   State
}

// New prepares an invocation over region, which should be zero filled and at
// least cfg.RegionBytes() long. A short region is reported by Run as
// arena.ErrOutOfMemory.
func New(cfg Config, region []byte, e Emitter, source PathSource, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := arena.New(region)
	if err != nil {
		return nil, err
	}
	o := Options{Observer: NopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	c := &Controller{
		cfg:     cfg,
		arena:   a,
		emitter: e,
		source:  source,
		opts:    o,
		state:   StateIdle,
	}
	return c, nil
}

func (c *Controller) State() State { return c.state }

// Usage reports the arena occupancy.
func (c *Controller) Usage() arena.Usage { return c.arena.Usage() }

// Run executes the invocation. On failure the returned Result covers the
// batches emitted before the failure and the error is a *BatchError.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	var res Result
	if c.state != StateIdle {
		return res, ErrAlreadyRun
	}
	if c.opts.Log != nil {
		c.opts.Log.Infof("invocation: %d batches of %d leaves, height %d, %d byte messages",
			c.cfg.BatchCount, c.cfg.LeavesPerBatch, c.cfg.TreeHeight, c.cfg.EncodedBatchSize())
	}

	bufs, err := scratch.New(c.arena, c.cfg.TreeHeight, c.cfg.LeavesPerBatch, c.cfg.SerializeCapacity)
	if err != nil {
		return res, c.fail(SetupBatch, err)
	}
	builder, err := changelog.NewBuilder(c.arena, c.cfg.TreeHeight, c.cfg.LeavesPerBatch)
	if err != nil {
		return res, c.fail(SetupBatch, err)
	}
	digest := sha256.New()

	for batch := 0; batch < c.cfg.BatchCount; batch++ {
		n, err := c.runBatch(ctx, batch, bufs, builder, digest)
		if err != nil {
			return res, c.fail(batch, err)
		}
		res.Batches++
		res.Records += c.cfg.LeavesPerBatch
		res.Bytes += int64(n)
		res.LastSequence = c.cfg.Sequence(batch, c.cfg.LeavesPerBatch-1)
		digest.Sum(res.Digest[:0])

		c.opts.Observer.BatchEmitted(batch, c.cfg.LeavesPerBatch, n, c.arena.Usage())
	}

	c.state = StateDone
	if c.opts.Log != nil {
		c.opts.Log.Infof("invocation: done, %d records in %d bytes, last sequence %d",
			res.Records, res.Bytes, res.LastSequence)
	}
	return res, nil
}

func (c *Controller) runBatch(
	ctx context.Context, batch int, bufs *scratch.Buffers, builder *changelog.Builder, digest hash.Hash,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.state = StateCheckpoint
	cp, err := c.arena.Checkpoint()
	if err != nil {
		return 0, err
	}
	c.opts.Observer.BatchStarted(batch, c.arena.Usage())

	c.state = StateBuildRecords
	for j := 0; j < c.cfg.LeavesPerBatch; j++ {
		slot, err := bufs.PathSlot(j)
		if err != nil {
			return 0, err
		}
		path, err := changelog.NewPathView(slot, c.cfg.TreeHeight)
		if err != nil {
			return 0, err
		}
		seq := c.cfg.Sequence(batch, j)
		if err = c.source.WritePath(uint32(j), seq, path); err != nil {
			return 0, err
		}
		if _, err = builder.Build(slot, c.cfg.TreeID, seq, uint32(j)); err != nil {
			return 0, err
		}
	}

	c.state = StateSerialize
	n, err := changelog.EncodeBatch(bufs.SerializeSlot(), builder.Records())
	if err != nil {
		return 0, err
	}

	if err = ctx.Err(); err != nil {
		return 0, err
	}
	c.state = StateEmit
	msg := bufs.SerializeSlot()[:n]
	if err = c.emitter.Emit(ctx, msg, c.cfg.ChannelID, c.cfg.Authorizer); err != nil {
		return 0, err
	}
	digest.Write(msg)

	c.state = StateZeroBuffers
	bufs.Zero()

	c.state = StateRollback
	builder.Reset()
	if err = c.arena.Rollback(cp); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Controller) fail(batch int, err error) error {
	state := c.state
	c.state = StateFailed
	c.opts.Observer.Failed(batch, state, err)
	if c.opts.Log != nil {
		c.opts.Log.Infof("invocation: failed: batch %d %s: %v", batch, state, err)
	}
	return &BatchError{Batch: batch, State: state, Err: err}
}
