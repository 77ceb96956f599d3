package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dustin/go-humanize"
	"github.com/forestrie/go-changelog/batchloop"
	"github.com/forestrie/go-changelog/changelog"
	"github.com/forestrie/go-changelog/emitter"
	"github.com/forestrie/go-changelog/merkletree"
	"github.com/forestrie/go-changelog/seal"
	"github.com/forestrie/go-changelog/sink"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/veraison/go-cose"
)

const (
	sinkMemory = "memory"
	sinkFile   = "file"
	sinkBlob   = "blob"

	sealIssuer  = "changelogbench"
	sealSubject = "changelog-invocation"
)

var errUsage = errors.New("invalid arguments")

type runParams struct {
	Config    batchloop.Config
	Sink      string
	Out       string
	Container string
	Seal      bool
	SealOut   string
	Log       logger.Logger
}

func newRunCmd() *cobra.Command {
	p := runParams{Config: batchloop.DefaultConfig()}
	var logLevel, treeID, authorizer string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one invocation and logs the result.",
	}
	flags := cmd.Flags()
	flags.IntVar(&p.Config.TreeHeight, "height", batchloop.DefaultTreeHeight, "Tree height, the number of nodes in each path.")
	flags.IntVar(&p.Config.LeavesPerBatch, "leaves", batchloop.DefaultLeavesPerBatch, "Leaf updates per batch.")
	flags.IntVar(&p.Config.BatchCount, "batches", batchloop.DefaultBatchCount, "Batches in the invocation.")
	flags.IntVar(&p.Config.SerializeCapacity, "capacity", batchloop.DefaultSerializeCapacity, "Serialize slot capacity in bytes.")
	flags.IntVar(&p.Config.ChannelMaxMessageSize, "channel-max", batchloop.DefaultChannelMaxMessageSize, "Largest message the channel accepts.")
	flags.StringVar(&p.Sink, "sink", sinkMemory, "Channel to emit to: memory, file or blob.")
	flags.StringVar(&p.Out, "out", "", "Changelog file path, required for the file sink.")
	flags.StringVar(&p.Container, "container", "", "Blob container on the storage emulator, required for the blob sink.")
	flags.BoolVar(&p.Seal, "seal", false, "Seal the invocation with an ephemeral P-256 key.")
	flags.StringVar(&p.SealOut, "seal-out", "", "Write the seal to this file, implies --seal.")
	flags.StringVar(&treeID, "tree-id", "", "Tree identity, 64 hex characters.")
	flags.StringVar(&authorizer, "authorizer", "", "Authorizer identity, 64 hex characters.")
	flags.StringVar(&logLevel, "log-level", "INFO", "Log level.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var err error
		if treeID != "" {
			if p.Config.TreeID, err = changelog.ParseIdentity(treeID); err != nil {
				return fmt.Errorf("%w: tree-id: %v", errUsage, err)
			}
		}
		if authorizer != "" {
			if p.Config.Authorizer, err = changelog.ParseIdentity(authorizer); err != nil {
				return fmt.Errorf("%w: authorizer: %v", errUsage, err)
			}
		}
		if p.SealOut != "" {
			p.Seal = true
		}
		if err = p.validate(); err != nil {
			return err
		}

		logger.New(logLevel)
		defer logger.OnExit()
		p.Log = logger.Sugar.WithServiceName("changelogbench")

		_, err = run(cmd.Context(), p)
		return err
	}
	return cmd
}

func (p runParams) validate() error {
	switch p.Sink {
	case sinkMemory:
	case sinkFile:
		if p.Out == "" {
			return fmt.Errorf("%w: --out is required for the file sink", errUsage)
		}
	case sinkBlob:
		if p.Container == "" {
			return fmt.Errorf("%w: --container is required for the blob sink", errUsage)
		}
	default:
		return fmt.Errorf("%w: unknown sink %q", errUsage, p.Sink)
	}
	if err := p.Config.Validate(); err != nil {
		return err
	}
	return p.Config.CheckEncodedSize()
}

func run(ctx context.Context, p runParams) (batchloop.Result, error) {
	cfg := p.Config
	invocation := uuid.New()

	channel, closeChannel, err := openChannel(p, invocation)
	if err != nil {
		return batchloop.Result{}, err
	}
	defer func() {
		if cerr := closeChannel(); cerr != nil {
			p.Log.Infof("closing channel: %v", cerr)
		}
	}()

	tree, err := merkletree.New(cfg.TreeHeight)
	if err != nil {
		return batchloop.Result{}, err
	}

	reg := prometheus.NewRegistry()
	observer := batchloop.Observers{
		batchloop.NewLogObserver(p.Log),
		batchloop.NewMetricsObserver(reg),
	}

	region := make([]byte, cfg.RegionBytes())
	ctrl, err := batchloop.New(
		cfg, region, emitter.New(channel, emitter.LogWrapperID), merkletree.NewSource(tree, nil),
		batchloop.WithObserver(observer), batchloop.WithLogger(p.Log))
	if err != nil {
		return batchloop.Result{}, err
	}

	p.Log.Infof("invocation %s: region %s, sink %s", invocation, humanize.Bytes(uint64(len(region))), p.Sink)
	start := time.Now()
	res, err := ctrl.Run(ctx)
	if err != nil {
		return res, err
	}
	duration := time.Since(start)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	usage := ctrl.Usage()
	p.Log.Infof(
		"invocation %s: %d batches, %s records, %s in %v, root %x, arena peak %s, heap %s, gc %s",
		invocation, res.Batches, humanize.Comma(int64(res.Records)), humanize.Bytes(uint64(res.Bytes)), duration,
		tree.Root(), humanize.Bytes(usage.Peak), humanize.Bytes(memStats.Alloc), humanize.Comma(int64(memStats.NumGC)))
	logMetrics(p.Log, reg)

	if p.Seal {
		if err = sealInvocation(p, invocation, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func openChannel(p runParams, invocation uuid.UUID) (emitter.Channel, func() error, error) {
	opts := []sink.Option{sink.WithMaxMessageSize(p.Config.ChannelMaxMessageSize), sink.WithLogger(p.Log)}
	nopClose := func() error { return nil }

	switch p.Sink {
	case sinkFile:
		f, err := os.OpenFile(p.Out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		ch := sink.NewFileChannel(f, info.Size(), opts...)
		return ch, ch.Close, nil

	case sinkBlob:
		store, err := azblob.NewDev(azblob.NewDevConfigFromEnv(), p.Container)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to blob store emulator: %w", err)
		}
		ch := sink.NewBlobChannel(store, invocation, opts...)
		p.Log.Infof("blob prefix %s", ch.InvocationPrefix())
		return ch, nopClose, nil

	default:
		return sink.NewMemoryChannel(p.Config.ChannelMaxMessageSize), nopClose, nil
	}
}

func sealInvocation(p runParams, invocation uuid.UUID, res batchloop.Result) error {
	codec, err := seal.NewCodec()
	if err != nil {
		return err
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return err
	}

	state := seal.InvocationState{
		InvocationID: invocation[:],
		TreeID:       p.Config.TreeID[:],
		Batches:      uint64(res.Batches),
		Records:      uint64(res.Records),
		LastSequence: res.LastSequence,
		Digest:       res.Digest[:],
		Timestamp:    time.Now().UnixMilli(),
	}
	data, err := seal.NewSealer(sealIssuer, codec).Sign1(
		signer, "ephemeral:"+invocation.String(), &key.PublicKey, sealSubject, state, nil)
	if err != nil {
		return err
	}
	p.Log.Infof("invocation %s: sealed, %d bytes, digest %x", invocation, len(data), res.Digest)
	if p.SealOut == "" {
		return nil
	}
	return os.WriteFile(p.SealOut, data, 0o644)
}

func logMetrics(log logger.Logger, reg prometheus.Gatherer) {
	mfs, err := reg.Gather()
	if err != nil {
		log.Infof("gathering metrics: %v", err)
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				log.Infof("metric %s %v", mf.GetName(), m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				log.Infof("metric %s %v", mf.GetName(), m.GetGauge().GetValue())
			}
		}
	}
}
