package sink

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/forestrie/go-changelog/changelog"
	"github.com/google/uuid"
)

const (
	V1ChangelogPrefix = "v1/changelogs"
	BlobNameFmt       = "%016d.bin"

	TagAuthorizer   = "changelogauthorizer"
	TagMessageIndex = "changelogmessage"
)

// BlobPutter is the part of the azblob Storer the channel needs.
type BlobPutter interface {
	Put(ctx context.Context, identity string, source io.ReadSeekCloser, opts ...azblob.Option) (*azblob.WriteResponse, error)
}

// BlobChannel writes each message to its own blob under a prefix unique to
// the invocation. Blobs are only ever created, an existing blob at the
// target path is never overwritten.
type BlobChannel struct {
	store      BlobPutter
	opts       Options
	invocation uuid.UUID
	next       uint64
}

func NewBlobChannel(store BlobPutter, invocation uuid.UUID, opts ...Option) *BlobChannel {
	return &BlobChannel{
		store:      store,
		opts:       newOptions(opts...),
		invocation: invocation,
	}
}

// InvocationPrefix is the blob path prefix shared by every message of the
// invocation, including the trailing slash.
func (c *BlobChannel) InvocationPrefix() string {
	return fmt.Sprintf("%s/%s/", c.opts.BlobPrefix, c.invocation)
}

// BlobPath returns the path of the i'th message of the invocation.
func (c *BlobChannel) BlobPath(i uint64) string {
	return c.InvocationPrefix() + fmt.Sprintf(BlobNameFmt, i)
}

func (c *BlobChannel) Send(ctx context.Context, msg []byte, authorizer changelog.Identity) error {
	if err := c.opts.checkSize(len(msg)); err != nil {
		return err
	}

	blobPath := c.BlobPath(c.next)
	tags := map[string]string{
		TagAuthorizer:   authorizer.String(),
		TagMessageIndex: strconv.FormatUint(c.next, 10),
	}
	// The way to spell 'fail without modifying if the blob exists' is to
	// require that no blob matches *any* etag.
	_, err := c.store.Put(ctx, blobPath, azblob.NewBytesReaderCloser(msg),
		azblob.WithTags(tags), azblob.WithEtagNoneMatch("*"))
	if err != nil {
		return fmt.Errorf("%s: %w", blobPath, WrapRejected(err))
	}
	if c.opts.Log != nil {
		c.opts.Log.Infof("changelog blob: %s %d bytes", blobPath, len(msg))
	}
	c.next++
	return nil
}

// Sent is the number of messages written.
func (c *BlobChannel) Sent() uint64 { return c.next }

func (c *BlobChannel) Invocation() uuid.UUID { return c.invocation }
