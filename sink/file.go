package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/forestrie/go-changelog/changelog"
)

var zeroTrailer [HeaderBytes - 1]byte

// FileChannel appends messages to w as leveldb style log records. Each
// record payload is the 32 byte authorizer followed by the message.
//
// w is assumed to be positioned at offset, normally the current length of
// an existing file or zero for a new one.
type FileChannel struct {
	w           io.Writer
	opts        Options
	blockOffset int
	written     int64
	header      [HeaderBytes]byte
	payload     []byte
	closed      bool
}

func NewFileChannel(w io.Writer, offset int64, opts ...Option) *FileChannel {
	o := newOptions(opts...)
	return &FileChannel{
		w:           w,
		opts:        o,
		blockOffset: int(offset % BlockSize),
	}
}

func (c *FileChannel) Send(ctx context.Context, msg []byte, authorizer changelog.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return ErrChannelClosed
	}
	if err := c.opts.checkSize(len(msg)); err != nil {
		return err
	}

	c.payload = append(c.payload[:0], authorizer[:]...)
	c.payload = append(c.payload, msg...)
	if err := c.writeRecord(c.payload); err != nil {
		return fmt.Errorf("writing changelog record: %w", err)
	}
	if c.opts.Log != nil {
		c.opts.Log.Infof("changelog file: %d byte message, %d bytes written", len(msg), c.written)
	}
	return nil
}

// Written is the number of bytes, framing included, written so far.
func (c *FileChannel) Written() int64 { return c.written }

// Close stops further sends. It closes w if w is an io.Closer.
func (c *FileChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *FileChannel) writeRecord(p []byte) error {
	first := true
	for {
		// A header never starts in the last few bytes of a block.
		if left := BlockSize - c.blockOffset; left < HeaderBytes {
			if err := c.write(zeroTrailer[:left]); err != nil {
				return err
			}
			c.blockOffset = 0
		}

		avail := BlockSize - c.blockOffset - HeaderBytes
		n := min(len(p), avail)
		last := n == len(p)

		var rt recordType
		switch {
		case first && last:
			rt = recordFull
		case first:
			rt = recordFirst
		case last:
			rt = recordLast
		default:
			rt = recordMiddle
		}

		putHeader(c.header[:], rt, p[:n])
		if err := c.write(c.header[:]); err != nil {
			return err
		}
		if err := c.write(p[:n]); err != nil {
			return err
		}
		c.blockOffset += HeaderBytes + n
		p = p[n:]
		first = false
		if last {
			return nil
		}
	}
}

func (c *FileChannel) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := c.w.Write(b)
	c.written += int64(n)
	return err
}
