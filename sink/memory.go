package sink

import (
	"context"
	"fmt"

	"github.com/forestrie/go-changelog/changelog"
)

// Message is one accepted message with its attribution.
type Message struct {
	Authorizer changelog.Identity
	Data       []byte
}

// MemoryChannel records every accepted message. Messages are copied, the
// caller may reuse its buffer as soon as Send returns.
type MemoryChannel struct {
	MaxMessageSize int
	Messages       []Message
}

func NewMemoryChannel(maxMessageSize int) *MemoryChannel {
	return &MemoryChannel{MaxMessageSize: maxMessageSize}
}

func (c *MemoryChannel) Send(ctx context.Context, msg []byte, authorizer changelog.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.MaxMessageSize > 0 && len(msg) > c.MaxMessageSize {
		return sizeError(len(msg), c.MaxMessageSize)
	}
	c.Messages = append(c.Messages, Message{
		Authorizer: authorizer,
		Data:       append([]byte(nil), msg...),
	})
	return nil
}

// Data returns the accepted message bodies in order.
func (c *MemoryChannel) Data() [][]byte {
	out := make([][]byte, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = m.Data
	}
	return out
}

func (c *MemoryChannel) Reset() { c.Messages = c.Messages[:0] }

func sizeError(n, limit int) error {
	return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, limit)
}
