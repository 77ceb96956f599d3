// Package emitter forwards serialized batches to the log channel. It checks
// the destination identity and nothing else: message size limits belong to
// the channel.
package emitter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/forestrie/go-changelog/changelog"
)

// LogWrapperID is the well known identity of the changelog sink.
var LogWrapperID = changelog.Identity(sha256.Sum256([]byte("forestrie/changelog/log-wrapper/v1")))

var (
	ErrInvalidChannel  = errors.New("emitter: the channel identity is not the expected log sink")
	ErrChannelRejected = errors.New("emitter: the channel rejected the message")
)

// Channel accepts one opaque message at a time. Implementations enforce their
// own maximum message size.
type Channel interface {
	Send(ctx context.Context, msg []byte, authorizer changelog.Identity) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, msg []byte, authorizer changelog.Identity) error

func (f ChannelFunc) Send(ctx context.Context, msg []byte, authorizer changelog.Identity) error {
	return f(ctx, msg, authorizer)
}

type Emitter struct {
	channel  Channel
	expected changelog.Identity
	sent     uint64
}

// New returns an emitter that only forwards to channel when called with the
// expected identity.
func New(channel Channel, expected changelog.Identity) *Emitter {
	return &Emitter{channel: channel, expected: expected}
}

// Emit forwards msg as a single message attributed to authorizer. The
// authorizer is not checked. A channel failure is returned wrapped by
// ErrChannelRejected with the channel's own error preserved.
func (e *Emitter) Emit(ctx context.Context, msg []byte, channelID, authorizer changelog.Identity) error {
	if channelID != e.expected {
		return fmt.Errorf("%w: got %s", ErrInvalidChannel, channelID)
	}
	if err := e.channel.Send(ctx, msg, authorizer); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelRejected, err)
	}
	e.sent++
	return nil
}

// Sent is the number of messages the channel has accepted.
func (e *Emitter) Sent() uint64 { return e.sent }

func (e *Emitter) Expected() changelog.Identity { return e.expected }
