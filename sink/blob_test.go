package sink

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/forestrie/go-changelog/changelog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	identity string
	data     []byte
	nopts    int
}

type fakePutter struct {
	calls []putCall
	err   error
}

func (f *fakePutter) Put(
	_ context.Context, identity string, source io.ReadSeekCloser, opts ...azblob.Option,
) (*azblob.WriteResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, putCall{identity: identity, data: data, nopts: len(opts)})
	return &azblob.WriteResponse{}, nil
}

func TestBlobChannelPaths(t *testing.T) {
	store := &fakePutter{}
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ch := NewBlobChannel(store, id)

	require.NoError(t, ch.Send(context.Background(), []byte("one"), changelog.Identity{1}))
	require.NoError(t, ch.Send(context.Background(), []byte("two"), changelog.Identity{1}))

	require.Len(t, store.calls, 2)
	assert.Equal(t, "v1/changelogs/6ba7b810-9dad-11d1-80b4-00c04fd430c8/0000000000000000.bin", store.calls[0].identity)
	assert.Equal(t, "v1/changelogs/6ba7b810-9dad-11d1-80b4-00c04fd430c8/0000000000000001.bin", store.calls[1].identity)
	assert.Equal(t, []byte("two"), store.calls[1].data)
	// tags and the create only etag condition
	assert.Equal(t, 2, store.calls[0].nopts)
	assert.Equal(t, uint64(2), ch.Sent())
}

func TestBlobChannelPrefix(t *testing.T) {
	ch := NewBlobChannel(&fakePutter{}, uuid.Nil, WithBlobPrefix("test/x"))
	assert.Equal(t, "test/x/00000000-0000-0000-0000-000000000000/", ch.InvocationPrefix())
}

func TestBlobChannelErrors(t *testing.T) {
	store := &fakePutter{}
	ch := NewBlobChannel(store, uuid.New(), WithMaxMessageSize(2))

	require.ErrorIs(t, ch.Send(context.Background(), []byte("abc"), changelog.Identity{}), ErrMessageTooLarge)
	assert.Empty(t, store.calls)

	unavailable := errors.New("connection refused")
	store.err = unavailable
	err := ch.Send(context.Background(), []byte("ab"), changelog.Identity{})
	require.ErrorIs(t, err, unavailable)
	assert.NotErrorIs(t, err, ErrMessageRejected)
	assert.Zero(t, ch.Sent(), "a failed put must not consume a message index")
}

func TestRejectionCodes(t *testing.T) {
	for _, code := range []string{"BlobAlreadyExists", "ConditionNotMet", "RequestBodyTooLarge"} {
		assert.True(t, isRejectionCode(code), code)
	}
	for _, code := range []string{"", "BlobNotFound", "ServerBusy", "InternalError"} {
		assert.False(t, isRejectionCode(code), code)
	}
	assert.NoError(t, WrapRejected(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, WrapRejected(plain))
}
