package sink

import (
	"bytes"
	"context"
	"testing"

	"github.com/forestrie/go-changelog/changelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patterned(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func readAll(t *testing.T, data []byte) []Message {
	t.Helper()
	msgs, err := NewFileReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return msgs
}

func TestFileChannelRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ch := NewFileChannel(&buf, 0)

	sent := [][]byte{patterned(10, 1), patterned(9894, 2), {}, patterned(DefaultMaxMessageSize, 3)}
	for i, m := range sent {
		require.NoError(t, ch.Send(context.Background(), m, changelog.Identity{byte(i)}))
	}
	assert.Equal(t, int64(buf.Len()), ch.Written())

	got := readAll(t, buf.Bytes())
	require.Len(t, got, len(sent))
	for i := range sent {
		assert.Equal(t, changelog.Identity{byte(i)}, got[i].Authorizer)
		assert.Equal(t, sent[i], got[i].Data)
	}
}

func TestFileChannelFragmentsAcrossBlocks(t *testing.T) {
	var buf bytes.Buffer
	ch := NewFileChannel(&buf, 0, WithMaxMessageSize(0))

	big := patterned(3*BlockSize, 5)
	require.NoError(t, ch.Send(context.Background(), big, changelog.Identity{}))
	require.NoError(t, ch.Send(context.Background(), []byte("after"), changelog.Identity{}))

	// first, two middles, last. each block spends one header
	payload := len(big) + changelog.IdentityBytes
	assert.Equal(t, payload+4*HeaderBytes, int(ch.Written())-(HeaderBytes+changelog.IdentityBytes+5))
	assert.Equal(t, byte(recordFirst), buf.Bytes()[HeaderTypeFirstByte])
	assert.Equal(t, byte(recordMiddle), buf.Bytes()[BlockSize+HeaderTypeFirstByte])

	got := readAll(t, buf.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, big, got[0].Data)
	assert.Equal(t, []byte("after"), got[1].Data)
}

func TestFileChannelBlockTrailer(t *testing.T) {
	var buf bytes.Buffer
	ch := NewFileChannel(&buf, 0, WithMaxMessageSize(0))

	// leave 5 bytes in the first block, too few for a header
	first := patterned(BlockSize-5-HeaderBytes-changelog.IdentityBytes, 1)
	require.NoError(t, ch.Send(context.Background(), first, changelog.Identity{}))
	require.Equal(t, BlockSize-5, buf.Len())

	require.NoError(t, ch.Send(context.Background(), []byte("second"), changelog.Identity{}))
	assert.Equal(t, make([]byte, 5), buf.Bytes()[BlockSize-5:BlockSize])
	assert.Equal(t, byte(recordFull), buf.Bytes()[BlockSize+HeaderTypeFirstByte])

	got := readAll(t, buf.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].Data)
	assert.Equal(t, []byte("second"), got[1].Data)
}

func TestFileChannelExactHeaderRoomLeft(t *testing.T) {
	var buf bytes.Buffer
	ch := NewFileChannel(&buf, 0, WithMaxMessageSize(0))

	// leave exactly one header worth of room, the next record starts with an
	// empty first fragment
	first := patterned(BlockSize-2*HeaderBytes-changelog.IdentityBytes, 1)
	require.NoError(t, ch.Send(context.Background(), first, changelog.Identity{}))
	require.Equal(t, BlockSize-HeaderBytes, buf.Len())

	require.NoError(t, ch.Send(context.Background(), []byte("second"), changelog.Identity{}))
	hdr := buf.Bytes()[BlockSize-HeaderBytes : BlockSize]
	assert.Equal(t, byte(recordFirst), hdr[HeaderTypeFirstByte])
	assert.Equal(t, []byte{0, 0}, hdr[HeaderLengthFirstByte:HeaderLengthEnd])

	got := readAll(t, buf.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, []byte("second"), got[1].Data)
}

func TestFileChannelAppendsAtOffset(t *testing.T) {
	var buf bytes.Buffer
	first := NewFileChannel(&buf, 0, WithMaxMessageSize(0))
	require.NoError(t, first.Send(context.Background(), patterned(BlockSize-100, 1), changelog.Identity{}))
	require.NoError(t, first.Close())

	second := NewFileChannel(&buf, int64(buf.Len()), WithMaxMessageSize(0))
	require.NoError(t, second.Send(context.Background(), patterned(500, 2), changelog.Identity{}))
	require.ErrorIs(t, first.Send(context.Background(), []byte{1}, changelog.Identity{}), ErrChannelClosed)

	got := readAll(t, buf.Bytes())
	require.Len(t, got, 2)
	assert.Equal(t, patterned(500, 2), got[1].Data)
}

func TestFileChannelRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	ch := NewFileChannel(&buf, 0, WithMaxMessageSize(8))

	err := ch.Send(context.Background(), make([]byte, 9), changelog.Identity{})
	require.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Zero(t, buf.Len())
}

func TestFileReaderDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	ch := NewFileChannel(&buf, 0, WithMaxMessageSize(0))
	require.NoError(t, ch.Send(context.Background(), patterned(100, 1), changelog.Identity{}))
	require.NoError(t, ch.Send(context.Background(), patterned(2*BlockSize, 2), changelog.Identity{}))
	good := buf.Bytes()

	t.Run("flipped data byte", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[HeaderBytes+50] ^= 1
		_, err := NewFileReader(bytes.NewReader(bad)).Next()
		require.ErrorIs(t, err, ErrCorruptRecord)
	})
	t.Run("truncated fragmented record", func(t *testing.T) {
		r := NewFileReader(bytes.NewReader(good[:BlockSize+100]))
		_, err := r.Next()
		require.NoError(t, err)
		_, err = r.Next()
		require.ErrorIs(t, err, ErrCorruptRecord)
	})
	t.Run("unknown record type", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[HeaderTypeFirstByte] = 9
		_, err := NewFileReader(bytes.NewReader(bad)).Next()
		require.ErrorIs(t, err, ErrCorruptRecord)
	})
	t.Run("empty log", func(t *testing.T) {
		msgs, err := NewFileReader(bytes.NewReader(nil)).ReadAll()
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}
