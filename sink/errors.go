package sink

import "errors"

var (
	ErrMessageTooLarge = errors.New("sink: message exceeds the channel maximum message size")
	ErrMessageRejected = errors.New("sink: the storage service rejected the message")
	ErrCorruptRecord   = errors.New("sink: corrupt log record")
	ErrChannelClosed   = errors.New("sink: channel is closed")
)
