package sink

import "github.com/datatrails/go-datatrails-common/logger"

// DefaultMaxMessageSize matches the log channel limit the batch loop is
// configured against by default.
const DefaultMaxMessageSize = 10240

type Options struct {
	MaxMessageSize int
	Log            logger.Logger
	BlobPrefix     string
}

type Option func(*Options)

// WithMaxMessageSize sets the largest message the channel accepts. Zero or
// less disables the check.
func WithMaxMessageSize(n int) Option {
	return func(o *Options) {
		o.MaxMessageSize = n
	}
}

func WithLogger(log logger.Logger) Option {
	return func(o *Options) {
		o.Log = log
	}
}

// WithBlobPrefix replaces the default blob path prefix V1ChangelogPrefix.
func WithBlobPrefix(prefix string) Option {
	return func(o *Options) {
		o.BlobPrefix = prefix
	}
}

func newOptions(opts ...Option) Options {
	o := Options{MaxMessageSize: DefaultMaxMessageSize, BlobPrefix: V1ChangelogPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o Options) checkSize(n int) error {
	if o.MaxMessageSize > 0 && n > o.MaxMessageSize {
		return sizeError(n, o.MaxMessageSize)
	}
	return nil
}
