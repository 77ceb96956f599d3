package batchloop

import "github.com/datatrails/go-datatrails-common/logger"

type Options struct {
	Observer Observer
	Log      logger.Logger
}

type Option func(*Options)

// WithObserver replaces the default NopObserver. Use Observers to install
// more than one.
func WithObserver(o Observer) Option {
	return func(opts *Options) {
		opts.Observer = o
	}
}

// WithLogger logs the start and end of the invocation.
func WithLogger(log logger.Logger) Option {
	return func(opts *Options) {
		opts.Log = log
	}
}
