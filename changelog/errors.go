package changelog

import "errors"

var (
	ErrPathSlotSize      = errors.New("changelog: path slot length does not match the tree height")
	ErrPathSlotAlignment = errors.New("changelog: path slot is not aligned for path nodes")
	ErrBuilderFull       = errors.New("changelog: the batch already holds the configured number of records")
	ErrBadHeight         = errors.New("changelog: tree height must be in the range [1, 31]")
)

var (
	ErrEncodingOverflow = errors.New("changelog: encoded batch does not fit the destination buffer")
	ErrUnknownTag       = errors.New("changelog: unknown record tag")
	ErrTruncated        = errors.New("changelog: message is truncated")
	ErrTrailingBytes    = errors.New("changelog: message has bytes after the last record")
	ErrOrdering         = errors.New("changelog: records are out of order")
)
