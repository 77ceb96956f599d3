// Package sink provides concrete emitter channels.
//
// MemoryChannel keeps messages in memory and is what tests and benchmarks
// use. FileChannel appends messages to a log file in the leveldb log
// format, FileReader replays them. BlobChannel writes one azure blob per
// message.
//
// Every channel enforces its own maximum message size. A message over the
// limit is refused with ErrMessageTooLarge (or ErrMessageRejected when the
// storage service refuses it) and nothing is written.
package sink
