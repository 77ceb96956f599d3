package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/forestrie/go-changelog/changelog"
)

// FileReader replays the messages written by a FileChannel.
type FileReader struct {
	r     io.Reader
	block []byte
	n     int
	off   int
	eof   bool
	buf   []byte
}

func NewFileReader(r io.Reader) *FileReader {
	return &FileReader{r: r, block: make([]byte, BlockSize)}
}

// Next returns the next message, or io.EOF once the log is exhausted. The
// returned Data is owned by the caller.
func (fr *FileReader) Next() (Message, error) {
	fr.buf = fr.buf[:0]
	inRecord := false
	for {
		rt, data, err := fr.fragment()
		if errors.Is(err, io.EOF) {
			if inRecord {
				return Message{}, fmt.Errorf("%w: log ends inside a fragmented record", ErrCorruptRecord)
			}
			return Message{}, io.EOF
		}
		if err != nil {
			return Message{}, err
		}

		switch rt {
		case recordFull:
			if inRecord {
				return Message{}, fmt.Errorf("%w: full record inside a fragmented record", ErrCorruptRecord)
			}
			fr.buf = append(fr.buf, data...)
			return fr.message()
		case recordFirst:
			if inRecord {
				return Message{}, fmt.Errorf("%w: first fragment inside a fragmented record", ErrCorruptRecord)
			}
			fr.buf = append(fr.buf, data...)
			inRecord = true
		case recordMiddle, recordLast:
			if !inRecord {
				return Message{}, fmt.Errorf("%w: fragment %d without a first fragment", ErrCorruptRecord, rt)
			}
			fr.buf = append(fr.buf, data...)
			if rt == recordLast {
				return fr.message()
			}
		default:
			return Message{}, fmt.Errorf("%w: record type %d", ErrCorruptRecord, rt)
		}
	}
}

// ReadAll returns every remaining message.
func (fr *FileReader) ReadAll() ([]Message, error) {
	var msgs []Message
	for {
		m, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
}

func (fr *FileReader) message() (Message, error) {
	if len(fr.buf) < changelog.IdentityBytes {
		return Message{}, fmt.Errorf("%w: payload of %d bytes has no authorizer", ErrCorruptRecord, len(fr.buf))
	}
	var m Message
	copy(m.Authorizer[:], fr.buf[:changelog.IdentityBytes])
	m.Data = append([]byte(nil), fr.buf[changelog.IdentityBytes:]...)
	return m, nil
}

func (fr *FileReader) fragment() (recordType, []byte, error) {
	for {
		if fr.n-fr.off < HeaderBytes {
			for _, c := range fr.block[fr.off:fr.n] {
				if c != 0 {
					return 0, nil, fmt.Errorf("%w: non zero block trailer", ErrCorruptRecord)
				}
			}
			if fr.eof {
				return 0, nil, io.EOF
			}
			if err := fr.readBlock(); err != nil {
				return 0, nil, err
			}
			continue
		}

		h := fr.block[fr.off : fr.off+HeaderBytes]
		length := int(binary.LittleEndian.Uint16(h[HeaderLengthFirstByte:HeaderLengthEnd]))
		rt := recordType(h[HeaderTypeFirstByte])
		if fr.off+HeaderBytes+length > fr.n {
			return 0, nil, fmt.Errorf("%w: fragment of %d bytes overruns its block", ErrCorruptRecord, length)
		}
		data := fr.block[fr.off+HeaderBytes : fr.off+HeaderBytes+length]
		if want := binary.LittleEndian.Uint32(h[HeaderChecksumFirstByte:HeaderChecksumEnd]); want != fragmentChecksum(rt, data) {
			return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
		}
		fr.off += HeaderBytes + length
		return rt, data, nil
	}
}

func (fr *FileReader) readBlock() error {
	n, err := io.ReadFull(fr.r, fr.block)
	fr.n, fr.off = n, 0
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		fr.eof = true
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		fr.eof = true
		return nil
	default:
		return err
	}
}
