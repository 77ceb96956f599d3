package sink

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// BlockSize is the size of a block in a changelog file. The tail of the
	// file may be a partial block.
	BlockSize = 32 * 1024

	// Record header layout
	//
	// .     | checksum | length | type |
	// .     | 0      3 | 4    5 |  6   |
	// bytes |    4     |   2    |  1   |

	HeaderChecksumFirstByte = 0
	HeaderChecksumSize      = 4
	HeaderChecksumEnd       = HeaderChecksumFirstByte + HeaderChecksumSize
	HeaderLengthFirstByte   = HeaderChecksumEnd
	HeaderLengthSize        = 2
	HeaderLengthEnd         = HeaderLengthFirstByte + HeaderLengthSize
	HeaderTypeFirstByte     = HeaderLengthEnd
	HeaderBytes             = HeaderTypeFirstByte + 1
)

type recordType uint8

const (
	_ recordType = iota
	recordFull
	recordFirst
	recordMiddle
	recordLast
)

// The checksum covers the type byte and the fragment data.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func fragmentChecksum(rt recordType, data []byte) uint32 {
	crc := crc32.Update(0, castagnoli, []byte{byte(rt)})
	return crc32.Update(crc, castagnoli, data)
}

func putHeader(h []byte, rt recordType, data []byte) {
	binary.LittleEndian.PutUint32(h[HeaderChecksumFirstByte:HeaderChecksumEnd], fragmentChecksum(rt, data))
	binary.LittleEndian.PutUint16(h[HeaderLengthFirstByte:HeaderLengthEnd], uint16(len(data)))
	h[HeaderTypeFirstByte] = byte(rt)
}
