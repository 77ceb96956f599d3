package changelog

import "encoding/binary"

// Tag selects the record version.
type Tag uint8

const (
	TagV1 Tag = 0
)

func (t Tag) String() string {
	switch t {
	case TagV1:
		return "V1"
	default:
		return "unknown"
	}
}

const (
	// Record frame layout, the fixed fields of one record as held in the
	// batch arena. This is not the wire format.
	//
	// .     | tree id  | sequence | leaf idx | tag | rsv | npaths  |
	// .     | 0     31 | 32    39 | 40    43 | 44  | 45  | 46   47 |
	// bytes |    32    |    8     |    4     |  1  |  1  |    2    |

	FrameTreeIDFirstByte    = 0
	FrameTreeIDSize         = IdentityBytes
	FrameTreeIDEnd          = FrameTreeIDFirstByte + FrameTreeIDSize
	FrameSequenceFirstByte  = FrameTreeIDEnd
	FrameSequenceSize       = 8
	FrameSequenceEnd        = FrameSequenceFirstByte + FrameSequenceSize
	FrameLeafIndexFirstByte = FrameSequenceEnd
	FrameLeafIndexSize      = 4
	FrameLeafIndexEnd       = FrameLeafIndexFirstByte + FrameLeafIndexSize
	FrameTagFirstByte       = FrameLeafIndexEnd
	FrameReservedFirstByte  = FrameTagFirstByte + 1
	FramePathCountFirstByte = FrameReservedFirstByte + 1
	FramePathCountSize      = 2
	FramePathCountEnd       = FramePathCountFirstByte + FramePathCountSize

	RecordFrameBytes = FramePathCountEnd
	RecordFrameAlign = 8
)

// Record is a changelog record whose storage is borrowed from the batch
// arena and the scratch path slots. The zero Record is not valid.
type Record struct {
	frame []byte
	paths []PathView
}

func (r Record) Tag() Tag { return Tag(r.frame[FrameTagFirstByte]) }

func (r Record) TreeID() (id Identity) {
	copy(id[:], r.frame[FrameTreeIDFirstByte:FrameTreeIDEnd])
	return id
}

func (r Record) Sequence() uint64 {
	return binary.LittleEndian.Uint64(r.frame[FrameSequenceFirstByte:FrameSequenceEnd])
}

func (r Record) LeafIndex() uint32 {
	return binary.LittleEndian.Uint32(r.frame[FrameLeafIndexFirstByte:FrameLeafIndexEnd])
}

// PathCount is the number of paths carried by the record, always 1 for records
// produced by Builder.
func (r Record) PathCount() int { return len(r.paths) }

func (r Record) Path(i int) PathView { return r.paths[i] }

func (r Record) treeID() []byte { return r.frame[FrameTreeIDFirstByte:FrameTreeIDEnd] }
