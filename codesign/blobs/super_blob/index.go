package super_blob

import (
	"fmt"
)

const (
	// headerSize is the size, in bytes, of the
	// fixed prefix of a SuperBlob: magic, length
	// and index count.
	headerSize = 12

	// indexSize is the size, in bytes, of a
	// single (type, offset) index entry.
	indexSize = 8
)

// Index defines the representation
// of a slot within a SuperBlob describing
// the Slot type and the offset, from the
// start of the SuperBlob, of the blob
// stored in it.
type Index struct {
	Type   Slot
	Offset uint32

	pos int
}

// Position returns the position of
// the Index within the index table.
func (index Index) Position() int {
	return index.pos
}

// String returns a single line
// representation of this Index.
func (index Index) String() string {
	return fmt.Sprintf("Index{position: %d, type: %s, offset: %d}", index.pos, index.Type, index.Offset)
}

// indexOffset returns the offset of the
// i-th index entry from the start of the
// SuperBlob.
func indexOffset(i int) int {
	return headerSize + i*indexSize
}
