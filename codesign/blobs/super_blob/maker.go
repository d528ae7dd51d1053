package super_blob

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
)

// Maker accumulates raw blobs keyed by
// Slot and serializes them into a SuperBlob
// of the magic it was constructed with.
//
// Entries are always written in ascending
// Slot order regardless of the order they
// were added in.
type Maker struct {
	magic blobs.Magic
	blobs map[Slot][]byte
}

// NewMaker constructs an empty Maker
// producing SuperBlobs tagged with magic.
func NewMaker(magic blobs.Magic) *Maker {
	return &Maker{
		magic: magic,
		blobs: make(map[Slot][]byte),
	}
}

// Magic returns the magic of the
// SuperBlob this Maker produces.
func (maker *Maker) Magic() blobs.Magic {
	return maker.magic
}

// Add stores a copy of the raw blob under
// slot, replacing any blob previously
// stored under the same slot.
func (maker *Maker) Add(slot Slot, raw []byte) {
	maker.blobs[slot] = slices.Clone(raw)
}

// AddBlob is the blobs.Blob form of Add.
func (maker *Maker) AddBlob(slot Slot, blob blobs.Blob) {
	maker.Add(slot, blob.Bytes())
}

// Remove deletes the blob stored under slot.
func (maker *Maker) Remove(slot Slot) {
	delete(maker.blobs, slot)
}

// Contains reports whether a blob
// is stored under slot.
func (maker *Maker) Contains(slot Slot) bool {
	_, exists := maker.blobs[slot]
	return exists
}

// Get returns the raw blob stored under slot.
func (maker *Maker) Get(slot Slot) []byte {
	return maker.blobs[slot]
}

// Len returns the number of stored blobs.
func (maker *Maker) Len() int {
	return len(maker.blobs)
}

// Slots returns the stored slots
// in ascending order.
func (maker *Maker) Slots() []Slot {
	return slices.Sorted(maps.Keys(maker.blobs))
}

// Size returns the length, in bytes, of the
// SuperBlob Make would currently produce.
func (maker *Maker) Size() uint64 {
	size := uint64(headerSize)
	for _, raw := range maker.blobs {
		size += indexSize + uint64(len(raw))
	}

	return size
}

// Make serializes the stored blobs into a
// new SuperBlob. Calling Make repeatedly
// without modifying the Maker produces
// byte-identical output.
func (maker *Maker) Make() (*SuperBlob, error) {
	size := maker.Size()
	if size > math.MaxUint32 {
		return nil, fmt.Errorf("super blob size %d overflows the blob length field: %w", size, blobs.ErrInvalidLength)
	}

	raw := make([]byte, size)
	view := blobs.NewLayout(raw, 0, binary.BigEndian)
	blobs.BlobHeader{Magic: maker.magic, Length: uint32(size)}.Put(raw)

	slots := maker.Slots()
	view.SetUint32(8, uint32(len(slots)))

	offset := indexOffset(len(slots))
	for i, slot := range slots {
		entry := view.Sub(indexOffset(i))
		entry.SetUint32(0, uint32(slot))
		entry.SetUint32(4, uint32(offset))

		view.SetBytes(offset, maker.blobs[slot])
		offset += len(maker.blobs[slot])
	}

	return &SuperBlob{
		hdr:   blobs.BlobHeader{Magic: maker.magic, Length: uint32(size)},
		view:  view,
		count: len(slots),
	}, nil
}
