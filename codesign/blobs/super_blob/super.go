package super_blob

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
)

var (
	// ErrIndexOutOfRange is returned when an
	// index position beyond the index count
	// of a SuperBlob is requested.
	ErrIndexOutOfRange = errors.New("index position out of range")

	// ErrSlotNotFound is returned when no index
	// of a SuperBlob matches the requested Slot.
	ErrSlotNotFound = errors.New("slot not found in super blob")
)

// SuperBlob defines a Code Signature
// Blob that stores within itself multiple
// Code Signature blobs of different types,
// indexed by the Slot they are stored in.
//
// A SuperBlob is a read-only view over
// its raw encoding.
type SuperBlob struct {
	hdr   blobs.BlobHeader
	view  blobs.Layout
	count int
}

// Parse validates raw as a SuperBlob and
// returns a view over it. Every index entry
// must point at a blob lying entirely within
// the SuperBlob.
//
// Duplicate slots are not rejected, Find
// returns the first matching index.
func Parse(raw []byte) (*SuperBlob, error) {
	hdr, err := blobs.ParseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("parse super blob header: %w", err)
	}

	raw = raw[:hdr.Length:hdr.Length]
	if hdr.Length < headerSize {
		return nil, fmt.Errorf("super blob length %d is too small for the index count: %w", hdr.Length, blobs.ErrInvalidLength)
	}

	super := &SuperBlob{
		hdr:  hdr,
		view: blobs.NewLayout(raw, 0, binary.BigEndian),
	}

	count := super.view.Uint32(8)
	if uint64(count) > uint64(hdr.Length-headerSize)/indexSize {
		return nil, fmt.Errorf("super blob is too small to fit specified (%d) number of indexes: %w", count, blobs.ErrInvalidLength)
	}
	super.count = int(count)

	for i := range super.count {
		index := super.index(i)
		if _, err = super.blobAt(index); err != nil {
			return nil, fmt.Errorf("index %d (%s): %w", i, index.Type, err)
		}
	}

	return super, nil
}

// Decoder defines a blobs.BlobDecoder that
// can decode any of the SuperBlob kinds.
func Decoder(hdr blobs.BlobHeader, raw []byte) (blobs.Blob, error) {
	if !hdr.Magic.Kind().IsSuperBlob() {
		return nil, fmt.Errorf("%s is not a super blob: %w", hdr.Magic, blobs.ErrMagicMismatch)
	}

	super, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	return super, nil
}

// Magic returns the blobs.Magic from the
// SuperBlob's header.
func (super *SuperBlob) Magic() blobs.Magic {
	return super.hdr.Magic
}

// Length returns the size of the
// SuperBlob in bytes.
func (super *SuperBlob) Length() uint32 {
	return super.hdr.Length
}

// Bytes returns the raw encoding
// of the SuperBlob.
func (super *SuperBlob) Bytes() []byte {
	return super.view.Bytes(0, int(super.hdr.Length))
}

// Count returns the number of Code Signature
// blobs stored within the SuperBlob.
func (super *SuperBlob) Count() int {
	return super.count
}

// Index returns the Index entry
// stored at the supplied position.
func (super *SuperBlob) Index(i int) (Index, error) {
	if i < 0 || i >= super.count {
		return Index{}, fmt.Errorf("position %d of %d: %w", i, super.count, ErrIndexOutOfRange)
	}

	return super.index(i), nil
}

// Indexes returns every Index entry
// in the order they are stored.
func (super *SuperBlob) Indexes() []Index {
	indexes := make([]Index, super.count)
	for i := range indexes {
		indexes[i] = super.index(i)
	}

	return indexes
}

// Blob returns the raw blob referenced by the
// Index at position i. The returned slice
// aliases the SuperBlob.
func (super *SuperBlob) Blob(i int) ([]byte, error) {
	index, err := super.Index(i)
	if err != nil {
		return nil, err
	}

	return super.blobAt(index)
}

// Decode returns the blobs.Blob referenced
// by the Index at position i decoded with
// the decoder registered for its magic.
func (super *SuperBlob) Decode(i int) (blobs.Blob, error) {
	raw, err := super.Blob(i)
	if err != nil {
		return nil, err
	}

	return blobs.Parse(raw)
}

// Find returns the raw blob stored in the
// first Index with a matching Slot.
func (super *SuperBlob) Find(slot Slot) ([]byte, bool) {
	for i := range super.count {
		if index := super.index(i); index.Type == slot {
			raw, err := super.blobAt(index)
			return raw, err == nil
		}
	}

	return nil, false
}

// FindBlob is the decoding form of Find.
func (super *SuperBlob) FindBlob(slot Slot) (blobs.Blob, error) {
	raw, found := super.Find(slot)
	if !found {
		return nil, fmt.Errorf("%s: %w", slot, ErrSlotNotFound)
	}

	return blobs.Parse(raw)
}

// String returns a single line representation
// of the SuperBlob.
func (super *SuperBlob) String() string {
	var builder strings.Builder

	_, _ = fmt.Fprintf(&builder, "SuperBlob{magic: %s, length: %d, entries: [", super.Magic(), super.hdr.Length)
	for i := range super.count {
		if i > 0 {
			builder.WriteString(", ")
		}

		builder.WriteString(super.index(i).Type.String())
	}
	builder.WriteString("]}")

	return builder.String()
}

func (super *SuperBlob) index(i int) Index {
	entry := super.view.Sub(indexOffset(i))

	return Index{
		Type:   Slot(entry.Uint32(0)),
		Offset: entry.Uint32(4),
		pos:    i,
	}
}

func (super *SuperBlob) blobAt(index Index) ([]byte, error) {
	if index.Offset < headerSize || !super.view.Fits(int(index.Offset), int(blobs.BlobHeaderSize)) {
		return nil, fmt.Errorf("offset %d overflows blob length %d: %w", index.Offset, super.hdr.Length, blobs.ErrOutOfBounds)
	}

	hdr, err := blobs.ParseHeader(super.view.Bytes(int(index.Offset), super.view.Len()-int(index.Offset)))
	if err != nil {
		return nil, fmt.Errorf("blob header at offset %d: %w", index.Offset, err)
	}

	return super.view.Bytes(int(index.Offset), int(hdr.Length)), nil
}
