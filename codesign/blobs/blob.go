package blobs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type (
	// Magic represents a 32-bit unsigned integer
	// that is included as the first 4 bytes of
	// a Code Signature blob to declare the type
	// of that blob.
	Magic uint32

	// BlobHeader defines the generic header
	// data structure that is included at the
	// start of all Code Signature blobs.
	BlobHeader struct {
		// Magic specifies the unique identifier
		// of the Code Signature blob following
		// this header.
		Magic Magic

		// Length specifies, in bytes, the size
		// of the Code Signature blob including
		// this header.
		Length uint32
	}

	// Blob defines a generic set of functions
	// a structure must implement to be able
	// to represent a Code Signature blob
	Blob interface {
		// Length returns, in bytes, the size
		// of the Code Signature blob when it
		// is encoded to its raw format.
		Length() uint32

		// Magic returns the unique identifier
		// of the Code Signature blob.
		Magic() Magic

		// Bytes returns the raw encoding of
		// the Code Signature blob, header
		// included.
		Bytes() []byte
	}
)

var (
	// BlobHeaderSize defines the raw size, in bytes,
	// a BlobHeader takes when it is encoded to its
	// raw format.
	BlobHeaderSize = uint32(binary.Size(BlobHeader{}))

	// ErrInvalidLength is returned when a blob
	// declares a length smaller than its header
	// or larger than the data holding it.
	ErrInvalidLength = errors.New("blob contains invalid length")

	// ErrMagicMismatch is returned by a decoder
	// handed a blob of a type it doesn't decode.
	ErrMagicMismatch = errors.New("magic doesn't match the expected value")

	// ErrOutOfBounds is returned when an offset
	// stored inside a blob points outside of it.
	ErrOutOfBounds = errors.New("offset outside of blob bounds")

	// ErrUnknownMagic is returned when a blob
	// of a specific Kind is required but the
	// Magic found isn't one that is known.
	ErrUnknownMagic = errors.New("unknown blob magic")
)

// ReadFrom attempts to read and decode
// this BlobHeader from the supplied reader.
func (hdr *BlobHeader) ReadFrom(r io.Reader) (int64, error) {
	if err := binary.Read(r, binary.BigEndian, hdr); err != nil {
		return -1, err
	}

	if hdr.Length < BlobHeaderSize {
		return -1, fmt.Errorf("header length %d: %w", hdr.Length, ErrInvalidLength)
	}

	return int64(BlobHeaderSize), nil
}

// WriteTo attempts to encode and write
// this BlobHeader to the supplied writer.
func (hdr *BlobHeader) WriteTo(w io.Writer) (int64, error) {
	if hdr.Length < BlobHeaderSize {
		return -1, fmt.Errorf("header length %d: %w", hdr.Length, ErrInvalidLength)
	}

	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return -1, err
	}

	return int64(BlobHeaderSize), nil
}

// ParseHeader decodes the BlobHeader at the
// start of raw and checks the length it
// declares fits within raw.
func ParseHeader(raw []byte) (BlobHeader, error) {
	if len(raw) < int(BlobHeaderSize) {
		return BlobHeader{}, fmt.Errorf("%d bytes is too short for a blob header: %w", len(raw), ErrInvalidLength)
	}

	view := NewLayout(raw, 0, binary.BigEndian)
	hdr := BlobHeader{
		Magic:  Magic(view.Uint32(0)),
		Length: view.Uint32(4),
	}

	switch {
	case hdr.Length < BlobHeaderSize:
		return hdr, fmt.Errorf("header length %d: %w", hdr.Length, ErrInvalidLength)

	case uint64(hdr.Length) > uint64(len(raw)):
		return hdr, fmt.Errorf("header length %d exceeds %d available bytes: %w", hdr.Length, len(raw), ErrInvalidLength)
	}

	return hdr, nil
}

// Put encodes this BlobHeader into
// the first 8 bytes of dst.
func (hdr BlobHeader) Put(dst []byte) {
	view := NewLayout(dst, 0, binary.BigEndian)
	view.SetUint32(0, uint32(hdr.Magic))
	view.SetUint32(4, hdr.Length)
}

// WriteTo writes the raw encoding of
// the supplied Blob to the writer.
func WriteTo(blob Blob, dst io.Writer) (int64, error) {
	n, err := dst.Write(blob.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("write %s blob: %w", blob.Magic(), err)
	}

	return int64(n), nil
}
