package blobs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Generic defines a Code Signature Blob
// type that can contain a raw Blob when
// no BlobMetadata was found that matched
// the Magic in the BlobHeader.
//
// The Generic blob is also useful in cases
// when the blob doesn't have a data structure
// to represent it as the body is opaque data,
// for example a CMS signature wrapper.
type Generic struct {
	hdr BlobHeader
	raw []byte
}

// NewGeneric constructs a new Generic
// Code Signature Blob that will store
// the supplied body and represent it
// using the supplied Magic.
func NewGeneric(magic Magic, body []byte) *Generic {
	generic := &Generic{
		hdr: BlobHeader{
			Magic:  magic,
			Length: BlobHeaderSize + uint32(len(body)),
		},
		raw: make([]byte, int(BlobHeaderSize)+len(body)),
	}

	generic.hdr.Put(generic.raw)
	copy(generic.raw[BlobHeaderSize:], body)

	return generic
}

// GenericDecoder defines a BlobDecoder
// function that can decode a raw Code
// Signature blob of any type into a
// Generic Blob.
func GenericDecoder(hdr BlobHeader, raw []byte) (Blob, error) {
	if uint64(len(raw)) < uint64(hdr.Length) {
		return nil, fmt.Errorf("blob data shorter than header length: %w", ErrInvalidLength)
	}

	return &Generic{
		hdr: hdr,
		raw: raw[:hdr.Length],
	}, nil
}

// Length returns the raw size of this
// Blob when encoded in its raw format.
func (generic *Generic) Length() uint32 {
	return generic.hdr.Length
}

// Magic returns the Magic defined
// in the BlobHeader of this Generic.
func (generic *Generic) Magic() Magic {
	return generic.hdr.Magic
}

// Bytes returns the raw encoding of
// this Generic, header included.
func (generic *Generic) Bytes() []byte {
	return generic.raw
}

// Body returns the bytes following
// the BlobHeader.
func (generic *Generic) Body() []byte {
	return generic.raw[BlobHeaderSize:]
}

// String returns a single line representation
// of this Generic Blob.
func (generic *Generic) String() string {
	hash := sha256.Sum256(generic.raw)

	return fmt.Sprintf("Generic{magic: %s, length: %d, hash: %s}", generic.hdr.Magic, generic.hdr.Length, hex.EncodeToString(hash[:]))
}
