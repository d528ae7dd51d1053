package requirement

import (
	"encoding/binary"
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
)

const (
	// headerSize is the size of the blob
	// header plus the kind field.
	headerSize = 12

	// baseAlignment is the alignment every
	// item of a requirement expression is
	// padded to.
	baseAlignment = 4
)

// Metadata describes the Requirement
// blob type for the blob registry.
var Metadata = blobs.BlobMetadata{
	MagicValue: uint32(blobs.MagicRequirement),
	Name:       "CSMAGIC_REQUIREMENT",
	Decoder:    Decoder,
}

// Requirement is a read-only view over an
// encoded requirement blob.
type Requirement struct {
	hdr  blobs.BlobHeader
	view blobs.Layout
}

// Parse validates raw as a Requirement
// and returns a view over it.
func Parse(raw []byte) (*Requirement, error) {
	hdr, err := blobs.ParseHeader(raw)
	switch {
	case err != nil:
		return nil, fmt.Errorf("parse requirement header: %w", err)

	case hdr.Magic != blobs.MagicRequirement:
		return nil, fmt.Errorf("magic in blob header (%s) doesn't match the expected value (%s): %w", hdr.Magic, blobs.MagicRequirement, blobs.ErrMagicMismatch)

	case hdr.Length < headerSize:
		return nil, fmt.Errorf("requirement length %d is too small for the kind field: %w", hdr.Length, blobs.ErrInvalidLength)
	}

	return &Requirement{
		hdr:  hdr,
		view: blobs.NewLayout(raw[:hdr.Length:hdr.Length], 0, binary.BigEndian),
	}, nil
}

// Decoder is the blobs.BlobDecoder
// for Requirement blobs.
func Decoder(_ blobs.BlobHeader, raw []byte) (blobs.Blob, error) {
	req, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (req *Requirement) Magic() blobs.Magic {
	return req.hdr.Magic
}

func (req *Requirement) Length() uint32 {
	return req.hdr.Length
}

func (req *Requirement) Bytes() []byte {
	return req.view.Bytes(0, int(req.hdr.Length))
}

// Kind returns the encoding of the
// requirement body.
func (req *Requirement) Kind() Kind {
	return Kind(req.view.Uint32(8))
}

// Expression returns the bytecode
// following the kind field.
func (req *Requirement) Expression() []byte {
	return req.view.Bytes(headerSize, int(req.hdr.Length)-headerSize)
}

func (req *Requirement) String() string {
	return fmt.Sprintf("Requirement{kind: %s, length: %d}", req.Kind(), req.hdr.Length)
}
