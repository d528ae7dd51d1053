package requirement

import (
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
)

// SetMaker builds a Requirements SuperBlob
// holding at most one Requirement per Type.
type SetMaker struct {
	maker *super_blob.Maker
}

func NewSetMaker() *SetMaker {
	return &SetMaker{
		maker: super_blob.NewMaker(blobs.MagicRequirements),
	}
}

// Add stores req under t, replacing the
// Requirement previously stored under t.
func (set *SetMaker) Add(t Type, req *Requirement) {
	set.maker.AddBlob(t.Slot(), req)
}

// AddRaw stores an already encoded
// requirement blob under t.
func (set *SetMaker) AddRaw(t Type, raw []byte) {
	set.maker.Add(t.Slot(), raw)
}

func (set *SetMaker) Remove(t Type) {
	set.maker.Remove(t.Slot())
}

func (set *SetMaker) Len() int {
	return set.maker.Len()
}

// Size returns the length of the
// SuperBlob Make would produce.
func (set *SetMaker) Size() uint64 {
	return set.maker.Size()
}

// Make serializes the stored requirements
// ordered by ascending Type.
func (set *SetMaker) Make() (*super_blob.SuperBlob, error) {
	return set.maker.Make()
}

// Find returns the Requirement stored
// under t in a Requirements SuperBlob.
func Find(requirements *super_blob.SuperBlob, t Type) (*Requirement, error) {
	if requirements.Magic() != blobs.MagicRequirements {
		return nil, fmt.Errorf("%s is not a requirement set: %w", requirements.Magic(), blobs.ErrMagicMismatch)
	}

	raw, found := requirements.Find(t.Slot())
	if !found {
		return nil, fmt.Errorf("%s requirement: %w", t, super_blob.ErrSlotNotFound)
	}

	req, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s requirement: %w", t, err)
	}

	return req, nil
}
