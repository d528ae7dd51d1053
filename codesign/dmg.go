package codesign

import (
	"fmt"
	"io"
	"math"

	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/KatelynHaworth/csblob/codesign/dmg"
)

type readAtSeeker interface {
	io.ReadSeeker
	io.ReaderAt
}

// DMGFile is a disk image open
// for signing in place.
type DMGFile interface {
	readAtSeeker
	io.Writer
	Truncate(size int64) error
}

// DMG describes the parts of a disk
// image a code signature depends on.
type DMG struct {
	Trailer       *dmg.UDIFResourceFile
	TrailerOffset int64

	// CodeLimit is the length of the image
	// covered by the code slots, the image
	// data without signature or trailer.
	CodeLimit uint64
}

// Signed reports whether the image
// already carries a code signature.
func (image *DMG) Signed() bool {
	return image.Trailer.CodeSignLength > 0
}

// RepSpecific returns the data hashed into
// the rep-specific special slot.
func (image *DMG) RepSpecific() []byte {
	return image.Trailer.Signable()
}

func InspectDMG(src readAtSeeker) (*DMG, error) {
	trailer, offset, err := dmg.ReadUDIF(src)
	if err != nil {
		return nil, fmt.Errorf("read UDIF: %w", err)
	}

	image := &DMG{
		Trailer:       trailer,
		TrailerOffset: offset,
		CodeLimit:     uint64(offset),
	}

	if image.Signed() {
		image.CodeLimit = uint64(trailer.CodeSignOffset)
	}

	return image, nil
}

// ReadFromDMG reads the code signature
// embedded in a disk image.
func ReadFromDMG(src readAtSeeker) (*super_blob.SuperBlob, error) {
	image, err := InspectDMG(src)
	if err != nil {
		return nil, err
	} else if !image.Signed() {
		return nil, ErrNoCodeSignature
	}

	return ReadFrom[*super_blob.SuperBlob](io.NewSectionReader(src, int64(image.Trailer.CodeSignOffset), int64(image.Trailer.CodeSignLength)))
}

// WriteToDMG replaces any signature of the
// disk image with blob, followed by the UDIF
// trailer updated to locate it.
func WriteToDMG(blob Blob, dstFile DMGFile) error {
	image, err := InspectDMG(dstFile)
	if err != nil {
		return fmt.Errorf("read existing UDIF: %w", err)
	}

	if image.CodeLimit > math.MaxUint32 {
		return fmt.Errorf("signature offset %d can't be recorded in the UDIF trailer", image.CodeLimit)
	}

	if err = dstFile.Truncate(int64(image.CodeLimit)); err != nil {
		return fmt.Errorf("strip existing code signature and UDIF: %w", err)
	}

	if _, err = dstFile.Seek(int64(image.CodeLimit), io.SeekStart); err != nil {
		return fmt.Errorf("seek to end of image data: %w", err)
	}

	if _, err = dstFile.Write(blob.Bytes()); err != nil {
		return fmt.Errorf("copy codesign blob to dest file: %w", err)
	}

	trailer := image.Trailer
	trailer.CodeSignOffset = uint32(image.CodeLimit)
	trailer.CodeSignLength = blob.Length()

	if err = dmg.WriteUDIF(trailer, dstFile); err != nil {
		return fmt.Errorf("write existing UDIF: %w", err)
	}

	return nil
}
