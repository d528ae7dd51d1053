package codesign

import (
	"fmt"
	"io"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/blobs/code_directory"
	"github.com/KatelynHaworth/csblob/codesign/blobs/entitlements"
	"github.com/KatelynHaworth/csblob/codesign/blobs/requirement"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
)

var (
	MagicCodeDirectory           = blobs.RegisterBlobType(code_directory.Metadata)
	MagicRequirement             = blobs.RegisterBlobType(requirement.Metadata)
	MagicEmbeddedEntitlements    = blobs.RegisterBlobType(entitlements.Metadata)
	MagicEmbeddedDEREntitlements = blobs.RegisterBlobType(entitlements.DERMetadata)
)

// SuperBlob types, each decoded into
// a super_blob.SuperBlob
var (
	MagicRequirements         = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicRequirements), Name: "CSMAGIC_REQUIREMENTS", Decoder: super_blob.Decoder})
	MagicEmbeddedSignature    = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicEmbeddedSignature), Name: "CSMAGIC_EMBEDDED_SIGNATURE", Decoder: super_blob.Decoder})
	MagicEmbeddedSignatureOld = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicEmbeddedSignatureOld), Name: "CSMAGIC_EMBEDDED_SIGNATURE_OLD", Decoder: super_blob.Decoder})
	MagicDetachedSignature    = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicDetachedSignature), Name: "CSMAGIC_DETACHED_SIGNATURE", Decoder: super_blob.Decoder})
	MagicLibraryDependency    = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicLibraryDependency), Name: "CSMAGIC_LIBRARY_DEPENDENCY_BLOB", Decoder: super_blob.Decoder})
)

// Generic blob types that don't have
// a defined data structure to decode
// into
var (
	MagicBlobWrapper              = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicBlobWrapper), Name: "CSMAGIC_BLOBWRAPPER"})
	MagicEmbeddedLaunchConstraint = blobs.RegisterBlobType(blobs.BlobMetadata{MagicValue: uint32(blobs.MagicEmbeddedLaunchConstraint), Name: "CSMAGIC_EMBEDDED_LAUNCH_CONSTRAINT"})
)

type Blob = blobs.Blob

// ReadFrom reads the blob at the start of src
// and decodes it into the blob type T.
func ReadFrom[T Blob](src *io.SectionReader) (T, error) {
	var (
		blobHdr blobs.BlobHeader
		zero    T
	)

	if _, err := blobHdr.ReadFrom(io.NewSectionReader(src, 0, int64(blobs.BlobHeaderSize))); err != nil {
		return zero, fmt.Errorf("read blob header: %w", err)
	}

	if int64(blobHdr.Length) > src.Size() {
		return zero, fmt.Errorf("%s blob of %d bytes exceeds the %d bytes available: %w", blobHdr.Magic, blobHdr.Length, src.Size(), blobs.ErrInvalidLength)
	}

	raw := make([]byte, blobHdr.Length)
	if _, err := src.ReadAt(raw, 0); err != nil {
		return zero, fmt.Errorf("read %d byte %s blob: %w", blobHdr.Length, blobHdr.Magic, err)
	}

	blob, err := blobs.Parse(raw)
	if err != nil {
		return zero, fmt.Errorf("decode blob: %w", err)
	}

	typedBlob, ok := blob.(T)
	if !ok {
		return zero, fmt.Errorf("decoded blob does not match expected type (%T): %T", zero, blob)
	}

	return typedBlob, nil
}
