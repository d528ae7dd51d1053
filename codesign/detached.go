package codesign

import (
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/blacktop/go-macho/types"
)

// MakeDetached combines the embedded signatures of
// each architecture into a detached signature,
// indexed by CPU type.
func MakeDetached(signatures map[types.CPU]*super_blob.SuperBlob) (*super_blob.SuperBlob, error) {
	maker := super_blob.NewMaker(blobs.MagicDetachedSignature)

	for cpu, signature := range signatures {
		if signature.Magic() != blobs.MagicEmbeddedSignature {
			return nil, fmt.Errorf("%s signature has magic %s: %w", cpu, signature.Magic(), blobs.ErrMagicMismatch)
		}

		maker.AddBlob(super_blob.Slot(cpu), signature)
	}

	detached, err := maker.Make()
	if err != nil {
		return nil, fmt.Errorf("make detached signature: %w", err)
	}

	return detached, nil
}

// FindDetached returns the embedded signature
// stored for cpu in a detached signature.
func FindDetached(detached *super_blob.SuperBlob, cpu types.CPU) (*super_blob.SuperBlob, error) {
	if detached.Magic() != blobs.MagicDetachedSignature {
		return nil, fmt.Errorf("%s is not a detached signature: %w", detached.Magic(), blobs.ErrMagicMismatch)
	}

	raw, found := detached.Find(super_blob.Slot(cpu))
	if !found {
		return nil, fmt.Errorf("%s signature: %w", cpu, super_blob.ErrSlotNotFound)
	}

	return super_blob.Parse(raw)
}
