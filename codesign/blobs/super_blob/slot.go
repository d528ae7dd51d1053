package super_blob

import "fmt"

// Slot represents a 32-bit unsigned
// integer used to describe the type
// of Code Signature blobs.Blob store
// in a slot of a SuperBlob.
type Slot uint32

const (
	SlotCodeDirectory               Slot = 0x0 /* slot index for CodeDirectory */
	SlotInfo                        Slot = 0x1
	SlotRequirements                Slot = 0x2
	SlotResourceDir                 Slot = 0x3
	SlotApplication                 Slot = 0x4
	SlotEntitlements                Slot = 0x5
	SlotRepSpecific                 Slot = 0x6 /* for use by disk images */
	SlotDerEntitlements             Slot = 0x7
	SlotLaunchConstraintSelf        Slot = 0x8
	SlotLaunchConstraintParent      Slot = 0x9
	SlotLaunchConstraintResponsible Slot = 0xa
	SlotLibraryConstraint           Slot = 0xb
	SlotSignature                   Slot = 0x10000 /* CMS Signature */
	SlotIdentification              Slot = 0x10001
	SlotTicket                      Slot = 0x10002

	SlotAlternativeCodeDirectories    Slot = 0x1000 /* first alternate CodeDirectory, if any */
	SlotAlternativeCodeDirectoryMax   Slot = 0x5    /* max number of alternate CD slots */
	SlotAlternativeCodeDirectoryLimit Slot = SlotAlternativeCodeDirectories + SlotAlternativeCodeDirectoryMax
)

var (
	slotToName = map[Slot]string{
		SlotCodeDirectory:               "CSSLOT_CODEDIRECTORY",
		SlotInfo:                        "CSSLOT_INFOSLOT",
		SlotRequirements:                "CSSLOT_REQUIREMENTS",
		SlotResourceDir:                 "CSSLOT_RESOURCEDIR",
		SlotApplication:                 "CSSLOT_APPLICATION",
		SlotEntitlements:                "CSSLOT_ENTITLEMENTS",
		SlotRepSpecific:                 "CSSLOT_REP_SPECIFIC",
		SlotDerEntitlements:             "CSSLOT_DER_ENTITLEMENTS",
		SlotLaunchConstraintSelf:        "CSSLOT_LAUNCH_CONSTRAINT_SELF",
		SlotLaunchConstraintParent:      "CSSLOT_LAUNCH_CONSTRAINT_PARENT",
		SlotLaunchConstraintResponsible: "CSSLOT_LAUNCH_CONSTRAINT_RESPONSIBLE",
		SlotLibraryConstraint:           "CSSLOT_LIBRARY_CONSTRAINT",
		SlotSignature:                   "CSSLOT_SIGNATURESLOT",
		SlotIdentification:              "CSSLOT_IDENTIFICATIONSLOT",
		SlotTicket:                      "CSSLOT_TICKETSLOT",
	}
)

// AlternativeCodeDirectorySlot returns the Slot
// used to store the i-th alternate CodeDirectory.
func AlternativeCodeDirectorySlot(i int) (Slot, error) {
	if i < 0 || Slot(i) >= SlotAlternativeCodeDirectoryMax {
		return 0, fmt.Errorf("alternate code directory %d exceeds the %d available slots", i, SlotAlternativeCodeDirectoryMax)
	}

	return SlotAlternativeCodeDirectories + Slot(i), nil
}

// IsCodeDirectory reports whether the Slot
// holds either the primary or an alternate
// CodeDirectory.
func (slot Slot) IsCodeDirectory() bool {
	return slot == SlotCodeDirectory || (SlotAlternativeCodeDirectories <= slot && slot < SlotAlternativeCodeDirectoryLimit)
}

// String returns the name of a Slot
// if it is known, otherwise the hex
// encoding is returned.
func (slot Slot) String() string {
	if name, known := slotToName[slot]; known {
		return name
	}

	if SlotAlternativeCodeDirectories <= slot && slot < SlotAlternativeCodeDirectoryLimit {
		return fmt.Sprintf("CSSLOT_ALTERNATE_CODEDIRECTORY(%d)", slot-SlotAlternativeCodeDirectories)
	}

	return fmt.Sprintf("0x%x", uint32(slot))
}
