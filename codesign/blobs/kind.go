package blobs

// Magic values of the Code Signature blob
// types defined by the darwin kernel and
// the Security framework.
const (
	MagicRequirement              Magic = 0xfade0c00
	MagicRequirements             Magic = 0xfade0c01
	MagicCodeDirectory            Magic = 0xfade0c02
	MagicLibraryDependency        Magic = 0xfade0c05
	MagicEmbeddedSignature        Magic = 0xfade0cc0
	MagicDetachedSignature        Magic = 0xfade0cc1
	MagicBlobWrapper              Magic = 0xfade0b01
	MagicEmbeddedSignatureOld     Magic = 0xfade0b02
	MagicEmbeddedEntitlements     Magic = 0xfade7171
	MagicEmbeddedDEREntitlements  Magic = 0xfade7172
	MagicEmbeddedLaunchConstraint Magic = 0xfade8181
)

// Kind is the closed set of Code Signature
// blob types this library knows the layout of.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRequirement
	KindRequirements
	KindCodeDirectory
	KindLibraryDependency
	KindEmbeddedSignature
	KindDetachedSignature
	KindBlobWrapper
	KindEmbeddedSignatureOld
	KindEntitlements
	KindDEREntitlements
	KindLaunchConstraint
)

var kindToName = [...]string{
	KindUnknown:              "unknown",
	KindRequirement:          "requirement",
	KindRequirements:         "requirements",
	KindCodeDirectory:        "code_directory",
	KindLibraryDependency:    "library_dependency",
	KindEmbeddedSignature:    "embedded_signature",
	KindDetachedSignature:    "detached_signature",
	KindBlobWrapper:          "blob_wrapper",
	KindEmbeddedSignatureOld: "embedded_signature_old",
	KindEntitlements:         "entitlements",
	KindDEREntitlements:      "der_entitlements",
	KindLaunchConstraint:     "launch_constraint",
}

// Classify maps a Magic to the Kind of blob
// it identifies, any value outside of the
// known set is KindUnknown.
func Classify(magic Magic) Kind {
	switch magic {
	case MagicRequirement:
		return KindRequirement
	case MagicRequirements:
		return KindRequirements
	case MagicCodeDirectory:
		return KindCodeDirectory
	case MagicLibraryDependency:
		return KindLibraryDependency
	case MagicEmbeddedSignature:
		return KindEmbeddedSignature
	case MagicDetachedSignature:
		return KindDetachedSignature
	case MagicBlobWrapper:
		return KindBlobWrapper
	case MagicEmbeddedSignatureOld:
		return KindEmbeddedSignatureOld
	case MagicEmbeddedEntitlements:
		return KindEntitlements
	case MagicEmbeddedDEREntitlements:
		return KindDEREntitlements
	case MagicEmbeddedLaunchConstraint:
		return KindLaunchConstraint
	default:
		return KindUnknown
	}
}

// IsSuperBlob reports whether blobs of this
// Kind are an indexed list of other blobs.
func (kind Kind) IsSuperBlob() bool {
	switch kind {
	case KindRequirements, KindLibraryDependency, KindEmbeddedSignature, KindDetachedSignature, KindEmbeddedSignatureOld:
		return true
	default:
		return false
	}
}

func (kind Kind) String() string {
	if int(kind) < len(kindToName) {
		return kindToName[kind]
	}

	return kindToName[KindUnknown]
}
