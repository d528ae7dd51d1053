package requirement

import (
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
)

// Kind identifies the encoding of the
// body following a Requirement header.
type Kind uint32

const (
	KindInvalid Kind = iota
	KindExpression
	KindLightweightCodeRequirement
)

func (kind Kind) String() string {
	switch kind {
	case KindExpression:
		return "expr"

	case KindLightweightCodeRequirement:
		return "lwcr"

	case KindInvalid:
		return "invalid"

	default:
		return fmt.Sprintf("0x%x", uint32(kind))
	}
}

// Type is the role of a Requirement within a
// Requirements set, it is used as the index
// type of the set.
type Type uint32

const (
	TypeHost Type = iota + 1
	TypeGuest
	TypeDesignated
	TypeLibrary
	TypePlugin
)

var typeToName = map[Type]string{
	TypeHost:       "host",
	TypeGuest:      "guest",
	TypeDesignated: "designated",
	TypeLibrary:    "library",
	TypePlugin:     "plugin",
}

// Slot returns the SuperBlob index
// type the Requirement is stored under.
func (t Type) Slot() super_blob.Slot {
	return super_blob.Slot(t)
}

func (t Type) String() string {
	if name, exists := typeToName[t]; exists {
		return name
	}

	return fmt.Sprintf("0x%x", uint32(t))
}

// Opcode is an instruction of the
// requirement expression language.
type Opcode uint32

const (
	OpFalse Opcode = iota
	OpTrue
	OpIdent
	OpAppleAnchor
	OpAnchorHash
	OpInfoKeyValue
	OpAnd
	OpOr
	OpCDHash
	OpNot
	OpInfoKeyField
	OpCertField
	OpTrustedCert
	OpTrustedCerts
	OpCertGeneric
	OpAppleGenericAnchor
	OpEntitlementField
	OpCertPolicy
	OpNamedAnchor
	OpNamedCode
	OpPlatform
	OpNotarized
	OpCertFieldDate
	OpLegacyDevID
)

// Match is the comparison applied by the
// field matching opcodes.
type Match uint32

const (
	MatchExists Match = iota
	MatchEqual
	MatchContains
	MatchBeginsWith
	MatchEndsWith
	MatchLessThan
	MatchGreaterThan
	MatchLessEqual
	MatchGreaterEqual
	MatchOn
	MatchBefore
	MatchAfter
	MatchOnOrBefore
	MatchOnOrAfter
	MatchAbsent
)

// Certificate positions used by the
// certificate opcodes, positive values
// count from the leaf.
const (
	CertLeaf   int32 = 0
	CertAnchor int32 = -1
)
