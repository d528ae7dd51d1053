package requirement

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
)

// Maker assembles the bytecode of a single
// requirement expression and wraps it into
// a Requirement blob.
//
// Every item is written big-endian and data
// items are padded to a 4 byte boundary.
type Maker struct {
	kind Kind
	buf  []byte
}

// NewMaker constructs an empty Maker
// producing a Requirement of kind.
func NewMaker(kind Kind) *Maker {
	return &Maker{kind: kind}
}

// Kind returns the kind of the
// Requirement being built.
func (maker *Maker) Kind() Kind {
	return maker.kind
}

// Len returns the number of bytecode
// bytes written so far.
func (maker *Maker) Len() int {
	return len(maker.buf)
}

// Put appends raw bytecode without
// any length prefix or padding.
func (maker *Maker) Put(raw []byte) *Maker {
	maker.buf = append(maker.buf, raw...)
	return maker
}

// PutUint32 appends a single
// big-endian integer.
func (maker *Maker) PutUint32(v uint32) *Maker {
	maker.buf = binary.BigEndian.AppendUint32(maker.buf, v)
	return maker
}

// PutOp appends an opcode.
func (maker *Maker) PutOp(op Opcode) *Maker {
	return maker.PutUint32(uint32(op))
}

// PutData appends a length prefixed data
// item padded with zeros to the base
// alignment.
func (maker *Maker) PutData(data []byte) *Maker {
	maker.PutUint32(uint32(len(data)))
	maker.buf = append(maker.buf, data...)
	maker.buf = append(maker.buf, make([]byte, padding(len(data)))...)

	return maker
}

// PutString is the string form of PutData.
func (maker *Maker) PutString(s string) *Maker {
	return maker.PutData([]byte(s))
}

// And starts a conjunction, the two
// expressions that follow are its operands.
func (maker *Maker) And() *Maker {
	return maker.PutOp(OpAnd)
}

// Or starts a disjunction, the two
// expressions that follow are its operands.
func (maker *Maker) Or() *Maker {
	return maker.PutOp(OpOr)
}

// Not negates the expression that follows.
func (maker *Maker) Not() *Maker {
	return maker.PutOp(OpNot)
}

// Ident matches the signing identifier.
func (maker *Maker) Ident(identifier string) *Maker {
	return maker.PutOp(OpIdent).PutString(identifier)
}

// CDHash matches the hash of the
// CodeDirectory of the code.
func (maker *Maker) CDHash(cdHash []byte) *Maker {
	return maker.PutOp(OpCDHash).PutData(cdHash)
}

// AppleAnchor requires the certificate
// chain to end at an Apple root.
func (maker *Maker) AppleAnchor() *Maker {
	return maker.PutOp(OpAppleAnchor)
}

// AppleGenericAnchor requires the certificate
// chain to end at an Apple root, including
// those issued to developers.
func (maker *Maker) AppleGenericAnchor() *Maker {
	return maker.PutOp(OpAppleGenericAnchor)
}

// AnchorHash matches the SHA-1 hash
// of the certificate at position cert.
func (maker *Maker) AnchorHash(cert int32, digest []byte) *Maker {
	return maker.PutOp(OpAnchorHash).PutUint32(uint32(cert)).PutData(digest)
}

// CertField matches a named field of
// the certificate at position cert.
func (maker *Maker) CertField(cert int32, field string, match Match, value string) *Maker {
	maker.PutOp(OpCertField).PutUint32(uint32(cert)).PutString(field)
	return maker.putMatch(match, value)
}

// CertGeneric matches an extension, by DER
// encoded OID, of the certificate at
// position cert.
func (maker *Maker) CertGeneric(cert int32, oid []byte, match Match, value string) *Maker {
	maker.PutOp(OpCertGeneric).PutUint32(uint32(cert)).PutData(oid)
	return maker.putMatch(match, value)
}

// InfoKey matches a key of the
// Info.plist bound to the signature.
func (maker *Maker) InfoKey(key string, match Match, value string) *Maker {
	maker.PutOp(OpInfoKeyField).PutString(key)
	return maker.putMatch(match, value)
}

// EntitlementField matches a key of
// the embedded entitlements.
func (maker *Maker) EntitlementField(key string, match Match, value string) *Maker {
	maker.PutOp(OpEntitlementField).PutString(key)
	return maker.putMatch(match, value)
}

// Platform matches the platform
// identifier of the code.
func (maker *Maker) Platform(platform uint32) *Maker {
	return maker.PutOp(OpPlatform).PutUint32(platform)
}

func (maker *Maker) putMatch(match Match, value string) *Maker {
	maker.PutUint32(uint32(match))

	switch match {
	case MatchExists, MatchAbsent:
		return maker

	default:
		return maker.PutString(value)
	}
}

// Make wraps the bytecode written so far
// into a new Requirement blob. The Maker
// is left untouched and can keep being
// written to.
func (maker *Maker) Make() (*Requirement, error) {
	size := uint64(headerSize) + uint64(len(maker.buf)) + uint64(padding(len(maker.buf)))
	if size > math.MaxUint32 {
		return nil, fmt.Errorf("requirement size %d overflows the blob length field: %w", size, blobs.ErrInvalidLength)
	}

	raw := make([]byte, size)
	blobs.BlobHeader{Magic: blobs.MagicRequirement, Length: uint32(size)}.Put(raw)
	binary.BigEndian.PutUint32(raw[8:], uint32(maker.kind))
	copy(raw[headerSize:], maker.buf)

	return Parse(raw)
}

func padding(n int) int {
	return (baseAlignment - n%baseAlignment) % baseAlignment
}

// Marker extension of the Apple WWDR
// intermediate certificate, 1.2.840.113635.100.6.2.1.
var wwdrIntermediateOID = []byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x63, 0x64, 0x06, 0x02, 0x01}

// Designated builds the designated requirement
// used for code identified by identifier:
//
//	identifier "<identifier>" and anchor apple generic
//
// When signerCN is not empty the leaf subject
// common name and the WWDR intermediate
// marker are required as well.
func Designated(identifier, signerCN string) (*Requirement, error) {
	maker := NewMaker(KindExpression).And().Ident(identifier)

	if signerCN == "" {
		maker.AppleGenericAnchor()
	} else {
		maker.And().AppleGenericAnchor().
			And().
			CertField(CertLeaf, "subject.CN", MatchEqual, signerCN).
			CertGeneric(1, wwdrIntermediateOID, MatchExists, "")
	}

	return maker.Make()
}
