package code_directory

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/hash"
)

// CDHashSize is the length, in bytes, of the
// truncated hash used to identify a CodeDirectory.
const CDHashSize = 20

var (
	Metadata = blobs.BlobMetadata{
		Name:       "CSMAGIC_CODEDIRECTORY",
		MagicValue: uint32(blobs.MagicCodeDirectory),
		Decoder:    Decoder,
	}
)

// CodeDirectory is a read-only view over
// an encoded CodeDirectory blob.
type CodeDirectory struct {
	hdr      blobs.BlobHeader
	view     blobs.Layout
	version  SupportsVersion
	hashType hash.Type
	hashSize int
}

func Decoder(_ blobs.BlobHeader, raw []byte) (blobs.Blob, error) {
	cd, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	return cd, nil
}

// Parse validates raw as a CodeDirectory and
// returns a view over it. Every offset stored
// in the fixed header that the version of the
// CodeDirectory covers is checked to lie
// within the blob.
func Parse(raw []byte) (*CodeDirectory, error) {
	hdr, err := blobs.ParseHeader(raw)
	switch {
	case err != nil:
		return nil, fmt.Errorf("parse code directory header: %w", err)

	case hdr.Magic != blobs.MagicCodeDirectory:
		return nil, fmt.Errorf("magic in blob header (%s) doesn't match the expected value (%s): %w", hdr.Magic, blobs.MagicCodeDirectory, blobs.ErrMagicMismatch)

	case int(hdr.Length) < FixedSize(SupportsVersionEarliest):
		return nil, fmt.Errorf("code directory length %d is too small for the fixed header: %w", hdr.Length, blobs.ErrInvalidLength)
	}

	raw = raw[:hdr.Length:hdr.Length]
	cd := &CodeDirectory{
		hdr:  hdr,
		view: blobs.NewLayout(raw, 0, binary.BigEndian),
	}

	cd.version = SupportsVersion(cd.view.Uint32(offsetVersion))
	if cd.version < SupportsVersionEarliest {
		return nil, fmt.Errorf("version %s: %w", cd.version, ErrUnsupportedVersion)
	}

	if fixed := FixedSize(cd.version); int(hdr.Length) < fixed {
		return nil, fmt.Errorf("code directory length %d is too small for the %d byte header of version 0x%x: %w", hdr.Length, fixed, uint32(cd.version), blobs.ErrInvalidLength)
	}

	if err = cd.validate(); err != nil {
		return nil, err
	}

	return cd, nil
}

func (cd *CodeDirectory) validate() error {
	cd.hashType = hash.Type(cd.view.Uint8(offsetHashType))
	cd.hashSize = int(cd.view.Uint8(offsetHashSize))

	switch {
	case !cd.hashType.Valid():
		return fmt.Errorf("hash type %s: %w", cd.hashType, hash.ErrUnknownHashType)

	case cd.hashSize != int(cd.hashType.Size()):
		return fmt.Errorf("slot hash size (%d) != hash type size (%d): %w", cd.hashSize, cd.hashType.Size(), ErrInvalidHashSize)
	}

	var (
		length     = uint64(cd.hdr.Length)
		hashOffset = uint64(cd.HashOffset())
		special    = uint64(cd.SpecialSlots()) * uint64(cd.hashSize)
		code       = uint64(cd.CodeSlots()) * uint64(cd.hashSize)
	)

	switch {
	case hashOffset > length:
		return fmt.Errorf("hashes offset (%d) outside of blob bounds (%d): %w", hashOffset, length, blobs.ErrOutOfBounds)

	case hashOffset < special:
		return fmt.Errorf("special slots overflow the start of the blob: %w", blobs.ErrOutOfBounds)

	case length-hashOffset < code:
		return fmt.Errorf("code slots overflow past blob length: %w", blobs.ErrOutOfBounds)
	}

	if offset := cd.view.Uint32(offsetIdentOffset); offset != 0 {
		if _, err := cd.view.CString(int(offset)); err != nil {
			return fmt.Errorf("decode identifier: %w", err)
		}
	}

	if offset := cd.TeamIDOffset(); offset != 0 {
		if _, err := cd.view.CString(int(offset)); err != nil {
			return fmt.Errorf("decode team ID: %w", err)
		}
	}

	if offset := cd.ScatterOffset(); offset != 0 {
		if _, err := decodeScatterSet(cd.Bytes(), offset); err != nil {
			return fmt.Errorf("decode scatter: %w", err)
		}
	}

	if offset := uint64(cd.PreEncryptOffset()); offset != 0 && (offset > length || length-offset < code) {
		return fmt.Errorf("pre-encrypt slots overflow past blob length: %w", blobs.ErrOutOfBounds)
	}

	return nil
}

func (cd *CodeDirectory) Magic() blobs.Magic {
	return cd.hdr.Magic
}

func (cd *CodeDirectory) Length() uint32 {
	return cd.hdr.Length
}

func (cd *CodeDirectory) Bytes() []byte {
	return cd.view.Bytes(0, int(cd.hdr.Length))
}

func (cd *CodeDirectory) Version() SupportsVersion {
	return cd.version
}

func (cd *CodeDirectory) Flags() CodeDirectoryFlag {
	return CodeDirectoryFlag(cd.view.Uint32(offsetFlags))
}

func (cd *CodeDirectory) HashOffset() uint32 {
	return cd.view.Uint32(offsetHashOffset)
}

func (cd *CodeDirectory) IdentOffset() uint32 {
	return cd.view.Uint32(offsetIdentOffset)
}

func (cd *CodeDirectory) SpecialSlots() int {
	return int(cd.view.Uint32(offsetNSpecialSlots))
}

func (cd *CodeDirectory) CodeSlots() int {
	return int(cd.view.Uint32(offsetNCodeSlots))
}

func (cd *CodeDirectory) HashType() hash.Type {
	return cd.hashType
}

func (cd *CodeDirectory) HashSize() int {
	return cd.hashSize
}

func (cd *CodeDirectory) Platform() uint8 {
	return cd.view.Uint8(offsetPlatform)
}

// PageSize returns the size of a code page, a
// size of zero means a single page covers
// all of the code.
func (cd *CodeDirectory) PageSize() uint32 {
	if shift := cd.view.Uint8(offsetPageSize); shift > 0 && shift < 32 {
		return 1 << shift
	}

	return 0
}

// CodeLimit returns the length of the code
// covered by the code slots, read from the
// 64-bit field when the version supports
// it and it is set.
func (cd *CodeDirectory) CodeLimit() uint64 {
	if cd.version.Supports(SupportsVersionCodeLimit64) {
		if limit := cd.view.Uint64(offsetCodeLimit64); limit != 0 {
			return limit
		}
	}

	return uint64(cd.view.Uint32(offsetCodeLimit))
}

// Identifier returns the signing
// identifier of the code.
func (cd *CodeDirectory) Identifier() string {
	if offset := cd.IdentOffset(); offset != 0 {
		// Validated by Parse
		ident, _ := cd.view.CString(int(offset))
		return ident
	}

	return ""
}

func (cd *CodeDirectory) TeamIDOffset() uint32 {
	if cd.version.Supports(SupportsVersionTeamID) {
		return cd.view.Uint32(offsetTeamOffset)
	}

	return 0
}

func (cd *CodeDirectory) TeamID() string {
	if offset := cd.TeamIDOffset(); offset != 0 {
		teamID, _ := cd.view.CString(int(offset))
		return teamID
	}

	return ""
}

func (cd *CodeDirectory) ScatterOffset() uint32 {
	if cd.version.Supports(SupportsVersionScatter) {
		return cd.view.Uint32(offsetScatterOffset)
	}

	return 0
}

// Scatter returns the scatter vector,
// sentinel included, or nil when the
// CodeDirectory has none.
func (cd *CodeDirectory) Scatter() ScatterSet {
	if offset := cd.ScatterOffset(); offset != 0 {
		set, _ := decodeScatterSet(cd.Bytes(), offset)
		return set
	}

	return nil
}

func (cd *CodeDirectory) ExecSegment() ExecSegment {
	if !cd.version.Supports(SupportsVersionExecSeg) {
		return ExecSegment{}
	}

	return ExecSegment{
		SegmentBase:  cd.view.Uint64(offsetExecSegBase),
		SegmentLimit: cd.view.Uint64(offsetExecSegLimit),
		Flags:        ExecSegmentFlag(cd.view.Uint64(offsetExecSegFlags)),
	}
}

func (cd *CodeDirectory) Runtime() RuntimeVersion {
	if !cd.version.Supports(SupportsVersionRuntime) {
		return RuntimeVersion{}
	}

	return RuntimeVersionFromUint32(cd.view.Uint32(offsetRuntime))
}

func (cd *CodeDirectory) PreEncryptOffset() uint32 {
	if cd.version.Supports(SupportsVersionPreEncrypt) {
		return cd.view.Uint32(offsetPreEncryptOffset)
	}

	return 0
}

// SpecialSlot returns the hash stored in the
// special slot n, numbered from 1 and stored
// in descending order before the code slots.
func (cd *CodeDirectory) SpecialSlot(n int) ([]byte, error) {
	if n < 1 || n > cd.SpecialSlots() {
		return nil, fmt.Errorf("special slot %d of %d: %w", n, cd.SpecialSlots(), ErrInvalidSlot)
	}

	return cd.view.Bytes(int(cd.HashOffset())-n*cd.hashSize, cd.hashSize), nil
}

// CodeSlot returns the hash of code page n.
func (cd *CodeDirectory) CodeSlot(n int) ([]byte, error) {
	if n < 0 || n >= cd.CodeSlots() {
		return nil, fmt.Errorf("code slot %d of %d: %w", n, cd.CodeSlots(), ErrInvalidSlot)
	}

	return cd.view.Bytes(int(cd.HashOffset())+n*cd.hashSize, cd.hashSize), nil
}

// PreEncryptSlot returns the hash of code
// page n before it was encrypted.
func (cd *CodeDirectory) PreEncryptSlot(n int) ([]byte, error) {
	offset := cd.PreEncryptOffset()
	if offset == 0 || n < 0 || n >= cd.CodeSlots() {
		return nil, fmt.Errorf("pre-encrypt slot %d: %w", n, ErrInvalidSlot)
	}

	return cd.view.Bytes(int(offset)+n*cd.hashSize, cd.hashSize), nil
}

// Hash returns the digest of the encoded
// CodeDirectory using its own hash type.
func (cd *CodeDirectory) Hash() ([]byte, error) {
	digest, err := hash.Sum(cd.hashType, cd.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hash code directory: %w", err)
	}

	return digest, nil
}

// CDHash returns the Hash truncated to the
// length used to identify the CodeDirectory.
func (cd *CodeDirectory) CDHash() ([]byte, error) {
	digest, err := cd.Hash()
	if err != nil {
		return nil, err
	}

	return digest[:min(len(digest), CDHashSize)], nil
}

func (cd *CodeDirectory) String() string {
	var builder strings.Builder

	builder.WriteString("CodeDirectory{")
	_, _ = fmt.Fprintf(&builder, "length: %d, ", cd.hdr.Length)
	_, _ = fmt.Fprintf(&builder, "version: %s, ", cd.Version())
	_, _ = fmt.Fprintf(&builder, "identifier: %s, ", cd.Identifier())

	if teamID := cd.TeamID(); len(teamID) > 0 {
		_, _ = fmt.Fprintf(&builder, "team_id: %s, ", teamID)
	}

	_, _ = fmt.Fprintf(&builder, "flags: %s, ", cd.Flags())
	_, _ = fmt.Fprintf(&builder, "hash_type: %s, ", cd.HashType())
	_, _ = fmt.Fprintf(&builder, "hashes: %d+%d, ", cd.CodeSlots(), cd.SpecialSlots())

	if cdHash, err := cd.CDHash(); err == nil {
		_, _ = fmt.Fprintf(&builder, "cd_hash: %s", hex.EncodeToString(cdHash))
	} else {
		_, _ = fmt.Fprintf(&builder, "cd_hash: ERR(%s)", err)
	}

	builder.WriteString("}")

	return builder.String()
}
