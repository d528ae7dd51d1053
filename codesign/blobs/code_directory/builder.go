package code_directory

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math"
	"math/bits"
	"slices"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/hash"
)

// DefaultPageSize is the code page size a
// Builder is constructed with.
const DefaultPageSize = 4096

// Builder accumulates the metadata and hash
// slots of a CodeDirectory for a single hash
// type and lays them out into a blob of the
// requested version.
//
// A Builder performs no internal synchronization.
type Builder struct {
	hashType  hash.Type
	digestLen int

	specialSlots map[int][]byte
	codeSlots    [][]byte

	execLength uint64
	pageSize   uint32
	flags      CodeDirectoryFlag
	platform   uint8
	identifier string
	teamID     string
	scatter    ScatterSet
	execSeg    ExecSegment
	runtime    RuntimeVersion
	preEncrypt bool
}

// NewBuilder constructs an empty Builder
// producing hash slots of hashType.
func NewBuilder(hashType hash.Type) (*Builder, error) {
	digestLen, err := hash.DigestLength(hashType)
	if err != nil {
		return nil, err
	}

	return &Builder{
		hashType:     hashType,
		digestLen:    digestLen,
		specialSlots: make(map[int][]byte),
		pageSize:     DefaultPageSize,
	}, nil
}

func (builder *Builder) HashType() hash.Type {
	return builder.hashType
}

// DigestLength returns the length every hash
// slot of this Builder must have.
func (builder *Builder) DigestLength() int {
	return builder.digestLen
}

// SetExecLength sets the length of the code
// covered by the code slots.
func (builder *Builder) SetExecLength(length uint64) {
	builder.execLength = length
}

func (builder *Builder) ExecLength() uint64 {
	return builder.execLength
}

// SetPageSize sets the size of the pages the
// code is hashed in. A size of zero hashes the
// whole code as a single page.
func (builder *Builder) SetPageSize(size uint32) error {
	if size != 0 && (size == 1 || size&(size-1) != 0) {
		return fmt.Errorf("page size %d: %w", size, ErrInvalidPageSize)
	}

	builder.pageSize = size
	return nil
}

func (builder *Builder) PageSize() uint32 {
	return builder.pageSize
}

func (builder *Builder) SetFlags(flags CodeDirectoryFlag) {
	builder.flags = flags
}

func (builder *Builder) SetPlatform(platform uint8) {
	builder.platform = platform
}

func (builder *Builder) SetIdentifier(identifier string) {
	builder.identifier = identifier
}

func (builder *Builder) SetTeamID(teamID string) {
	builder.teamID = teamID
}

func (builder *Builder) SetExecSegment(seg ExecSegment) {
	builder.execSeg = seg
}

func (builder *Builder) SetRuntime(version RuntimeVersion) {
	builder.runtime = version
}

// SetPreEncrypt controls whether a copy of
// the code slots is recorded as the hashes
// of the code before encryption.
func (builder *Builder) SetPreEncrypt(preEncrypt bool) {
	builder.preEncrypt = preEncrypt
}

// CreateScatter allocates a scatter vector of
// count entries followed by a zero count sentinel
// and returns it for the caller to fill in.
func (builder *Builder) CreateScatter(count int) ScatterSet {
	builder.scatter = make(ScatterSet, count+1)
	return builder.scatter
}

// SetScatter replaces the scatter vector, a
// sentinel is appended when set lacks one.
// A nil set removes the scatter vector.
func (builder *Builder) SetScatter(set ScatterSet) {
	if len(set) > 0 && !set.hasSentinel() {
		set = append(slices.Clip(set), Scatter{})
	}

	builder.scatter = set
}

func (builder *Builder) Scatter() ScatterSet {
	return builder.scatter
}

// CodeSlots returns the number of code slots
// needed to cover the exec length with pages
// of the configured page size.
func (builder *Builder) CodeSlots() int {
	return int(hash.ChunkCount(int64(min(builder.execLength, math.MaxInt64)), int64(builder.pageSize)))
}

// SpecialSlots returns the number of special
// slots, that is the highest special slot set.
func (builder *Builder) SpecialSlots() int {
	if len(builder.specialSlots) == 0 {
		return 0
	}

	return slices.Max(slices.Collect(maps.Keys(builder.specialSlots)))
}

// SetSpecialSlot stores the hash of special slot n,
// numbered from 1. A nil digest clears the slot.
func (builder *Builder) SetSpecialSlot(n int, digest []byte) error {
	if n < 1 {
		return fmt.Errorf("special slot %d: %w", n, ErrInvalidSlot)
	}

	if digest == nil {
		delete(builder.specialSlots, n)
		return nil
	}

	if len(digest) != builder.digestLen {
		return fmt.Errorf("special slot %d hash of %d bytes for %s: %w", n, len(digest), builder.hashType, ErrInvalidHashSize)
	}

	builder.specialSlots[n] = slices.Clone(digest)
	return nil
}

// SpecialSlot returns the hash stored in
// special slot n or nil when it's unset.
func (builder *Builder) SpecialSlot(n int) []byte {
	return builder.specialSlots[n]
}

// SetCodeSlot stores the hash of code page n.
// A nil digest clears the slot.
func (builder *Builder) SetCodeSlot(n int, digest []byte) error {
	if codeSlots := builder.CodeSlots(); n < 0 || n >= codeSlots {
		return fmt.Errorf("code slot %d of %d: %w", n, codeSlots, ErrInvalidSlot)
	}

	if digest != nil && len(digest) != builder.digestLen {
		return fmt.Errorf("code slot %d hash of %d bytes for %s: %w", n, len(digest), builder.hashType, ErrInvalidHashSize)
	}

	if n >= len(builder.codeSlots) {
		if digest == nil {
			return nil
		}

		builder.codeSlots = append(builder.codeSlots, make([][]byte, n+1-len(builder.codeSlots))...)
	}

	builder.codeSlots[n] = slices.Clone(digest)

	for len(builder.codeSlots) > 0 && builder.codeSlots[len(builder.codeSlots)-1] == nil {
		builder.codeSlots = builder.codeSlots[:len(builder.codeSlots)-1]
	}

	return nil
}

// CodeSlot returns the hash stored in
// code slot n or nil when it's unset.
func (builder *Builder) CodeSlot(n int) []byte {
	if n < 0 || n >= len(builder.codeSlots) {
		return nil
	}

	return builder.codeSlots[n]
}

// HashSpecialSlot hashes data into
// special slot n.
func (builder *Builder) HashSpecialSlot(n int, data []byte) error {
	digest, err := hash.Sum(builder.hashType, data)
	if err != nil {
		return err
	}

	return builder.SetSpecialSlot(n, digest)
}

// HashCode hashes the exec length bytes of src
// page by page into the code slots, with at most
// limit pages hashed concurrently when limit is
// positive.
func (builder *Builder) HashCode(ctx context.Context, src io.ReaderAt, limit int) error {
	if builder.execLength > math.MaxInt64 {
		return fmt.Errorf("exec length %d can't be addressed by a reader", builder.execLength)
	}

	digests, err := hash.ChunkedHashesAt(ctx, builder.hashType, src, int64(builder.pageSize), 0, int64(builder.execLength), limit)
	if err != nil {
		return fmt.Errorf("hash code pages: %w", err)
	}

	for slot, digest := range digests {
		if err = builder.SetCodeSlot(slot, digest); err != nil {
			return err
		}
	}

	return nil
}

// Version returns the earliest version able to
// represent every feature configured on the
// Builder.
func (builder *Builder) Version() SupportsVersion {
	switch {
	case !builder.runtime.IsZero() || builder.preEncrypt:
		return SupportsVersionRuntime

	case !builder.execSeg.IsZero():
		return SupportsVersionExecSeg

	case builder.execLength > math.MaxUint32:
		return SupportsVersionCodeLimit64

	case len(builder.teamID) > 0:
		return SupportsVersionTeamID

	case len(builder.scatter) > 0:
		return SupportsVersionScatter

	default:
		return SupportsVersionEarliest
	}
}

func (builder *Builder) resolveVersion(version SupportsVersion) (SupportsVersion, error) {
	if version == 0 {
		version = builder.Version()
	}

	if version < SupportsVersionEarliest || version > SupportsVersionCurrent {
		return 0, fmt.Errorf("version 0x%x: %w", uint32(version), ErrUnsupportedVersion)
	}

	return version, nil
}

// Size returns the length, in bytes, of the
// CodeDirectory Build would produce for version.
// A version of zero selects Version.
//
// Features the version doesn't support are left
// out of both Size and Build.
func (builder *Builder) Size(version SupportsVersion) (int, error) {
	version, err := builder.resolveVersion(version)
	if err != nil {
		return 0, err
	}

	var (
		size      = uint64(FixedSize(version))
		codeSlots = uint64(builder.CodeSlots())
		digestLen = uint64(builder.digestLen)
	)

	if version.Supports(SupportsVersionScatter) && len(builder.scatter) > 0 {
		size += uint64(len(builder.scatter)) * scatterSize
	}

	size += uint64(len(builder.identifier)) + 1

	if version.Supports(SupportsVersionTeamID) && len(builder.teamID) > 0 {
		size += uint64(len(builder.teamID)) + 1
	}

	size += (codeSlots + uint64(builder.SpecialSlots())) * digestLen

	if version.Supports(SupportsVersionPreEncrypt) && builder.preEncrypt {
		size += codeSlots * digestLen
	}

	if size > math.MaxUint32 || codeSlots > math.MaxUint32 {
		return 0, fmt.Errorf("code directory size %d overflows the blob length field: %w", size, blobs.ErrInvalidLength)
	}

	return int(size), nil
}

// Build lays the Builder out into a new
// CodeDirectory of the supplied version,
// a version of zero selects Version.
//
// Build doesn't modify the Builder, calling
// it again with the same configuration
// produces byte-identical output.
func (builder *Builder) Build(version SupportsVersion) (*CodeDirectory, error) {
	version, err := builder.resolveVersion(version)
	if err != nil {
		return nil, err
	}

	size, err := builder.Size(version)
	if err != nil {
		return nil, err
	}

	var (
		raw       = make([]byte, size)
		view      = blobs.NewLayout(raw, 0, binary.BigEndian)
		codeSlots = builder.CodeSlots()
		special   = builder.SpecialSlots()
	)

	blobs.BlobHeader{Magic: blobs.MagicCodeDirectory, Length: uint32(size)}.Put(raw)
	view.SetUint32(offsetVersion, uint32(version))
	view.SetUint32(offsetFlags, uint32(builder.flags))
	view.SetUint32(offsetNSpecialSlots, uint32(special))
	view.SetUint32(offsetNCodeSlots, uint32(codeSlots))
	view.SetUint8(offsetHashSize, uint8(builder.digestLen))
	view.SetUint8(offsetHashType, uint8(builder.hashType))
	view.SetUint8(offsetPlatform, builder.platform)

	if builder.pageSize > 0 {
		view.SetUint8(offsetPageSize, uint8(bits.TrailingZeros32(builder.pageSize)))
	}

	switch {
	case builder.execLength <= math.MaxUint32:
		view.SetUint32(offsetCodeLimit, uint32(builder.execLength))

	case version.Supports(SupportsVersionCodeLimit64):
		view.SetUint64(offsetCodeLimit64, builder.execLength)

	default:
		// Saturates, the version has no room
		// for the real length.
		view.SetUint32(offsetCodeLimit, math.MaxUint32)
	}

	if version.Supports(SupportsVersionExecSeg) {
		view.SetUint64(offsetExecSegBase, builder.execSeg.SegmentBase)
		view.SetUint64(offsetExecSegLimit, builder.execSeg.SegmentLimit)
		view.SetUint64(offsetExecSegFlags, uint64(builder.execSeg.Flags))
	}

	if version.Supports(SupportsVersionRuntime) {
		view.SetUint32(offsetRuntime, builder.runtime.Uint32())
	}

	offset := FixedSize(version)

	if version.Supports(SupportsVersionScatter) && len(builder.scatter) > 0 {
		view.SetUint32(offsetScatterOffset, uint32(offset))
		for _, scatter := range builder.scatter {
			scatter.put(view.Sub(offset))
			offset += scatterSize
		}
	}

	if len(builder.identifier) > 0 {
		view.SetUint32(offsetIdentOffset, uint32(offset))
	}
	offset += view.SetCString(offset, builder.identifier)

	if version.Supports(SupportsVersionTeamID) && len(builder.teamID) > 0 {
		view.SetUint32(offsetTeamOffset, uint32(offset))
		offset += view.SetCString(offset, builder.teamID)
	}

	if version.Supports(SupportsVersionPreEncrypt) && builder.preEncrypt {
		if codeSlots > 0 {
			view.SetUint32(offsetPreEncryptOffset, uint32(offset))
		}

		offset = builder.putCodeSlots(view, offset, codeSlots)
	}

	for n := special; n > 0; n-- {
		if digest := builder.specialSlots[n]; digest != nil {
			view.SetBytes(offset, digest)
		}

		offset += builder.digestLen
	}

	view.SetUint32(offsetHashOffset, uint32(offset))
	offset = builder.putCodeSlots(view, offset, codeSlots)

	if offset != size {
		return nil, fmt.Errorf("code directory layout ended at %d of %d bytes", offset, size)
	}

	cd, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse built code directory: %w", err)
	}

	return cd, nil
}

func (builder *Builder) putCodeSlots(view blobs.Layout, offset, codeSlots int) int {
	for n := range codeSlots {
		if digest := builder.CodeSlot(n); digest != nil {
			view.SetBytes(offset, digest)
		}

		offset += builder.digestLen
	}

	return offset
}
