package codesign

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"testing"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/blobs/code_directory"
	"github.com/KatelynHaworth/csblob/codesign/blobs/entitlements"
	"github.com/KatelynHaworth/csblob/codesign/blobs/requirement"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/KatelynHaworth/csblob/codesign/dmg"
	"github.com/KatelynHaworth/csblob/codesign/hash"
	"github.com/KatelynHaworth/csblob/vfs"
	"github.com/blacktop/go-macho/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInfoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleIdentifier</key>
	<string>com.example.tool</string>
</dict>
</plist>
`

func testCode(size int) []byte {
	code := make([]byte, size)
	for i := range code {
		code[i] = byte(i * 7)
	}

	return code
}

func sign(t *testing.T, opts Options, code []byte) *super_blob.SuperBlob {
	t.Helper()

	signer, err := NewSigner(zerolog.Nop(), opts)
	require.NoError(t, err)

	signature, err := signer.Sign(context.Background(), vfs.NewMemoryFileFrom(code), uint64(len(code)))
	require.NoError(t, err)

	return signature
}

func findCodeDirectory(t *testing.T, signature *super_blob.SuperBlob, slot super_blob.Slot) *code_directory.CodeDirectory {
	t.Helper()

	raw, found := signature.Find(slot)
	require.True(t, found, "%s missing", slot)

	cd, err := code_directory.Parse(raw)
	require.NoError(t, err)

	return cd
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner(zerolog.Nop(), Options{})
	assert.ErrorIs(t, err, ErrNoHashTypes)

	_, err = NewSigner(zerolog.Nop(), Options{HashTypes: []hash.Type{hash.TypeSHA256, hash.TypeSHA1, hash.TypeSHA1, hash.TypeSHA1, hash.TypeSHA1, hash.TypeSHA1, hash.TypeSHA1}})
	assert.Error(t, err)

	_, err = NewSigner(zerolog.Nop(), Options{HashTypes: []hash.Type{hash.TypeInvalid}})
	assert.Error(t, err)

	_, err = NewSigner(zerolog.Nop(), Options{HashTypes: []hash.Type{hash.TypeSHA256}, InfoPlist: []byte("<plist><dict>")})
	assert.Error(t, err)
}

func TestSignSlots(t *testing.T) {
	code := testCode(3*4096 + 100)

	signature := sign(t, Options{
		Identifier:           "com.example.tool",
		TeamID:               "ABCDE12345",
		Flags:                code_directory.CodeDirectoryFlagAdhoc,
		PageSize:             4096,
		HashTypes:            []hash.Type{hash.TypeSHA1, hash.TypeSHA256},
		Entitlements:         map[string]any{"com.apple.security.get-task-allow": true},
		DEREntitlements:      true,
		InfoPlist:            []byte(testInfoPlist),
		SignaturePlaceholder: true,
	}, code)

	assert.Equal(t, blobs.MagicEmbeddedSignature, signature.Magic())

	var slots []super_blob.Slot
	for _, index := range signature.Indexes() {
		slots = append(slots, index.Type)
	}

	assert.Equal(t, []super_blob.Slot{
		super_blob.SlotCodeDirectory,
		super_blob.SlotRequirements,
		super_blob.SlotEntitlements,
		super_blob.SlotDerEntitlements,
		super_blob.SlotAlternativeCodeDirectories,
		super_blob.SlotSignature,
	}, slots)

	primary := findCodeDirectory(t, signature, super_blob.SlotCodeDirectory)
	assert.Equal(t, hash.TypeSHA1, primary.HashType())
	assert.Equal(t, "com.example.tool", primary.Identifier())
	assert.Equal(t, "ABCDE12345", primary.TeamID())
	assert.Equal(t, 4, primary.CodeSlots())
	assert.Equal(t, uint64(len(code)), primary.CodeLimit())
	assert.Equal(t, int(super_blob.SlotDerEntitlements), primary.SpecialSlots())

	alternate := findCodeDirectory(t, signature, super_blob.SlotAlternativeCodeDirectories)
	assert.Equal(t, hash.TypeSHA256, alternate.HashType())

	lastPage, err := alternate.CodeSlot(3)
	require.NoError(t, err)
	want := sha256.Sum256(code[3*4096:])
	assert.Equal(t, want[:], lastPage)

	infoHash, err := alternate.SpecialSlot(int(super_blob.SlotInfo))
	require.NoError(t, err)
	want = sha256.Sum256([]byte(testInfoPlist))
	assert.Equal(t, want[:], infoHash)

	for _, slot := range []super_blob.Slot{super_blob.SlotRequirements, super_blob.SlotEntitlements, super_blob.SlotDerEntitlements} {
		raw, found := signature.Find(slot)
		require.True(t, found)

		got, err := alternate.SpecialSlot(int(slot))
		require.NoError(t, err)

		want := sha256.Sum256(raw)
		assert.Equal(t, want[:], got, "%s hash", slot)
	}

	unused, err := alternate.SpecialSlot(int(super_blob.SlotResourceDir))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, sha256.Size), unused)

	placeholder, found := signature.Find(super_blob.SlotSignature)
	require.True(t, found)
	assert.Equal(t, []byte{0xfa, 0xde, 0x0b, 0x01, 0, 0, 0, 8}, placeholder)

	ent, err := signature.FindBlob(super_blob.SlotEntitlements)
	require.NoError(t, err)
	require.IsType(t, &entitlements.Entitlements{}, ent)

	values, err := ent.(*entitlements.Entitlements).Values()
	require.NoError(t, err)
	assert.Equal(t, true, values["com.apple.security.get-task-allow"])
}

func TestSignEntitlementsPlist(t *testing.T) {
	plist := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>com.apple.security.app-sandbox</key>
    <true/>
</dict>
</plist>
`)

	signature := sign(t, Options{
		Identifier:        "tool",
		HashTypes:         []hash.Type{hash.TypeSHA256},
		EntitlementsPlist: plist,
		DEREntitlements:   true,
	}, testCode(10))

	raw, found := signature.Find(super_blob.SlotEntitlements)
	require.True(t, found)
	assert.Equal(t, plist, raw[8:])

	der, err := signature.FindBlob(super_blob.SlotDerEntitlements)
	require.NoError(t, err)
	require.IsType(t, &entitlements.Entitlements{}, der)

	values, err := der.(*entitlements.Entitlements).Values()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"com.apple.security.app-sandbox": true}, values)
}

func TestSignDefaultRequirements(t *testing.T) {
	signature := sign(t, Options{Identifier: "tool", HashTypes: []hash.Type{hash.TypeSHA256}}, testCode(10))

	reqs, found := signature.Find(super_blob.SlotRequirements)
	require.True(t, found)
	assert.Equal(t, []byte{0xfa, 0xde, 0x0c, 0x01, 0, 0, 0, 12, 0, 0, 0, 0}, reqs)

	_, found = signature.Find(super_blob.SlotEntitlements)
	assert.False(t, found)
}

func TestSignDesignatedRequirement(t *testing.T) {
	designated, err := requirement.Designated("tool", "")
	require.NoError(t, err)

	set := requirement.NewSetMaker()
	set.Add(requirement.TypeDesignated, designated)

	reqs, err := set.Make()
	require.NoError(t, err)

	signature := sign(t, Options{Identifier: "tool", HashTypes: []hash.Type{hash.TypeSHA256}, Requirements: reqs.Bytes()}, testCode(10))

	raw, found := signature.Find(super_blob.SlotRequirements)
	require.True(t, found)

	stored, err := super_blob.Parse(raw)
	require.NoError(t, err)

	got, err := requirement.Find(stored, requirement.TypeDesignated)
	require.NoError(t, err)
	assert.Equal(t, designated.Bytes(), got.Bytes())

	signer, err := NewSigner(zerolog.Nop(), Options{HashTypes: []hash.Type{hash.TypeSHA256}, Requirements: designated.Bytes()})
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), vfs.NewMemoryFileFrom(nil), 0)
	assert.Error(t, err, "a lone requirement isn't a requirement set")
}

func TestReadFromLengthBeyondSource(t *testing.T) {
	raw := []byte{0xfa, 0xde, 0x0c, 0xc0, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}

	_, err := ReadFrom[*super_blob.SuperBlob](io.NewSectionReader(bytes.NewReader(raw), 0, int64(len(raw))))
	assert.ErrorIs(t, err, blobs.ErrInvalidLength)
}

func TestBestCodeDirectory(t *testing.T) {
	signature := sign(t, Options{HashTypes: []hash.Type{hash.TypeSHA1, hash.TypeSHA384, hash.TypeSHA256}}, testCode(64))

	best, err := BestCodeDirectory(signature)
	require.NoError(t, err)
	assert.Equal(t, hash.TypeSHA384, best.HashType())

	empty, err := super_blob.NewMaker(blobs.MagicEmbeddedSignature).Make()
	require.NoError(t, err)

	_, err = BestCodeDirectory(empty)
	assert.ErrorIs(t, err, super_blob.ErrSlotNotFound)
}

func TestParseSignature(t *testing.T) {
	signature := sign(t, Options{HashTypes: []hash.Type{hash.TypeSHA256}}, testCode(64))

	parsed, err := ParseSignature(signature.Bytes())
	require.NoError(t, err)
	assert.Equal(t, signature.Bytes(), parsed.Bytes())

	_, err = ParseSignature(blobs.NewGeneric(blobs.MagicBlobWrapper, nil).Bytes())
	assert.ErrorIs(t, err, blobs.ErrUnknownMagic)

	_, err = ParseSignature([]byte{0xfa})
	assert.Error(t, err)
}

func TestDetached(t *testing.T) {
	arm := sign(t, Options{Identifier: "arm", HashTypes: []hash.Type{hash.TypeSHA256}}, testCode(64))
	intel := sign(t, Options{Identifier: "intel", HashTypes: []hash.Type{hash.TypeSHA256}}, testCode(128))

	detached, err := MakeDetached(map[types.CPU]*super_blob.SuperBlob{
		types.CPUArm64: arm,
		types.CPUAmd64: intel,
	})
	require.NoError(t, err)
	assert.Equal(t, blobs.MagicDetachedSignature, detached.Magic())
	assert.Equal(t, 2, detached.Count())

	got, err := FindDetached(detached, types.CPUAmd64)
	require.NoError(t, err)
	assert.Equal(t, intel.Bytes(), got.Bytes())

	_, err = FindDetached(detached, types.CPUI386)
	assert.ErrorIs(t, err, super_blob.ErrSlotNotFound)

	_, err = FindDetached(arm, types.CPUArm64)
	assert.ErrorIs(t, err, blobs.ErrMagicMismatch)

	_, err = MakeDetached(map[types.CPU]*super_blob.SuperBlob{types.CPUArm64: detached})
	assert.ErrorIs(t, err, blobs.ErrMagicMismatch)
}

// testMachO builds a thin arm64 executable with a
// __TEXT segment covering the first page and, when
// reserved is non zero, an LC_CODE_SIGNATURE with
// that many bytes reserved after the code.
func testMachO(codeSize int, reserved uint32) []byte {
	ncmds, sizeofcmds := uint32(1), uint32(72)
	if reserved > 0 {
		ncmds, sizeofcmds = 2, 72+codeSignatureCmdSize
	}

	data := make([]byte, codeSize+int(reserved))
	le := binary.LittleEndian

	le.PutUint32(data[0:], uint32(types.Magic64))
	le.PutUint32(data[4:], uint32(types.CPUArm64))
	le.PutUint32(data[12:], uint32(types.MH_EXECUTE))
	le.PutUint32(data[16:], ncmds)
	le.PutUint32(data[20:], sizeofcmds)

	seg := data[32:]
	le.PutUint32(seg[0:], uint32(types.LC_SEGMENT_64))
	le.PutUint32(seg[4:], 72)
	copy(seg[8:24], "__TEXT")
	le.PutUint64(seg[24:], 0x100000000)
	le.PutUint64(seg[32:], 0x1000)
	le.PutUint64(seg[40:], 0)
	le.PutUint64(seg[48:], 0x1000)
	le.PutUint32(seg[56:], 5)
	le.PutUint32(seg[60:], 5)

	if reserved > 0 {
		cmd := data[32+72:]
		le.PutUint32(cmd[0:], LoadCmdCodeSignature)
		le.PutUint32(cmd[4:], codeSignatureCmdSize)
		le.PutUint32(cmd[8:], uint32(codeSize))
		le.PutUint32(cmd[12:], reserved)
	}

	return data
}

func TestFindCodeSignatureCmd(t *testing.T) {
	assert.Nil(t, findCodeSignatureCmd(testMachO(0x1000, 0)))
	assert.Nil(t, findCodeSignatureCmd([]byte("not a macho at all, not even close")))

	cmd := findCodeSignatureCmd(testMachO(0x1000, 0x200))
	require.NotNil(t, cmd)
	assert.Equal(t, uint32(32+72), cmd.CmdOffset)
	assert.Equal(t, uint32(0x1000), cmd.Offset)
	assert.Equal(t, uint32(0x200), cmd.Size)
	assert.Equal(t, "LC_CODE_SIGNATURE - Data Offset: 4096, Data Size: 512", cmd.String())
}

func TestInspectMachO(t *testing.T) {
	info, err := InspectMachO(testMachO(0x1000, 0))
	require.NoError(t, err)

	assert.Equal(t, types.CPUArm64, info.CPU)
	assert.Equal(t, types.MH_EXECUTE, info.Type)
	assert.Equal(t, uint64(0x1000), info.CodeLimit)
	assert.Nil(t, info.CodeSignature)
	assert.Equal(t, uint64(0), info.ExecSegment.SegmentBase)
	assert.Equal(t, uint64(0x1000), info.ExecSegment.SegmentLimit)
	assert.Equal(t, code_directory.ExecSegmentFlagMainBinary, info.ExecSegment.Flags)

	arches, err := InspectUniversal(testMachO(0x1000, 0))
	require.NoError(t, err)
	require.Len(t, arches, 1)
	assert.Equal(t, uint64(0), arches[0].Offset)
	assert.Equal(t, uint64(0x1000), arches[0].Size)
}

func TestEmbedSignature(t *testing.T) {
	data := testMachO(0x1000, 0x400)
	copy(data[0x1000:], bytes.Repeat([]byte{0xee}, 0x400))

	signature := sign(t, Options{Identifier: "tool", HashTypes: []hash.Type{hash.TypeSHA256}}, data[:0x1000])
	require.NoError(t, EmbedSignature(data, signature.Bytes()))

	reserved := data[0x1000:]
	assert.Equal(t, signature.Bytes(), reserved[:signature.Length()])
	assert.Equal(t, make([]byte, 0x400-int(signature.Length())), reserved[signature.Length():])

	found, err := FindCodeSignature(data)
	require.NoError(t, err)
	assert.Equal(t, signature.Bytes(), found.Bytes())

	cd, err := BestCodeDirectory(found)
	require.NoError(t, err)
	assert.Equal(t, "tool", cd.Identifier())

	err = EmbedSignature(data, make([]byte, 0x401))
	assert.ErrorIs(t, err, ErrSignatureTooLarge)

	err = EmbedSignature(testMachO(0x1000, 0), signature.Bytes())
	assert.ErrorIs(t, err, ErrNoCodeSignature)

	_, err = FindCodeSignature(testMachO(0x1000, 0))
	assert.ErrorIs(t, err, ErrNoCodeSignature)
}

func testDMG(t *testing.T, dataSize int) *vfs.MemoryFile {
	t.Helper()

	file := vfs.NewMemoryFileFrom(testCode(dataSize))

	trailer := &dmg.UDIFResourceFile{
		Version:        4,
		HeaderSize:     uint32(dmg.UDIFResourceFileSize),
		DataForkLength: uint64(dataSize),
		SegmentNumber:  1,
		SegmentCount:   1,
	}

	_, err := file.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.NoError(t, dmg.WriteUDIF(trailer, file))

	return file
}

func TestInspectDMG(t *testing.T) {
	image, err := InspectDMG(testDMG(t, 1000))
	require.NoError(t, err)

	assert.False(t, image.Signed())
	assert.Equal(t, int64(1000), image.TrailerOffset)
	assert.Equal(t, uint64(1000), image.CodeLimit)
	assert.Len(t, image.RepSpecific(), dmg.UDIFResourceFileSize)

	_, err = InspectDMG(vfs.NewMemoryFileFrom(testCode(1024)))
	assert.ErrorIs(t, err, dmg.ErrMagicMismatch)

	_, err = ReadFromDMG(testDMG(t, 1000))
	assert.ErrorIs(t, err, ErrNoCodeSignature)
}

func TestWriteToDMG(t *testing.T) {
	file := testDMG(t, 1000)

	image, err := InspectDMG(file)
	require.NoError(t, err)

	signature := sign(t, Options{
		Identifier:  "image",
		HashTypes:   []hash.Type{hash.TypeSHA256},
		RepSpecific: image.RepSpecific(),
	}, file.Bytes()[:image.CodeLimit])

	require.NoError(t, WriteToDMG(signature, file))
	assert.Equal(t, int64(1000)+int64(signature.Length())+int64(dmg.UDIFResourceFileSize), file.Size())

	signed, err := InspectDMG(file)
	require.NoError(t, err)
	assert.True(t, signed.Signed())
	assert.Equal(t, uint64(1000), signed.CodeLimit)
	assert.Equal(t, uint32(1000), signed.Trailer.CodeSignOffset)
	assert.Equal(t, signature.Length(), signed.Trailer.CodeSignLength)
	assert.Equal(t, image.RepSpecific(), signed.RepSpecific())

	got, err := ReadFromDMG(file)
	require.NoError(t, err)
	assert.Equal(t, signature.Bytes(), got.Bytes())

	// Re-signing replaces the old signature
	smaller := sign(t, Options{HashTypes: []hash.Type{hash.TypeSHA1}}, file.Bytes()[:1000])
	require.NoError(t, WriteToDMG(smaller, file))
	assert.Equal(t, int64(1000)+int64(smaller.Length())+int64(dmg.UDIFResourceFileSize), file.Size())

	got, err = ReadFromDMG(file)
	require.NoError(t, err)
	assert.Equal(t, smaller.Bytes(), got.Bytes())
}
