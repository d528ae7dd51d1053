package blobs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutAccessors(t *testing.T) {
	buf := make([]byte, 32)
	view := NewLayout(buf, 4, binary.BigEndian)

	view.SetUint8(0, 0x7f)
	view.SetUint16(1, 0x0102)
	view.SetUint32(3, 0xfade0c02)
	view.SetUint64(7, 0x0102030405060708)

	assert.Equal(t, []byte{0x7f, 0x01, 0x02, 0xfa, 0xde, 0x0c, 0x02, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, buf[4:19])
	assert.Equal(t, uint8(0x7f), view.Uint8(0))
	assert.Equal(t, uint16(0x0102), view.Uint16(1))
	assert.Equal(t, uint32(0xfade0c02), view.Uint32(3))
	assert.Equal(t, uint64(0x0102030405060708), view.Uint64(7))
	assert.Equal(t, 28, view.Len())
}

func TestLayoutByteOrder(t *testing.T) {
	buf := make([]byte, 4)
	NewLayout(buf, 0, binary.LittleEndian).SetUint32(0, 0xfeedfacf)

	assert.Equal(t, []byte{0xcf, 0xfa, 0xed, 0xfe}, buf)
	assert.Equal(t, uint32(0xcffaedfe), NewLayout(buf, 0, binary.BigEndian).Uint32(0))
}

func TestLayoutSubAndFits(t *testing.T) {
	buf := make([]byte, 16)
	view := NewLayout(buf, 0, binary.BigEndian)
	sub := view.Sub(8)

	sub.SetUint32(0, 42)
	assert.Equal(t, uint32(42), view.Uint32(8))
	assert.Equal(t, 8, sub.Offset())

	assert.True(t, sub.Fits(0, 8))
	assert.False(t, sub.Fits(1, 8))
	assert.False(t, sub.Fits(-1, 1))
	assert.True(t, sub.Fits(8, 0))
	assert.False(t, sub.Fits(9, 0))
}

func TestLayoutCString(t *testing.T) {
	buf := make([]byte, 12)
	view := NewLayout(buf, 2, binary.BigEndian)

	assert.Equal(t, 4, view.SetCString(0, "abc"))
	s, err := view.CString(0)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	copy(buf[6:], bytes.Repeat([]byte{'x'}, 6))
	_, err = view.CString(4)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = view.CString(20)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestParseHeader(t *testing.T) {
	raw := []byte{0xfa, 0xde, 0x0c, 0x01, 0x00, 0x00, 0x00, 0x0c, 0x00, 0x00, 0x00, 0x00, 0xff}

	hdr, err := ParseHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, MagicRequirements, hdr.Magic)
	assert.Equal(t, uint32(12), hdr.Length)
}

func TestParseHeaderInvalidLength(t *testing.T) {
	cases := map[string][]byte{
		"short buffer":     {0xfa, 0xde},
		"below header":     {0xfa, 0xde, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x07},
		"exceeds buffer":   {0xfa, 0xde, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x10},
		"zero length blob": {0xfa, 0xde, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x00},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHeader(raw)
			assert.ErrorIs(t, err, ErrInvalidLength)
		})
	}
}

func TestBlobHeaderReadWrite(t *testing.T) {
	var buf bytes.Buffer
	hdr := BlobHeader{Magic: MagicBlobWrapper, Length: 8}

	n, err := hdr.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	var decoded BlobHeader
	_, err = decoded.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, hdr, decoded)

	bad := BlobHeader{Magic: MagicBlobWrapper, Length: 4}
	_, err = bad.WriteTo(&buf)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestClassify(t *testing.T) {
	cases := map[Magic]Kind{
		0xfade0c00: KindRequirement,
		0xfade0c01: KindRequirements,
		0xfade0c02: KindCodeDirectory,
		0xfade0c05: KindLibraryDependency,
		0xfade0cc0: KindEmbeddedSignature,
		0xfade0cc1: KindDetachedSignature,
		0xfade0b01: KindBlobWrapper,
		0xfade0b02: KindEmbeddedSignatureOld,
		0xfade7171: KindEntitlements,
		0xfade7172: KindDEREntitlements,
		0xfade8181: KindLaunchConstraint,
		0xdeadbeef: KindUnknown,
	}

	for magic, kind := range cases {
		assert.Equal(t, kind, Classify(magic), "magic 0x%x", uint32(magic))
	}

	assert.True(t, KindRequirements.IsSuperBlob())
	assert.False(t, KindCodeDirectory.IsSuperBlob())
	assert.Equal(t, "code_directory", KindCodeDirectory.String())
	assert.Equal(t, "unknown", Kind(200).String())
}

func TestGeneric(t *testing.T) {
	generic := NewGeneric(MagicBlobWrapper, []byte{1, 2, 3})

	assert.Equal(t, uint32(11), generic.Length())
	assert.Equal(t, MagicBlobWrapper, generic.Magic())
	assert.Equal(t, []byte{0xfa, 0xde, 0x0b, 0x01, 0, 0, 0, 11, 1, 2, 3}, generic.Bytes())
	assert.Equal(t, []byte{1, 2, 3}, generic.Body())

	var buf bytes.Buffer
	n, err := WriteTo(generic, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, generic.Bytes(), buf.Bytes())
}

type testBlob struct {
	*Generic
}

const magicTest Magic = 0x7e57b10b

var _ = RegisterBlobType(BlobMetadata{
	MagicValue: uint32(magicTest),
	Name:       "TEST_BLOB",
	Decoder: func(hdr BlobHeader, raw []byte) (Blob, error) {
		generic, err := GenericDecoder(hdr, raw)
		if err != nil {
			return nil, err
		}

		return testBlob{generic.(*Generic)}, nil
	},
})

func TestParseDispatch(t *testing.T) {
	raw := append(NewGeneric(magicTest, []byte("body")).Bytes(), 0xff, 0xff)

	blob, err := Parse(raw)
	require.NoError(t, err)
	require.IsType(t, testBlob{}, blob)
	assert.Equal(t, uint32(12), blob.Length())
	assert.Len(t, blob.Bytes(), 12)
	assert.Equal(t, "TEST_BLOB", magicTest.String())

	blob, err = Parse(NewGeneric(0x01020304, nil).Bytes())
	require.NoError(t, err)
	assert.IsType(t, &Generic{}, blob)
	assert.Equal(t, "0x1020304", Magic(0x01020304).String())
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		RegisterBlobType(BlobMetadata{MagicValue: uint32(magicTest), Name: "DUPLICATE"})
	})
}
