package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/KatelynHaworth/csblob/codesign"
	"github.com/KatelynHaworth/csblob/codesign/blobs"
	"github.com/KatelynHaworth/csblob/codesign/dmg"
	"github.com/KatelynHaworth/csblob/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/blacktop/go-macho/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutter struct {
	mock.Mock
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key), body)

	return &s3.PutObjectOutput{}, args.Error(0)
}

// testMachO returns a thin arm64 executable with
// a 0x1000 byte __TEXT segment followed by the
// space reserved for its signature.
func testMachO(reserved uint32) []byte {
	const codeSize = 0x1000

	data := make([]byte, codeSize+int(reserved))
	le := binary.LittleEndian

	le.PutUint32(data[0:], uint32(types.Magic64))
	le.PutUint32(data[4:], uint32(types.CPUArm64))
	le.PutUint32(data[12:], uint32(types.MH_EXECUTE))
	le.PutUint32(data[16:], 2)
	le.PutUint32(data[20:], 72+16)

	seg := data[32:]
	le.PutUint32(seg[0:], uint32(types.LC_SEGMENT_64))
	le.PutUint32(seg[4:], 72)
	copy(seg[8:24], "__TEXT")
	le.PutUint64(seg[32:], codeSize)
	le.PutUint64(seg[48:], codeSize)

	cmd := data[32+72:]
	le.PutUint32(cmd[0:], codesign.LoadCmdCodeSignature)
	le.PutUint32(cmd[4:], 16)
	le.PutUint32(cmd[8:], codeSize)
	le.PutUint32(cmd[12:], reserved)

	for i := 32 + 72 + 16; i < codeSize; i++ {
		data[i] = byte(i)
	}

	return data
}

func testDMG(t *testing.T, dataSize int) []byte {
	t.Helper()

	buf := bytes.NewBuffer(bytes.Repeat([]byte{0x5a}, dataSize))
	require.NoError(t, dmg.WriteUDIF(&dmg.UDIFResourceFile{Version: 4, HeaderSize: uint32(dmg.UDIFResourceFileSize)}, buf))

	return buf.Bytes()
}

func writeTarget(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0755))

	return path
}

func TestNewWorker(t *testing.T) {
	_, err := NewWorker(config.Target{}, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrMissingFile)

	_, err = NewWorker(config.Target{File: filepath.Join(t.TempDir(), "missing")}, zerolog.Nop())
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewWorker(config.Target{File: t.TempDir()}, zerolog.Nop())
	assert.Error(t, err)

	wkr, err := NewWorker(config.Target{File: writeTarget(t, "tool", testMachO(0x400))}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, wkr.Signature())
}

func TestSignMachOInPlace(t *testing.T) {
	path := writeTarget(t, "tool", testMachO(0x400))

	wkr, err := NewWorker(config.Target{File: path, Identifier: "com.example.tool", HashTypes: []string{"sha1", "sha256"}}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, wkr.Sign(context.Background()))

	signed, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, signed, 0x1400)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), stat.Mode().Perm())

	signature, err := codesign.FindCodeSignature(signed)
	require.NoError(t, err)
	assert.Equal(t, wkr.Signature().Bytes(), signature.Bytes())

	cd, err := codesign.BestCodeDirectory(signature)
	require.NoError(t, err)
	assert.Equal(t, "com.example.tool", cd.Identifier())
	assert.Equal(t, uint64(0x1000), cd.CodeLimit())
	assert.Equal(t, uint64(0x1000), cd.ExecSegment().SegmentLimit)

	// Re-signing hashes the same code and
	// produces the same signature
	require.NoError(t, wkr.Sign(context.Background()))

	resigned, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, signed, resigned)
}

func TestSignMachOTooSmall(t *testing.T) {
	path := writeTarget(t, "tool", testMachO(16))

	wkr, err := NewWorker(config.Target{File: path}, zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, wkr.Sign(context.Background()), codesign.ErrSignatureTooLarge)
}

func TestSignMachOToFile(t *testing.T) {
	original := testMachO(0x400)
	path := writeTarget(t, "tool", original)
	output := filepath.Join(t.TempDir(), "tool.sig")

	wkr, err := NewWorker(config.Target{File: path, Output: output}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, wkr.Sign(context.Background()))

	untouched, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, untouched)

	written, err := os.ReadFile(output)
	require.NoError(t, err)

	signature, err := codesign.ParseSignature(written)
	require.NoError(t, err)
	assert.Equal(t, blobs.MagicEmbeddedSignature, signature.Magic())

	cd, err := codesign.BestCodeDirectory(signature)
	require.NoError(t, err)
	assert.Equal(t, "tool", cd.Identifier())
}

func TestSignToS3(t *testing.T) {
	path := writeTarget(t, "tool", testMachO(0x400))

	wkr, err := NewWorker(config.Target{File: path, Output: "s3://signatures/builds/tool.sig"}, zerolog.Nop())
	require.NoError(t, err)

	putter := new(mockPutter)
	putter.On("PutObject", "signatures", "builds/tool.sig", mock.Anything).Return(nil)
	wkr.SetObjectPutter(putter)

	require.NoError(t, wkr.Sign(context.Background()))
	putter.AssertExpectations(t)

	body := putter.Calls[0].Arguments.Get(2).([]byte)
	assert.Equal(t, wkr.Signature().Bytes(), body)
}

func TestSignDMGInPlace(t *testing.T) {
	path := writeTarget(t, "Image.dmg", testDMG(t, 2000))

	wkr, err := NewWorker(config.Target{File: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, wkr.Sign(context.Background()))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	image, err := codesign.InspectDMG(file)
	require.NoError(t, err)
	assert.True(t, image.Signed())
	assert.Equal(t, uint64(2000), image.CodeLimit)

	signature, err := codesign.ReadFromDMG(file)
	require.NoError(t, err)
	assert.Equal(t, wkr.Signature().Bytes(), signature.Bytes())

	cd, err := codesign.BestCodeDirectory(signature)
	require.NoError(t, err)
	assert.Equal(t, "Image", cd.Identifier())
	assert.Equal(t, uint64(2000), cd.CodeLimit())
}

func TestParseS3URL(t *testing.T) {
	bucket, key, ok, err := parseS3URL("s3://bucket/a/b.sig")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b.sig", key)

	_, _, ok, err = parseS3URL("out/b.sig")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = parseS3URL("s3://bucket")
	assert.True(t, ok)
	assert.Error(t, err)
}
