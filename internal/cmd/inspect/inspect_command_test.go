package inspect

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/KatelynHaworth/csblob/codesign"
	"github.com/KatelynHaworth/csblob/codesign/blobs/requirement"
	"github.com/KatelynHaworth/csblob/codesign/hash"
	"github.com/KatelynHaworth/csblob/vfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignature(t *testing.T) []byte {
	t.Helper()

	designated, err := requirement.Designated("com.example.tool", "")
	require.NoError(t, err)

	set := requirement.NewSetMaker()
	set.Add(requirement.TypeDesignated, designated)

	reqs, err := set.Make()
	require.NoError(t, err)

	signer, err := codesign.NewSigner(zerolog.Nop(), codesign.Options{
		Identifier:   "com.example.tool",
		HashTypes:    []hash.Type{hash.TypeSHA256},
		Requirements: reqs.Bytes(),
		Entitlements: map[string]any{"com.apple.security.app-sandbox": true},
	})
	require.NoError(t, err)

	code := bytes.Repeat([]byte{0xc3}, 100)
	signature, err := signer.Sign(context.Background(), vfs.NewMemoryFileFrom(code), uint64(len(code)))
	require.NoError(t, err)

	return signature.Bytes()
}

func TestFindSignaturesDetachedFile(t *testing.T) {
	raw := testSignature(t)

	signatures, err := FindSignatures(raw)
	require.NoError(t, err)
	require.Len(t, signatures, 1)
	assert.Equal(t, "signature", signatures[0].Label)
	assert.Equal(t, raw, signatures[0].Blob.Bytes())

	_, err = FindSignatures([]byte("plain text"))
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	signatures, err := FindSignatures(testSignature(t))
	require.NoError(t, err)

	var out bytes.Buffer
	Describe(&out, signatures[0].Blob, "")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 9)

	assert.True(t, strings.HasPrefix(lines[0], "SuperBlob{magic: CSMAGIC_EMBEDDED_SIGNATURE"))
	assert.Equal(t, "- CSSLOT_CODEDIRECTORY:", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "    CodeDirectory{"))
	assert.Contains(t, lines[2], "identifier: com.example.tool")
	assert.Equal(t, "- CSSLOT_REQUIREMENTS:", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "    SuperBlob{magic: CSMAGIC_REQUIREMENTS"))
	assert.Equal(t, "    - designated:", lines[5])
	assert.Equal(t, "- CSSLOT_ENTITLEMENTS:", lines[7])
}
