package code_directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlag(t *testing.T) {
	flag, err := ParseFlag("runtime")
	require.NoError(t, err)
	assert.Equal(t, CodeDirectoryFlagRuntime, flag)

	flag, err = ParseFlag("ADHOC")
	require.NoError(t, err)
	assert.Equal(t, CodeDirectoryFlagAdhoc, flag)

	flag, err = ParseFlag("0x10002")
	require.NoError(t, err)
	assert.Equal(t, CodeDirectoryFlagRuntime|CodeDirectoryFlagAdhoc, flag)

	_, err = ParseFlag("sparkly")
	assert.Error(t, err)
}

func TestCodeDirectoryFlagString(t *testing.T) {
	assert.Equal(t, "0x0 (none)", CodeDirectoryFlagNone.String())
	assert.Equal(t, "0x10002 (adhoc,runtime)", (CodeDirectoryFlagRuntime | CodeDirectoryFlagAdhoc).String())
}

func TestExecSegmentFlagString(t *testing.T) {
	flags := ExecSegmentFlagMainBinary
	flags.Set(ExecSegmentFlagJIT)

	assert.Equal(t, "0x41 (MAIN_BINARY,JIT)", flags.String())
}

func TestRuntimeVersion(t *testing.T) {
	cases := map[string]RuntimeVersion{
		"14":      {Major: 14},
		"13.1":    {Major: 13, Minor: 1},
		"10.15.7": {Major: 10, Minor: 15, Patch: 7},
	}

	for s, want := range cases {
		got, err := ParseRuntimeVersion(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
		assert.Equal(t, s, got.String())
		assert.Equal(t, want, RuntimeVersionFromUint32(got.Uint32()))
	}

	assert.Equal(t, uint32(0x000a0f07), RuntimeVersion{Major: 10, Minor: 15, Patch: 7}.Uint32())

	for _, s := range []string{"", "1.2.3.4", "1.256", "x"} {
		_, err := ParseRuntimeVersion(s)
		assert.Error(t, err, s)
	}
}

func TestSupportsVersion(t *testing.T) {
	assert.True(t, SupportsVersionRuntime.Supports(SupportsVersionExecSeg))
	assert.True(t, SupportsVersionTeamID.Supports(SupportsVersionScatter))
	assert.False(t, SupportsVersionScatter.Supports(SupportsVersionTeamID))
	assert.Equal(t, SupportsVersionRuntime, SupportsVersionCurrent)
	assert.Equal(t, fixedSizeCurrent, FixedSize(SupportsVersionCurrent))
}

func TestScatterSetTotalCount(t *testing.T) {
	pages, err := ScatterSet{{Count: 2}, {Count: 5}, {}}.TotalCount()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), pages)

	_, err = ScatterSet{{Count: 0xffffffff}, {Count: 1}}.TotalCount()
	assert.Error(t, err)
}
