package code_directory

import (
	"fmt"
	"strings"
)

// SupportsVersion is the compatibility version
// of a CodeDirectory. Each version adds fields
// to the end of the fixed header, a reader only
// interprets the fields its version covers.
type SupportsVersion uint32

const (
	SupportsVersionEarliest    SupportsVersion = 0x20001
	SupportsVersionScatter     SupportsVersion = 0x20100
	SupportsVersionTeamID      SupportsVersion = 0x20200
	SupportsVersionCodeLimit64 SupportsVersion = 0x20300
	SupportsVersionExecSeg     SupportsVersion = 0x20400
	SupportsVersionRuntime     SupportsVersion = 0x20500
	SupportsVersionPreEncrypt  SupportsVersion = SupportsVersionRuntime

	// SupportsVersionCurrent is the newest version
	// whose header layout is understood.
	SupportsVersionCurrent = SupportsVersionRuntime
)

type supportsMetadata struct {
	version SupportsVersion

	// fullName specifies the name of the
	// support version as defined in the
	// darwin kernel
	fullName string

	// fieldsSize is the number of bytes the
	// version appends to the fixed header.
	fieldsSize int
}

var supportsRegistry = []supportsMetadata{
	{SupportsVersionEarliest, "CODEDIRECTORY_SUPPORTS_EARLIEST", 0},
	{SupportsVersionScatter, "CODEDIRECTORY_SUPPORTS_SCATTER", 4},
	{SupportsVersionTeamID, "CODEDIRECTORY_SUPPORTS_TEAMID", 4},
	{SupportsVersionCodeLimit64, "CODEDIRECTORY_SUPPORTS_CODELIMIT64", 12},
	{SupportsVersionExecSeg, "CODEDIRECTORY_SUPPORTS_EXECSEG", 24},
	{SupportsVersionRuntime, "CODEDIRECTORY_SUPPORTS_RUNTIME", 8},
}

// Supports reports whether a CodeDirectory of
// this version carries the fields introduced
// by feature.
func (version SupportsVersion) Supports(feature SupportsVersion) bool {
	return version >= feature
}

// FixedSize returns the size, in bytes, of the
// fixed header of a CodeDirectory of the supplied
// version, blob header included.
//
// It is the size of the current header minus the
// fields of every version newer than the supplied
// one.
func FixedSize(version SupportsVersion) int {
	size := fixedSizeCurrent
	for _, meta := range supportsRegistry {
		if version < meta.version {
			size -= meta.fieldsSize
		}
	}

	return size
}

func (version SupportsVersion) String() string {
	var verNames []string

	for _, meta := range supportsRegistry {
		if version >= meta.version {
			verNames = append(verNames, meta.fullName)
		}
	}

	return fmt.Sprintf("0x%x (%s)", uint32(version), strings.Join(verNames, ","))
}
