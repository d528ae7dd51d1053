package code_directory

import (
	"fmt"
	"strconv"
	"strings"
)

// RuntimeVersion is the SDK version the hardened
// runtime policies of the signed code target.
type RuntimeVersion struct {
	Major uint16
	Minor uint8
	Patch uint8
}

// RuntimeVersionFromUint32 unpacks the
// encoding of a RuntimeVersion used by
// the CodeDirectory runtime field.
func RuntimeVersionFromUint32(v uint32) RuntimeVersion {
	return RuntimeVersion{
		Major: uint16(v >> 16),
		Minor: uint8(v >> 8),
		Patch: uint8(v),
	}
}

// ParseRuntimeVersion parses a dotted
// "major[.minor[.patch]]" version string.
func ParseRuntimeVersion(s string) (RuntimeVersion, error) {
	var (
		v     RuntimeVersion
		parts = strings.Split(s, ".")
	)

	if len(parts) > 3 {
		return v, fmt.Errorf("runtime version %q has too many components", s)
	}

	for i, part := range parts {
		bits := 8
		if i == 0 {
			bits = 16
		}

		n, err := strconv.ParseUint(part, 10, bits)
		if err != nil {
			return v, fmt.Errorf("parse runtime version %q: %w", s, err)
		}

		switch i {
		case 0:
			v.Major = uint16(n)
		case 1:
			v.Minor = uint8(n)
		case 2:
			v.Patch = uint8(n)
		}
	}

	return v, nil
}

// Uint32 packs the RuntimeVersion as
// 0xMMMMmmpp.
func (v RuntimeVersion) Uint32() uint32 {
	return uint32(v.Major)<<16 | uint32(v.Minor)<<8 | uint32(v.Patch)
}

func (v RuntimeVersion) IsZero() bool {
	return v == RuntimeVersion{}
}

func (v RuntimeVersion) String() string {
	var builder strings.Builder
	builder.WriteString(strconv.Itoa(int(v.Major)))

	if v.Minor > 0 || v.Patch > 0 {
		builder.WriteByte('.')
		builder.WriteString(strconv.Itoa(int(v.Minor)))
	}

	if v.Patch > 0 {
		builder.WriteByte('.')
		builder.WriteString(strconv.Itoa(int(v.Patch)))
	}

	return builder.String()
}
