package code_directory

import "errors"

var (
	// ErrInvalidHashSize is returned when a hash slot
	// is set with a digest whose length doesn't match
	// the digest length of the hash type.
	ErrInvalidHashSize = errors.New("hash size doesn't match the hash type")

	// ErrInvalidSlot is returned when a hash slot
	// outside of the range covered by the code
	// directory is addressed.
	ErrInvalidSlot = errors.New("hash slot out of range")

	// ErrInvalidPageSize is returned when a page
	// size that isn't zero or a power of two is
	// configured.
	ErrInvalidPageSize = errors.New("page size must be zero or a power of two")

	// ErrUnsupportedVersion is returned when a code
	// directory version older than the earliest
	// supported version is requested or read.
	ErrUnsupportedVersion = errors.New("unsupported code directory version")
)
