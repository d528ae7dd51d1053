package hash

import (
	"errors"
	"fmt"
	"hash"
	"math"
	"slices"
	"strconv"
	"strings"
)

type (
	// Type identifies the digest algorithm used
	// for the hash slots of a CodeDirectory, as
	// stored in its hashType field.
	Type uint8

	Metadata struct {
		Priority   int
		Name       string
		Size       uint8
		DigestSize uint8
		New        func() hash.Hash

		inUse bool
	}
)

var (
	// ErrUnknownHashType is returned when a
	// Type has no registered Metadata.
	ErrUnknownHashType = errors.New("unknown hash type")

	registry [math.MaxUint8 + 1]Metadata
)

func RegisterHashType(id uint8, metadata Metadata) Type {
	if meta := registry[id]; meta.inUse {
		panic(fmt.Sprintf("hash type 0x%x already registered to '%s'", id, meta.Name))
	}

	i := slices.IndexFunc(registry[:], func(meta Metadata) bool {
		return meta.inUse && meta.Priority == metadata.Priority
	})

	if i != -1 {
		panic(fmt.Errorf("priority conflict with hash type '%s'", registry[i].Name))
	}

	if metadata.Size > metadata.DigestSize {
		panic(fmt.Errorf("hash type '%s' truncates to more bytes than it produces", metadata.Name))
	}

	metadata.inUse = true
	registry[id] = metadata

	return Type(id)
}

// ParseType looks up a registered Type
// by its name, ignoring case.
func ParseType(name string) (Type, error) {
	for id, meta := range registry {
		if meta.inUse && Type(id).Valid() && strings.EqualFold(meta.Name, name) {
			return Type(id), nil
		}
	}

	return TypeInvalid, fmt.Errorf("%q: %w", name, ErrUnknownHashType)
}

// Priority returns the "rank" of this hash
// type to allow the "best" hash type to be
// found in a set of hash types.
//
// A priority of zero or less means this
// hash MUST not be used.
func (hashType Type) Priority() int {
	if meta := registry[hashType]; meta.inUse {
		return meta.Priority
	}

	return -1
}

func (hashType Type) String() string {
	if meta := registry[hashType]; meta.inUse {
		return meta.Name
	}

	return strconv.Itoa(int(hashType))
}

// Size returns the number of bytes a
// hash slot of this type occupies, which
// for truncated types is less than the
// DigestSize of the underlying algorithm.
func (hashType Type) Size() uint8 {
	if meta := registry[hashType]; meta.inUse {
		return meta.Size
	}

	return 0
}

func (hashType Type) DigestSize() uint8 {
	if meta := registry[hashType]; meta.inUse {
		return meta.DigestSize
	}

	return 0
}

func (hashType Type) New() hash.Hash {
	if meta := registry[hashType]; meta.inUse && meta.New != nil {
		return meta.New()
	}

	return nil
}

func (hashType Type) Valid() bool {
	if hashType == TypeInvalid {
		return false
	}

	return registry[hashType].inUse
}

// DigestLength returns the length, in bytes,
// of a digest produced for the supplied Type
// once truncated to its slot size.
func DigestLength(hashType Type) (int, error) {
	if !hashType.Valid() {
		return 0, fmt.Errorf("digest length of %s: %w", hashType, ErrUnknownHashType)
	}

	return int(hashType.Size()), nil
}
