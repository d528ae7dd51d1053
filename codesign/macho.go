package codesign

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/KatelynHaworth/csblob/codesign/blobs/code_directory"
	"github.com/KatelynHaworth/csblob/codesign/blobs/super_blob"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

const (
	LoadCmdCodeSignature = uint32(types.LC_CODE_SIGNATURE)

	codeSignatureCmdSize = 16
)

var (
	ErrNoCodeSignature = errors.New("code signature not found in file")

	// ErrSignatureTooLarge is returned when a signature
	// doesn't fit in the space reserved for it by the
	// LC_CODE_SIGNATURE load command.
	ErrSignatureTooLarge = errors.New("signature exceeds the space reserved for it")
)

// CodeSignatureCmd is the linkedit_data_command
// pointing at the code signature of a Mach-O.
type CodeSignatureCmd struct {
	// Position of the load command
	// from the start of the Mach-O.
	CmdOffset uint32

	Offset uint32
	Size   uint32
}

func (cmd *CodeSignatureCmd) String() string {
	return fmt.Sprintf("LC_CODE_SIGNATURE - Data Offset: %d, Data Size: %d", cmd.Offset, cmd.Size)
}

// MachO describes the parts of a thin
// Mach-O a code signature depends on.
type MachO struct {
	CPU  types.CPU
	Type types.HeaderFileType

	// CodeLimit is the length of the
	// file covered by the code slots.
	CodeLimit   uint64
	ExecSegment code_directory.ExecSegment

	// CodeSignature is nil when the
	// Mach-O has no LC_CODE_SIGNATURE.
	CodeSignature *CodeSignatureCmd
}

// findCodeSignatureCmd walks the load commands of
// a little-endian thin Mach-O, go-macho isn't used
// for this as it fails on some signature formats.
func findCodeSignatureCmd(data []byte) *CodeSignatureCmd {
	if len(data) < 28 {
		return nil
	}

	var headerSize uint32
	switch types.Magic(binary.LittleEndian.Uint32(data)) {
	case types.Magic64:
		headerSize = 32

	case types.Magic32:
		headerSize = 28

	default:
		return nil
	}

	var (
		ncmds      = binary.LittleEndian.Uint32(data[16:])
		sizeofcmds = binary.LittleEndian.Uint32(data[20:])
		end        = uint64(headerSize) + uint64(sizeofcmds)
	)

	if uint64(len(data)) < end {
		return nil
	}

	offset := uint64(headerSize)
	for range ncmds {
		if offset+8 > end {
			break
		}

		cmd := binary.LittleEndian.Uint32(data[offset:])
		cmdSize := binary.LittleEndian.Uint32(data[offset+4:])

		if cmd == LoadCmdCodeSignature && cmdSize >= codeSignatureCmdSize && offset+codeSignatureCmdSize <= end {
			return &CodeSignatureCmd{
				CmdOffset: uint32(offset),
				Offset:    binary.LittleEndian.Uint32(data[offset+8:]),
				Size:      binary.LittleEndian.Uint32(data[offset+12:]),
			}
		}

		if cmdSize < 8 {
			break
		}

		offset += uint64(cmdSize)
	}

	return nil
}

// InspectMachO derives the code limit and
// exec segment of a thin Mach-O. The code
// limit is the offset of an existing code
// signature or the length of the file.
func InspectMachO(data []byte) (*MachO, error) {
	var (
		info = &MachO{CodeLimit: uint64(len(data))}
		src  = data
	)

	if cmd := findCodeSignatureCmd(data); cmd != nil {
		if uint64(cmd.Offset) > uint64(len(data)) {
			return nil, fmt.Errorf("code signature offset %d is past the end of the file", cmd.Offset)
		}

		info.CodeSignature = cmd
		info.CodeLimit = uint64(cmd.Offset)

		// Hide the old signature from go-macho
		src = slices.Clone(data)
		clear(src[cmd.Offset:min(uint64(cmd.Offset)+uint64(cmd.Size), uint64(len(src)))])
	}

	file, err := macho.NewFile(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("read macho file: %w", err)
	}
	defer file.Close()

	info.CPU = file.CPU
	info.Type = file.Type

	for _, load := range file.Loads {
		if seg, ok := load.(*macho.Segment); ok && seg.Name == "__TEXT" {
			info.ExecSegment.SegmentBase = seg.Offset
			info.ExecSegment.SegmentLimit = seg.Filesz
		}
	}

	if info.Type == types.MH_EXECUTE {
		info.ExecSegment.Flags.Set(code_directory.ExecSegmentFlagMainBinary)
	}

	return info, nil
}

// Arch is a single architecture
// of a universal binary.
type Arch struct {
	*MachO

	// Offset and Size locate the thin
	// Mach-O within the universal file.
	Offset uint64
	Size   uint64
}

// InspectUniversal inspects every architecture of a
// universal binary, a thin Mach-O is reported as
// a single architecture covering the whole file.
func InspectUniversal(data []byte) ([]Arch, error) {
	fat, err := macho.NewFatFile(bytes.NewReader(data))
	if errors.Is(err, macho.ErrNotFat) {
		thin, err := InspectMachO(data)
		if err != nil {
			return nil, err
		}

		return []Arch{{MachO: thin, Size: uint64(len(data))}}, nil
	} else if err != nil {
		return nil, fmt.Errorf("read macho fat file: %w", err)
	}
	defer fat.Close()

	arches := make([]Arch, 0, len(fat.Arches))
	for _, arch := range fat.Arches {
		end := uint64(arch.Offset) + uint64(arch.Size)
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("%s slice at offset %d overflows the file", arch.CPU, arch.Offset)
		}

		thin, err := InspectMachO(data[arch.Offset:end])
		if err != nil {
			return nil, fmt.Errorf("inspect %s slice: %w", arch.CPU, err)
		}

		arches = append(arches, Arch{MachO: thin, Offset: uint64(arch.Offset), Size: uint64(arch.Size)})
	}

	return arches, nil
}

// FindCodeSignature returns the signature embedded
// in a thin Mach-O by its LC_CODE_SIGNATURE.
func FindCodeSignature(data []byte) (*super_blob.SuperBlob, error) {
	cmd := findCodeSignatureCmd(data)
	if cmd == nil {
		return nil, ErrNoCodeSignature
	}

	end := uint64(cmd.Offset) + uint64(cmd.Size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%s overflows the file", cmd)
	}

	return ParseSignature(data[cmd.Offset:end])
}

// EmbedSignature writes signature into the space
// reserved by the LC_CODE_SIGNATURE of a thin Mach-O,
// zeroing whatever is left of the reserved space.
//
// The load command isn't modified so page hashes
// covering it stay valid.
func EmbedSignature(data, signature []byte) error {
	cmd := findCodeSignatureCmd(data)
	if cmd == nil {
		return ErrNoCodeSignature
	}

	end := uint64(cmd.Offset) + uint64(cmd.Size)
	switch {
	case end > uint64(len(data)):
		return fmt.Errorf("%s overflows the file", cmd)

	case uint64(len(signature)) > uint64(cmd.Size):
		return fmt.Errorf("%d byte signature, %d bytes reserved: %w", len(signature), cmd.Size, ErrSignatureTooLarge)
	}

	reserved := data[cmd.Offset:end]
	clear(reserved[copy(reserved, signature):])

	return nil
}
