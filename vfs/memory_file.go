package vfs

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// DefaultBlockSize is the block size used
// when a MemoryFile is created with a
// non-positive block size.
const DefaultBlockSize = 4096

var (
	// ErrNegativeOffset is returned when an
	// operation addresses a negative offset.
	ErrNegativeOffset = errors.New("negative offset")

	ErrInvalidWhence = errors.New("invalid whence")
)

// MemoryFile is an in-memory file stored as
// fixed size blocks that are only allocated
// once written to. Reading from a block that
// was never written returns zeros.
//
// Concurrent reads are safe, any write must
// not run alongside another call.
type MemoryFile struct {
	blockSize int64
	blocks    map[int64][]byte
	size      int64
	offset    int64
}

func NewMemoryFile(blockSize int) *MemoryFile {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	return &MemoryFile{
		blockSize: int64(blockSize),
		blocks:    make(map[int64][]byte),
	}
}

// NewMemoryFileFrom creates a MemoryFile
// holding a copy of data.
func NewMemoryFileFrom(data []byte) *MemoryFile {
	file := NewMemoryFile(DefaultBlockSize)
	_, _ = file.WriteAt(data, 0)

	return file
}

// Size returns the length of the file.
func (file *MemoryFile) Size() int64 {
	return file.size
}

// Blocks returns the number of
// allocated blocks.
func (file *MemoryFile) Blocks() int {
	return len(file.blocks)
}

func (file *MemoryFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, ErrNegativeOffset)
	}

	if off >= file.size {
		if len(p) == 0 {
			return 0, nil
		}

		return 0, io.EOF
	}

	n := int(min(int64(len(p)), file.size-off))
	for done := 0; done < n; {
		var (
			pos     = off + int64(done)
			index   = pos / file.blockSize
			inBlock = pos % file.blockSize
			chunk   = int(min(file.blockSize-inBlock, int64(n-done)))
		)

		if block, exists := file.blocks[index]; exists {
			copy(p[done:done+chunk], block[inBlock:])
		} else {
			clear(p[done : done+chunk])
		}

		done += chunk
	}

	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (file *MemoryFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("write at %d: %w", off, ErrNegativeOffset)
	}

	for done := 0; done < len(p); {
		var (
			pos     = off + int64(done)
			index   = pos / file.blockSize
			inBlock = pos % file.blockSize
		)

		block, exists := file.blocks[index]
		if !exists {
			block = make([]byte, file.blockSize)
			file.blocks[index] = block
		}

		done += copy(block[inBlock:], p[done:])
	}

	file.size = max(file.size, off+int64(len(p)))
	return len(p), nil
}

func (file *MemoryFile) Read(p []byte) (int, error) {
	n, err := file.ReadAt(p, file.offset)
	file.offset += int64(n)

	return n, err
}

func (file *MemoryFile) Write(p []byte) (int, error) {
	n, err := file.WriteAt(p, file.offset)
	file.offset += int64(n)

	return n, err
}

func (file *MemoryFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += file.offset

	case io.SeekEnd:
		offset += file.size

	default:
		return file.offset, fmt.Errorf("seek whence %d: %w", whence, ErrInvalidWhence)
	}

	if offset < 0 {
		return file.offset, fmt.Errorf("seek to %d: %w", offset, ErrNegativeOffset)
	}

	file.offset = offset
	return offset, nil
}

// Truncate changes the size of the file,
// growing it with zeros or discarding
// everything past size.
func (file *MemoryFile) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("truncate to %d: %w", size, ErrNegativeOffset)
	}

	if size < file.size {
		for _, index := range slices.Collect(maps.Keys(file.blocks)) {
			start := index * file.blockSize
			switch {
			case start >= size:
				delete(file.blocks, index)

			case start+file.blockSize > size:
				clear(file.blocks[index][size-start:])
			}
		}
	}

	file.size = size
	return nil
}

// Bytes returns a copy of the
// content of the file.
func (file *MemoryFile) Bytes() []byte {
	data := make([]byte, file.size)
	_, _ = file.ReadAt(data, 0)

	return data
}

func (file *MemoryFile) Close() error {
	return nil
}
