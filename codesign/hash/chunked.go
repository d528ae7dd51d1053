package hash

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// ErrRangeOutOfBounds is returned when the byte
// range addressed for hashing does not lie
// within the supplied data.
var ErrRangeOutOfBounds = errors.New("hash range out of bounds")

// ChunkCount returns the number of chunks the
// range length is split into for chunkSize,
// where a chunkSize of zero is one chunk.
func ChunkCount(length, chunkSize int64) int64 {
	switch {
	case length <= 0:
		return 0

	case chunkSize <= 0:
		return 1

	default:
		return (length + chunkSize - 1) / chunkSize
	}
}

// ChunkedHashes splits data[offset:offset+length]
// into consecutive chunks of chunkSize bytes, the
// last of which may be shorter, and returns the
// digest of each chunk in order.
//
// A chunkSize of zero hashes the whole range
// as a single chunk.
func ChunkedHashes(hashType Type, data []byte, chunkSize, offset, length int) ([][]byte, error) {
	if !hashType.Valid() {
		return nil, fmt.Errorf("chunked hashes with %s: %w", hashType, ErrUnknownHashType)
	}

	if chunkSize < 0 || offset < 0 || length < 0 || offset > len(data) || len(data)-offset < length {
		return nil, fmt.Errorf("range [%d:+%d] of %d bytes: %w", offset, length, len(data), ErrRangeOutOfBounds)
	}

	if chunkSize == 0 {
		chunkSize = length
	}

	digests := make([][]byte, 0, ChunkCount(int64(length), int64(chunkSize)))
	for start := offset; start < offset+length; start += chunkSize {
		end := min(start+chunkSize, offset+length)

		digest, err := Sum(hashType, data[start:end])
		if err != nil {
			return nil, err
		}

		digests = append(digests, digest)
	}

	return digests, nil
}

// ChunkedHashesAt is the io.ReaderAt form of
// ChunkedHashes. Chunks have no ordering dependency
// on each other so they are hashed concurrently,
// with at most limit chunks in flight when limit
// is positive, and reassembled in chunk order.
func ChunkedHashesAt(ctx context.Context, hashType Type, src io.ReaderAt, chunkSize, offset, length int64, limit int) ([][]byte, error) {
	if !hashType.Valid() {
		return nil, fmt.Errorf("chunked hashes with %s: %w", hashType, ErrUnknownHashType)
	}

	if chunkSize < 0 || offset < 0 || length < 0 {
		return nil, fmt.Errorf("range [%d:+%d]: %w", offset, length, ErrRangeOutOfBounds)
	}

	if chunkSize == 0 {
		chunkSize = length
	}

	digests := make([][]byte, ChunkCount(length, chunkSize))

	group, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}

	for i := range digests {
		start := offset + int64(i)*chunkSize
		size := min(chunkSize, offset+length-start)

		group.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			chunk := io.NewSectionReader(src, start, size)
			digest, err := SumReader(hashType, chunk)
			if err != nil {
				return fmt.Errorf("hash chunk %d at 0x%x: %w", i, start, err)
			}

			if n, _ := chunk.Seek(0, io.SeekCurrent); n != size {
				return fmt.Errorf("chunk %d at 0x%x: %w", i, start, io.ErrUnexpectedEOF)
			}

			digests[i] = digest
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return digests, nil
}
