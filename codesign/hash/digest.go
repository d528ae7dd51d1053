package hash

import (
	"fmt"
	"io"
)

// Sum computes the digest of data using the
// algorithm behind hashType, truncated to
// the slot size of that type.
func Sum(hashType Type, data []byte) ([]byte, error) {
	h := hashType.New()
	if h == nil || !hashType.Valid() {
		return nil, fmt.Errorf("sum with %s: %w", hashType, ErrUnknownHashType)
	}

	h.Write(data)
	return h.Sum(nil)[:hashType.Size()], nil
}

// SumReader is the streaming form of Sum.
func SumReader(hashType Type, r io.Reader) ([]byte, error) {
	h := hashType.New()
	if h == nil || !hashType.Valid() {
		return nil, fmt.Errorf("sum with %s: %w", hashType, ErrUnknownHashType)
	}

	if _, err := io.Copy(h, r); err != nil {
		return nil, fmt.Errorf("stream data into hasher: %w", err)
	}

	return h.Sum(nil)[:hashType.Size()], nil
}
