package code_directory

import (
	"encoding/binary"
	"fmt"

	"github.com/KatelynHaworth/csblob/codesign/blobs"
)

// scatterSize is the size, in bytes,
// of an encoded Scatter entry.
const scatterSize = 24

// Scatter describes a run of Count pages
// starting at page Base, whose content is
// found at TargetOffset in the file.
type Scatter struct {
	Count        uint32
	Base         uint32
	TargetOffset uint64
	_            uint64 // reserved
}

func (scatter Scatter) put(view blobs.Layout) {
	view.SetUint32(0, scatter.Count)
	view.SetUint32(4, scatter.Base)
	view.SetUint64(8, scatter.TargetOffset)
	view.SetUint64(16, 0)
}

func readScatter(view blobs.Layout) Scatter {
	return Scatter{
		Count:        view.Uint32(0),
		Base:         view.Uint32(4),
		TargetOffset: view.Uint64(8),
	}
}

// ScatterSet is a scatter vector. An encoded
// vector is terminated by a sentinel entry
// with a Count of zero.
type ScatterSet []Scatter

// TotalCount returns the number of pages
// covered by the scatter vector.
func (set ScatterSet) TotalCount() (uint32, error) {
	var pages uint32

	for i, scatter := range set {
		if pages+scatter.Count < pages {
			return 0, fmt.Errorf("scatter %d has a count that causes an overflow", i)
		}

		pages += scatter.Count
	}

	return pages, nil
}

func (set ScatterSet) hasSentinel() bool {
	return len(set) > 0 && set[len(set)-1].Count == 0
}

// decodeScatterSet reads scatter entries starting
// at offset until the sentinel entry is found.
func decodeScatterSet(raw []byte, offset uint32) (ScatterSet, error) {
	view := blobs.NewLayout(raw, 0, binary.BigEndian)
	set := make(ScatterSet, 0)

	for pos := int(offset); ; pos += scatterSize {
		if !view.Fits(pos, scatterSize) {
			return nil, fmt.Errorf("scatter vector at offset %d isn't terminated: %w", offset, blobs.ErrOutOfBounds)
		}

		scatter := readScatter(view.Sub(pos))
		set = append(set, scatter)

		if scatter.Count == 0 {
			return set, nil
		}
	}
}
