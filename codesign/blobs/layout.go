package blobs

import (
	"encoding/binary"
	"fmt"
)

// Layout is a view over a fixed layout record
// stored at an offset within a shared buffer.
//
// Fields are addressed by their byte offset
// relative to the start of the record and are
// decoded with the byte order of the Layout.
// Accessors panic when a field falls outside
// of the buffer, callers are expected to check
// bounds with Fits before touching untrusted
// offsets.
type Layout struct {
	buf   []byte
	base  int
	order binary.ByteOrder
}

// NewLayout constructs a Layout over buf
// for the record that starts at offset.
func NewLayout(buf []byte, offset int, order binary.ByteOrder) Layout {
	return Layout{
		buf:   buf,
		base:  offset,
		order: order,
	}
}

// Offset returns the offset of the record
// within the underlying buffer.
func (view Layout) Offset() int {
	return view.base
}

// ByteOrder returns the byte order
// fields are decoded with.
func (view Layout) ByteOrder() binary.ByteOrder {
	return view.order
}

// Len returns the number of bytes available
// from the start of the record to the end of
// the underlying buffer.
func (view Layout) Len() int {
	return len(view.buf) - view.base
}

// Fits reports whether size bytes starting at
// field offset at lie within the buffer.
func (view Layout) Fits(at, size int) bool {
	return at >= 0 && size >= 0 && view.base+at <= len(view.buf) && len(view.buf)-(view.base+at) >= size
}

// Sub returns a Layout for a nested record
// starting at field offset at.
func (view Layout) Sub(at int) Layout {
	return Layout{buf: view.buf, base: view.base + at, order: view.order}
}

// Bytes returns the size bytes starting at field
// offset at. The slice aliases the buffer.
func (view Layout) Bytes(at, size int) []byte {
	start := view.base + at
	return view.buf[start : start+size : start+size]
}

// SetBytes copies src into the buffer
// starting at field offset at.
func (view Layout) SetBytes(at int, src []byte) {
	copy(view.Bytes(at, len(src)), src)
}

func (view Layout) Uint8(at int) uint8 {
	return view.buf[view.base+at]
}

func (view Layout) SetUint8(at int, v uint8) {
	view.buf[view.base+at] = v
}

func (view Layout) Uint16(at int) uint16 {
	return view.order.Uint16(view.Bytes(at, 2))
}

func (view Layout) SetUint16(at int, v uint16) {
	view.order.PutUint16(view.Bytes(at, 2), v)
}

func (view Layout) Uint32(at int) uint32 {
	return view.order.Uint32(view.Bytes(at, 4))
}

func (view Layout) SetUint32(at int, v uint32) {
	view.order.PutUint32(view.Bytes(at, 4), v)
}

func (view Layout) Uint64(at int) uint64 {
	return view.order.Uint64(view.Bytes(at, 8))
}

func (view Layout) SetUint64(at int, v uint64) {
	view.order.PutUint64(view.Bytes(at, 8), v)
}

// CString returns the NUL terminated string
// that starts at field offset at.
func (view Layout) CString(at int) (string, error) {
	if !view.Fits(at, 0) {
		return "", fmt.Errorf("string at offset %d: %w", at, ErrOutOfBounds)
	}

	tail := view.buf[view.base+at:]
	for i, b := range tail {
		if b == 0x0 {
			return string(tail[:i]), nil
		}
	}

	return "", fmt.Errorf("string at offset %d is not null terminated: %w", at, ErrOutOfBounds)
}

// SetCString writes s followed by a NUL
// terminator at field offset at and returns
// the number of bytes written.
func (view Layout) SetCString(at int, s string) int {
	dst := view.Bytes(at, len(s)+1)
	copy(dst, s)
	dst[len(s)] = 0x0

	return len(dst)
}
