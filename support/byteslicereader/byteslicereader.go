// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package byteslicereader offers R, a cursor over a byte slice with typed
// fixed-width reads in either byte order.
//
// Replay files and the capture protocol encode the same logical fields in
// different byte orders depending on their version, so every multi-byte read
// names its order explicitly: BU32 is a big-endian uint32, LU32 a
// little-endian one.
//
// Reads are bounds checked. A read that needs more bytes than remain returns
// zero, consumes the rest of the buffer, and records a sticky error; every
// later read also returns zero. Callers issue a batch of reads and check Err
// once afterwards, and must not trust any value read after the error was set.
package byteslicereader

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// ErrShortRead is the cause of R's sticky error.
var ErrShortRead = errors.New("short read")

// R reads typed values from Buffer.
//
// R can be copied, creating a snapshot of its current state.
type R struct {
	// Buffer is the backing buffer for this reader.
	Buffer []byte

	// AlwaysCopy, if true, causes Bytes and Peek to return copies of their
	// backing data instead of direct references.
	AlwaysCopy bool

	pos int
	err error
}

var _ interface {
	io.Reader
	io.ByteReader
} = (*R)(nil)

// New returns an R reading buf.
func New(buf []byte) *R { return &R{Buffer: buf} }

func (r *R) remainingSlice() []byte {
	if r.pos >= len(r.Buffer) {
		return nil
	}
	return r.Buffer[r.pos:]
}

// Remaining returns the number of bytes remaining in the reader, from the
// current position.
func (r *R) Remaining() int { return len(r.remainingSlice()) }

// Offset returns the current position.
func (r *R) Offset() int { return r.pos }

// Err returns the sticky error, if a read ran past the end of Buffer.
func (r *R) Err() error { return r.err }

// take consumes n bytes, or sets the sticky error.
func (r *R) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	rem := r.remainingSlice()
	if n < 0 || n > len(rem) {
		r.err = errors.Wrapf(ErrShortRead, "need %d bytes at offset %d, have %d", n, r.pos, len(rem))
		r.pos = len(r.Buffer)
		return nil
	}
	r.pos += n
	return rem[:n]
}

// Skip advances past n bytes.
func (r *R) Skip(n int) { r.take(n) }

// Bytes returns the next n bytes.
//
// Bytes returns a slice of the underlying Buffer unless AlwaysCopy is true.
func (r *R) Bytes(n int) []byte {
	v := r.take(n)
	if v != nil && r.AlwaysCopy {
		v = append([]byte(nil), v...)
	}
	return v
}

// Peek returns up to n bytes without advancing.
func (r *R) Peek(n int) []byte {
	v := r.remainingSlice()
	if n < len(v) {
		v = v[:n]
	}
	if r.AlwaysCopy {
		v = append([]byte(nil), v...)
	}
	return v
}

// U8 reads a byte.
func (r *R) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

// BU16 reads a big-endian uint16.
func (r *R) BU16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

// LU16 reads a little-endian uint16.
func (r *R) LU16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// BU32 reads a big-endian uint32.
func (r *R) BU32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// LU32 reads a little-endian uint32.
func (r *R) LU32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// BU40 reads a big-endian 40-bit unsigned integer.
func (r *R) BU40() uint64 {
	b := r.take(5)
	if b == nil {
		return 0
	}
	return uint64(b[0])<<32 | uint64(binary.BigEndian.Uint32(b[1:]))
}

// BU64 reads a big-endian uint64.
func (r *R) BU64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// LU64 reads a little-endian uint64.
func (r *R) LU64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// BF32 reads a big-endian IEEE 754 float32.
func (r *R) BF32() float32 { return math.Float32frombits(r.BU32()) }

// LF32 reads a little-endian IEEE 754 float32.
func (r *R) LF32() float32 { return math.Float32frombits(r.LU32()) }

// BF64 reads a big-endian IEEE 754 float64.
func (r *R) BF64() float64 { return math.Float64frombits(r.BU64()) }

// LF64 reads a little-endian IEEE 754 float64.
func (r *R) LF64() float64 { return math.Float64frombits(r.LU64()) }

// Read implements io.Reader.
//
// Read does not set the sticky error.
func (r *R) Read(b []byte) (amt int, err error) {
	remaining := r.remainingSlice()
	amt = copy(b, remaining)

	r.pos += amt
	if r.pos >= len(r.Buffer) {
		err = io.EOF
	}
	return
}

// ReadByte implements io.ByteReader.
func (r *R) ReadByte() (b byte, err error) {
	if r.pos >= len(r.Buffer) {
		return 0, io.EOF
	}

	b, r.pos = r.Buffer[r.pos], r.pos+1
	return
}

// Motion40 returns the 40-bit motion value made from high and low parts.
func Motion40(high uint8, low uint32) uint64 { return uint64(high)<<32 | uint64(low) }

// SplitMotion40 splits a 40-bit motion value into its high and low parts.
func SplitMotion40(v uint64) (high uint8, low uint32) { return uint8(v >> 32), uint32(v) }

// Fits40 returns true if v has no bits set above bit 39.
func Fits40(v uint64) bool { return v>>40 == 0 }
