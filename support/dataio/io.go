// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataio contains stream helpers for length-implied wire messages.
package dataio

import (
	"io"

	"github.com/pkg/errors"
)

// Reader can read both individual bytes and sequences of bytes.
type Reader interface {
	io.Reader
	io.ByteReader
}

// MakeReader returns a Reader for r.
func MakeReader(r io.Reader) Reader {
	if dr, ok := r.(Reader); ok {
		return dr
	}
	return &simulatedReader{r}
}

type simulatedReader struct {
	io.Reader
}

func (r *simulatedReader) ReadByte() (byte, error) {
	var d [1]byte
	if err := ReadFull(r.Reader, d[:]); err != nil {
		return 0, err
	}
	return d[0], nil
}

// ReadFull reads from r until buf is full, or until an error is encountered.
//
// If r ends before buf is full, ReadFull returns io.EOF when nothing was read
// and io.ErrUnexpectedEOF otherwise.
func ReadFull(r io.Reader, buf []byte) error {
	for remaining := buf; len(remaining) > 0; {
		amt, err := r.Read(remaining)
		remaining = remaining[amt:]
		if err != nil {
			if len(remaining) == 0 {
				// Finished read and returned an error alongside the last bytes.
				return nil
			}
			if err == io.EOF && len(remaining) != len(buf) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// IsShortRead returns true if err reports the stream ending early.
func IsShortRead(err error) bool {
	switch errors.Cause(err) {
	case io.EOF, io.ErrUnexpectedEOF:
		return true
	default:
		return false
	}
}

// ReadString8 reads a string prefixed by a one-byte length.
func ReadString8(r Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if err := ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}

// AppendString8 appends s to buf with a one-byte length prefix.
func AppendString8(buf []byte, s string) ([]byte, error) {
	if len(s) > 0xFF {
		return buf, errors.Errorf("string of %d bytes exceeds 255", len(s))
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...), nil
}
