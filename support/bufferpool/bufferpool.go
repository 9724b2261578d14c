// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool maintains pools of fixed-size byte chunks for streaming
// decoders.
package bufferpool

import (
	"io"
	"sync"
	"sync/atomic"
)

// Pool maintains a pool of fixed-size chunks. It offers a new chunk when one
// is unavailable.
type Pool struct {
	// Size is the size of the chunks in this pool.
	Size int

	base sync.Pool
}

// Get returns a chunk, allocating one if none is available. The returned
// chunk has a reference count of 1.
//
// The caller should return the chunk to the pool by calling its Release
// method when done with it.
func (bp *Pool) Get() *Buffer {
	b, ok := bp.base.Get().(*Buffer)
	if !ok || len(b.bytes) != bp.Size {
		b = &Buffer{
			bytes: make([]byte, bp.Size),
		}
	}

	b.pool = bp
	b.refcount = 1
	return b
}

// Copy streams src into dst one pooled chunk at a time until src returns
// io.EOF. It returns the number of bytes copied.
func (bp *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	chunk := bp.Get()
	defer chunk.Release()

	var total int64
	buf := chunk.Bytes()
	for {
		amt, err := src.Read(buf)
		if amt > 0 {
			if _, werr := dst.Write(buf[:amt]); werr != nil {
				return total, werr
			}
			total += int64(amt)
		}
		switch err {
		case nil:
		case io.EOF:
			return total, nil
		default:
			return total, err
		}
	}
}

// Buffer is a chunk that can be released into a Pool for reuse.
//
// Buffer is reference counted. Failure to release a Buffer does not leak
// memory, but prevents its reuse.
type Buffer struct {
	refcount int64
	bytes    []byte
	pool     *Pool
}

// Bytes returns the chunk's byte slice.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Release returns the chunk to its pool once its last reference is released.
//
// Release is safe for concurrent use.
func (b *Buffer) Release() {
	if atomic.AddInt64(&b.refcount, -1) != 0 {
		return
	}

	var pool *Pool
	pool, b.pool = b.pool, nil
	pool.base.Put(b)
}

// Retain increases the chunk's reference count. It should be accompanied by a
// Release call.
func (b *Buffer) Retain() { atomic.AddInt64(&b.refcount, 1) }
