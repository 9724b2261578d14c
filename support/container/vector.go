// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package container implements the growable sequences and the open-addressing
// hash map that back mapping tables and frame buffers.
//
// The containers are not safe for concurrent use.
package container

// minCapacity is the smallest heap allocation a Vector will make.
const minCapacity = 4

// nextPowerOf2 returns the smallest power of two that is >= v.
func nextPowerOf2(v int) int {
	n := 1
	for n < v {
		n <<= 1
	}
	return n
}

// growCapacity returns the capacity to allocate when at least required
// elements must fit.
func growCapacity(required int) int {
	if required < minCapacity {
		required = minCapacity
	}
	return nextPowerOf2(required)
}

// Vector is a growable sequence of T.
//
// When a Vector runs out of room, its capacity is doubled (rounded up to the
// next power of two that satisfies the request). The zero value is an empty
// Vector ready for use.
type Vector[T any] struct {
	data []T
}

// NewVector returns a Vector with room for at least capacity elements.
func NewVector[T any](capacity int) *Vector[T] {
	var v Vector[T]
	v.Reserve(capacity)
	return &v
}

// VectorOf returns a Vector holding a copy of values.
func VectorOf[T any](values ...T) *Vector[T] {
	v := NewVector[T](len(values))
	v.data = append(v.data, values...)
	return v
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int { return len(v.data) }

// Cap returns the number of elements v can hold before reallocating.
func (v *Vector[T]) Cap() int { return cap(v.data) }

// At returns the element at index i. It panics if i is out of range.
func (v *Vector[T]) At(i int) T { return v.data[i] }

// Ref returns a pointer to the element at index i. The pointer is invalidated
// by any operation that grows v.
func (v *Vector[T]) Ref(i int) *T { return &v.data[i] }

// Set replaces the element at index i.
func (v *Vector[T]) Set(i int, value T) { v.data[i] = value }

// Back returns the last element. It panics if v is empty.
func (v *Vector[T]) Back() T { return v.data[len(v.data)-1] }

// Slice returns the elements of v. The returned slice aliases v's storage.
func (v *Vector[T]) Slice() []T { return v.data }

// Reserve ensures that v can hold at least n elements without reallocating.
func (v *Vector[T]) Reserve(n int) {
	if n <= cap(v.data) {
		return
	}
	data := make([]T, len(v.data), growCapacity(n))
	copy(data, v.data)
	v.data = data
}

// Push appends value.
func (v *Vector[T]) Push(value T) {
	v.Reserve(len(v.data) + 1)
	v.data = append(v.data, value)
}

// PushAll appends every element of values.
func (v *Vector[T]) PushAll(values ...T) {
	v.Reserve(len(v.data) + len(values))
	v.data = append(v.data, values...)
}

// Pop removes and returns the last element. It panics if v is empty.
func (v *Vector[T]) Pop() T {
	last := len(v.data) - 1
	value := v.data[last]

	var zero T
	v.data[last] = zero
	v.data = v.data[:last]
	return value
}

// Insert inserts value at index i, shifting later elements up. i may equal
// Len, in which case Insert is equivalent to Push.
func (v *Vector[T]) Insert(i int, value T) {
	if i < 0 || i > len(v.data) {
		panic("container: insert index out of range")
	}
	v.Reserve(len(v.data) + 1)
	v.data = v.data[:len(v.data)+1]
	copy(v.data[i+1:], v.data[i:])
	v.data[i] = value
}

// Erase removes the element at index i, shifting later elements down.
func (v *Vector[T]) Erase(i int) {
	copy(v.data[i:], v.data[i+1:])

	var zero T
	v.data[len(v.data)-1] = zero
	v.data = v.data[:len(v.data)-1]
}

// Resize sets the length of v to n. New elements are zero values.
func (v *Vector[T]) Resize(n int) {
	if n < len(v.data) {
		var zero T
		for i := n; i < len(v.data); i++ {
			v.data[i] = zero
		}
		v.data = v.data[:n]
		return
	}
	v.Reserve(n)
	v.data = v.data[:n]
}

// Clear removes all elements, keeping the allocated capacity.
func (v *Vector[T]) Clear() { v.Resize(0) }

// Clone returns an independent copy of v.
func (v *Vector[T]) Clone() *Vector[T] { return VectorOf(v.data...) }
