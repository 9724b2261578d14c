// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package container

// SmallVector is a growable sequence that stores its first N elements in an
// inline buffer owned by the vector. A heap buffer is allocated only once the
// element count exceeds N. When the count drops back to N or fewer, the
// elements are relocated into the inline buffer and the heap buffer is
// released.
//
// A zero SmallVector has no inline capacity and behaves like a Vector.
type SmallVector[T any] struct {
	inline []T
	heap   []T
	count  int
}

// NewSmallVector returns an empty SmallVector with n inline slots.
func NewSmallVector[T any](n int) SmallVector[T] {
	return SmallVector[T]{inline: make([]T, n)}
}

// InlineCap returns the number of inline slots.
func (v *SmallVector[T]) InlineCap() int { return len(v.inline) }

// IsInline returns true if the elements currently live in the inline buffer.
func (v *SmallVector[T]) IsInline() bool { return v.heap == nil }

// Len returns the number of elements.
func (v *SmallVector[T]) Len() int { return v.count }

// Cap returns the number of elements v can hold before reallocating.
func (v *SmallVector[T]) Cap() int {
	if v.heap != nil {
		return len(v.heap)
	}
	return len(v.inline)
}

func (v *SmallVector[T]) storage() []T {
	if v.heap != nil {
		return v.heap
	}
	return v.inline
}

// Slice returns the elements of v. The returned slice aliases v's storage and
// is invalidated when v moves between inline and heap storage.
func (v *SmallVector[T]) Slice() []T { return v.storage()[:v.count] }

// At returns the element at index i. It panics if i is out of range.
func (v *SmallVector[T]) At(i int) T {
	if i < 0 || i >= v.count {
		panic("container: index out of range")
	}
	return v.storage()[i]
}

// Set replaces the element at index i.
func (v *SmallVector[T]) Set(i int, value T) {
	if i < 0 || i >= v.count {
		panic("container: index out of range")
	}
	v.storage()[i] = value
}

// Back returns the last element. It panics if v is empty.
func (v *SmallVector[T]) Back() T { return v.At(v.count - 1) }

// Reserve ensures that v can hold at least n elements without reallocating.
func (v *SmallVector[T]) Reserve(n int) {
	if n <= v.Cap() {
		return
	}
	heap := make([]T, growCapacity(n))
	copy(heap, v.storage()[:v.count])
	v.clearInline()
	v.heap = heap
}

// Push appends value.
func (v *SmallVector[T]) Push(value T) {
	v.Reserve(v.count + 1)
	v.storage()[v.count] = value
	v.count++
}

// Pop removes and returns the last element. It panics if v is empty.
func (v *SmallVector[T]) Pop() T {
	value := v.Back()

	var zero T
	v.storage()[v.count-1] = zero
	v.count--
	v.compact()
	return value
}

// Insert inserts value at index i, shifting later elements up.
func (v *SmallVector[T]) Insert(i int, value T) {
	if i < 0 || i > v.count {
		panic("container: insert index out of range")
	}
	v.Reserve(v.count + 1)
	s := v.storage()
	copy(s[i+1:v.count+1], s[i:v.count])
	s[i] = value
	v.count++
}

// Erase removes the element at index i, shifting later elements down.
func (v *SmallVector[T]) Erase(i int) {
	if i < 0 || i >= v.count {
		panic("container: index out of range")
	}
	s := v.storage()
	copy(s[i:v.count], s[i+1:v.count])

	var zero T
	s[v.count-1] = zero
	v.count--
	v.compact()
}

// Resize sets the length of v to n. New elements are zero values.
func (v *SmallVector[T]) Resize(n int) {
	if n > v.count {
		v.Reserve(n)
		v.count = n
		return
	}

	var zero T
	s := v.storage()
	for i := n; i < v.count; i++ {
		s[i] = zero
	}
	v.count = n
	v.compact()
}

// Clear removes all elements and returns v to inline storage.
func (v *SmallVector[T]) Clear() { v.Resize(0) }

// Swap exchanges the contents of v and o, inline buffers included.
func (v *SmallVector[T]) Swap(o *SmallVector[T]) {
	*v, *o = *o, *v
}

// Move transfers the contents of o into v, leaving o empty and inline. v's
// inline capacity is kept; if o's elements fit, they land inline in v.
func (v *SmallVector[T]) Move(o *SmallVector[T]) {
	if v == o {
		return
	}
	v.Clear()
	if o.count <= len(v.inline) {
		copy(v.inline, o.storage()[:o.count])
		v.count = o.count
	} else {
		if o.heap != nil {
			v.heap = o.heap
		} else {
			v.heap = make([]T, growCapacity(o.count))
			copy(v.heap, o.inline[:o.count])
		}
		v.count = o.count
	}
	o.heap = nil
	o.clearInline()
	o.count = 0
}

// Clone returns an independent copy of v with the same inline capacity.
func (v *SmallVector[T]) Clone() SmallVector[T] {
	c := NewSmallVector[T](len(v.inline))
	c.Reserve(v.count)
	copy(c.storage(), v.Slice())
	c.count = v.count
	return c
}

func (v *SmallVector[T]) compact() {
	if v.heap == nil || v.count > len(v.inline) {
		return
	}
	copy(v.inline, v.heap[:v.count])
	v.heap = nil
}

func (v *SmallVector[T]) clearInline() {
	var zero T
	for i := range v.inline {
		v.inline[i] = zero
	}
}
