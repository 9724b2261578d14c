// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package container

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i * 3
	}
	return s
}

var _ = Describe("Vector", func() {
	var v *Vector[int]

	BeforeEach(func() {
		v = &Vector[int]{}
	})

	It("reads back pushed elements in order", func() {
		for n := 0; n < 200; n += 7 {
			v.Clear()
			v.PushAll(sequence(n)...)
			Expect(v.Len()).To(Equal(n))
			for i := 0; i < n; i++ {
				Expect(v.At(i)).To(Equal(i * 3))
			}
		}
	})

	It("doubles its capacity as it grows", func() {
		v.Push(1)
		Expect(v.Cap()).To(Equal(4))

		v.PushAll(2, 3, 4)
		Expect(v.Cap()).To(Equal(4))

		v.Push(5)
		Expect(v.Cap()).To(Equal(8))

		v.PushAll(sequence(4)...)
		Expect(v.Cap()).To(Equal(16))
	})

	It("rounds reservations up to a power of two", func() {
		v.Reserve(33)
		Expect(v.Cap()).To(Equal(64))
		Expect(v.Len()).To(Equal(0))
	})

	It("inserts and erases in the middle", func() {
		v.PushAll(1, 2, 4)
		v.Insert(2, 3)
		v.Insert(0, 0)
		v.Insert(v.Len(), 5)
		Expect(v.Slice()).To(Equal([]int{0, 1, 2, 3, 4, 5}))

		v.Erase(0)
		v.Erase(2)
		Expect(v.Slice()).To(Equal([]int{1, 2, 4, 5}))
	})

	It("pops the last element", func() {
		v.PushAll(1, 2)
		Expect(v.Pop()).To(Equal(2))
		Expect(v.Back()).To(Equal(1))
		Expect(v.Len()).To(Equal(1))
	})

	It("resizes with zero values and keeps capacity on shrink", func() {
		v.PushAll(1, 2, 3)
		v.Resize(6)
		Expect(v.Slice()).To(Equal([]int{1, 2, 3, 0, 0, 0}))

		capacity := v.Cap()
		v.Resize(1)
		Expect(v.Slice()).To(Equal([]int{1}))
		Expect(v.Cap()).To(Equal(capacity))
	})

	It("clones independently", func() {
		v.PushAll(1, 2, 3)
		c := v.Clone()
		c.Set(0, 42)
		Expect(v.At(0)).To(Equal(1))
		Expect(c.At(0)).To(Equal(42))
	})
})
