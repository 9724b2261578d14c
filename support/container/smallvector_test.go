// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package container

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("SmallVector", func() {
	const inlineSize = 4

	var v SmallVector[int]

	BeforeEach(func() {
		v = NewSmallVector[int](inlineSize)
	})

	It("round-trips every size across the inline/heap boundary", func() {
		for n := 0; n <= 3*inlineSize; n++ {
			sv := NewSmallVector[int](inlineSize)
			for _, e := range sequence(n) {
				sv.Push(e)
			}

			Expect(sv.Len()).To(Equal(n))
			Expect(sv.IsInline()).To(Equal(n <= inlineSize))
			Expect(sv.Slice()).To(Equal(sequence(n)))
		}
	})

	It("moves to the heap past N and back inline when shrinking", func() {
		for i := 0; i < inlineSize; i++ {
			v.Push(i)
		}
		Expect(v.IsInline()).To(BeTrue())
		Expect(v.Cap()).To(Equal(inlineSize))

		By("growing past the inline capacity")
		v.Push(inlineSize)
		Expect(v.IsInline()).To(BeFalse())
		Expect(v.Cap()).To(Equal(8))

		By("popping back to N elements")
		Expect(v.Pop()).To(Equal(inlineSize))
		Expect(v.IsInline()).To(BeTrue())
		Expect(v.Slice()).To(Equal([]int{0, 1, 2, 3}))

		By("keeping inline data intact after the round trip")
		v.Set(0, 99)
		Expect(v.At(0)).To(Equal(99))
	})

	It("relocates inline on Erase and Resize", func() {
		for _, e := range sequence(6) {
			v.Push(e)
		}
		Expect(v.IsInline()).To(BeFalse())

		v.Erase(0)
		Expect(v.IsInline()).To(BeFalse())
		v.Erase(0)
		Expect(v.IsInline()).To(BeTrue())
		Expect(v.Slice()).To(Equal([]int{6, 9, 12, 15}))

		v.Resize(10)
		Expect(v.IsInline()).To(BeFalse())
		Expect(v.Slice()[4:]).To(Equal([]int{0, 0, 0, 0, 0, 0}))

		v.Resize(2)
		Expect(v.IsInline()).To(BeTrue())
		Expect(v.Slice()).To(Equal([]int{6, 9}))
	})

	It("inserts across the boundary", func() {
		v.Push(1)
		v.Push(3)
		v.Insert(1, 2)
		v.Insert(0, 0)
		Expect(v.IsInline()).To(BeTrue())

		v.Insert(4, 4)
		Expect(v.IsInline()).To(BeFalse())
		Expect(v.Slice()).To(Equal([]int{0, 1, 2, 3, 4}))
	})

	It("returns to inline storage on Clear", func() {
		for _, e := range sequence(20) {
			v.Push(e)
		}
		v.Clear()
		Expect(v.Len()).To(Equal(0))
		Expect(v.IsInline()).To(BeTrue())

		v.Push(7)
		Expect(v.Slice()).To(Equal([]int{7}))
	})

	Context("Swap", func() {
		It("exchanges an inline vector with a heap vector in both directions", func() {
			small := NewSmallVector[int](inlineSize)
			small.Push(1)
			small.Push(2)

			big := NewSmallVector[int](inlineSize)
			for _, e := range sequence(9) {
				big.Push(e)
			}

			small.Swap(&big)
			Expect(small.IsInline()).To(BeFalse())
			Expect(small.Slice()).To(Equal(sequence(9)))
			Expect(big.IsInline()).To(BeTrue())
			Expect(big.Slice()).To(Equal([]int{1, 2}))

			By("shrinking the swapped heap vector back below N")
			for small.Len() > 3 {
				small.Pop()
			}
			Expect(small.IsInline()).To(BeTrue())
			Expect(small.Slice()).To(Equal([]int{0, 3, 6}))

			By("growing the swapped inline vector past N")
			for _, e := range sequence(5) {
				big.Push(e)
			}
			Expect(big.IsInline()).To(BeFalse())
			Expect(big.Slice()).To(Equal([]int{1, 2, 0, 3, 6, 9, 12}))

			By("leaving the two vectors independent")
			small.Set(0, -1)
			Expect(big.At(2)).To(Equal(0))
		})
	})

	Context("Move", func() {
		It("moves a heap vector and leaves the source empty and inline", func() {
			src := NewSmallVector[int](inlineSize)
			for _, e := range sequence(7) {
				src.Push(e)
			}

			v.Move(&src)
			Expect(v.Slice()).To(Equal(sequence(7)))
			Expect(v.IsInline()).To(BeFalse())
			Expect(src.Len()).To(Equal(0))
			Expect(src.IsInline()).To(BeTrue())

			By("shrinking the destination back inline")
			v.Resize(1)
			Expect(v.IsInline()).To(BeTrue())
			Expect(v.Slice()).To(Equal([]int{0}))

			By("reusing the source")
			src.Push(5)
			Expect(src.Slice()).To(Equal([]int{5}))
			Expect(v.Slice()).To(Equal([]int{0}))
		})

		It("moves an inline vector into inline storage", func() {
			src := NewSmallVector[int](inlineSize)
			src.Push(1)
			src.Push(2)

			for _, e := range sequence(10) {
				v.Push(e)
			}
			v.Move(&src)
			Expect(v.IsInline()).To(BeTrue())
			Expect(v.Slice()).To(Equal([]int{1, 2}))
			Expect(src.Len()).To(Equal(0))
		})
	})

	It("clones independently", func() {
		for _, e := range sequence(6) {
			v.Push(e)
		}
		c := v.Clone()
		c.Set(5, 0)
		Expect(v.At(5)).To(Equal(15))
		Expect(c.InlineCap()).To(Equal(inlineSize))
	})

	It("behaves like a Vector with no inline capacity", func() {
		var z SmallVector[int]
		Expect(z.IsInline()).To(BeTrue())
		z.Push(1)
		Expect(z.IsInline()).To(BeFalse())
		z.Pop()
		Expect(z.IsInline()).To(BeTrue())
		Expect(z.Len()).To(Equal(0))
	})
})
