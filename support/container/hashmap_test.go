// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package container

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// collide sends every key to the same home slot.
func collide(uint32) uint32 { return 0x40 }

func mustFind[K comparable, V any](m *HashMap[K, V], key K) V {
	v, ok := m.Find(key)
	ExpectWithOffset(1, ok).To(BeTrue(), "key %v not found", key)
	return v
}

var _ = Describe("HashMap", func() {
	var m *HashMap[uint32, string]

	BeforeEach(func() {
		m = NewHashMap[uint32, string](HashU32)
	})

	It("starts with the default table size", func() {
		Expect(m.TableSize()).To(Equal(DefaultTableSize))
		Expect(m.Count()).To(Equal(0))
	})

	Context("InsertIfNew", func() {
		It("inserts a new key", func() {
			v, inserted := m.InsertIfNew(7, "seven")
			Expect(inserted).To(BeTrue())
			Expect(*v).To(Equal("seven"))
			Expect(m.Count()).To(Equal(1))
		})

		It("is a no-op for an existing key", func() {
			m.InsertIfNew(7, "seven")

			v, inserted := m.InsertIfNew(7, "other")
			Expect(inserted).To(BeFalse())
			Expect(*v).To(Equal("seven"))
			Expect(m.Count()).To(Equal(1))

			found, ok := m.Find(7)
			Expect(ok).To(BeTrue())
			Expect(found).To(Equal("seven"))
		})

		It("keeps first values for many keys across resizes", func() {
			for i := uint32(0); i < 1000; i++ {
				m.InsertIfNew(i, fmt.Sprint(i))
			}
			for i := uint32(0); i < 1000; i++ {
				_, inserted := m.InsertIfNew(i, "dup")
				Expect(inserted).To(BeFalse())
			}
			Expect(m.Count()).To(Equal(1000))
			for i := uint32(0); i < 1000; i++ {
				Expect(mustFind(m, i)).To(Equal(fmt.Sprint(i)))
			}
		})
	})

	Context("InsertOrGet", func() {
		It("inserts the default on first encounter and returns it later", func() {
			counts := NewHashMap[string, int](HashString)
			for _, w := range []string{"a", "b", "a", "c", "a"} {
				*counts.InsertOrGet(w, 0)++
			}
			Expect(counts.Count()).To(Equal(3))
			Expect(mustFind(counts, "a")).To(Equal(3))
			Expect(mustFind(counts, "b")).To(Equal(1))
		})
	})

	Context("resizing", func() {
		It("doubles at 70% load and rehashes every entry", func() {
			m = NewHashMapSize[uint32, string](HashU32, 16)
			for i := uint32(0); i < 10; i++ {
				m.InsertIfNew(i, fmt.Sprint(i))
			}
			Expect(m.TableSize()).To(Equal(16))

			m.InsertIfNew(10, "10")
			m.InsertIfNew(11, "11")
			Expect(m.TableSize()).To(Equal(32))
			for i := uint32(0); i < 12; i++ {
				Expect(m.Contains(i)).To(BeTrue())
			}
		})
	})

	Context("Erase", func() {
		It("reduces the count and allows re-insertion", func() {
			m.InsertIfNew(1, "one")
			m.InsertIfNew(2, "two")

			Expect(m.Erase(1)).To(BeTrue())
			Expect(m.Erase(1)).To(BeFalse())
			Expect(m.Count()).To(Equal(1))
			Expect(m.Contains(1)).To(BeFalse())

			_, inserted := m.InsertIfNew(1, "uno")
			Expect(inserted).To(BeTrue())
			Expect(mustFind(m, 1)).To(Equal("uno"))
		})

		It("never shrinks the table", func() {
			for i := uint32(0); i < 200; i++ {
				m.InsertIfNew(i, "")
			}
			size := m.TableSize()
			for i := uint32(0); i < 200; i++ {
				m.Erase(i)
			}
			Expect(m.Count()).To(Equal(0))
			Expect(m.TableSize()).To(Equal(size))
		})

		It("keeps probe chains intact through tombstones", func() {
			m = NewHashMap[uint32, string](collide)
			for i := uint32(0); i < 5; i++ {
				m.InsertIfNew(i, fmt.Sprint(i))
			}

			By("erasing the middle of the chain")
			m.Erase(1)
			m.Erase(2)
			for _, k := range []uint32{0, 3, 4} {
				Expect(mustFind(m, k)).To(Equal(fmt.Sprint(k)))
			}

			By("reusing the first tombstone without duplicating later keys")
			_, inserted := m.InsertIfNew(4, "dup")
			Expect(inserted).To(BeFalse())
			_, inserted = m.InsertIfNew(9, "nine")
			Expect(inserted).To(BeTrue())
			Expect(m.Count()).To(Equal(4))

			pos := m.findSlot(9)
			Expect(pos).To(Equal(int((0x40 + 1) & m.mask())))
		})

		It("terminates lookups in a table made of tombstones", func() {
			spread := func(k uint32) uint32 { return k + 4 }
			m = NewHashMapSize[uint32, string](spread, 4)
			m.InsertIfNew(0, "a")
			m.InsertIfNew(1, "b")
			m.Erase(0)
			m.Erase(1)
			m.InsertIfNew(2, "c")
			m.InsertIfNew(3, "d")
			m.Erase(2)
			m.Erase(3)
			Expect(m.TableSize()).To(Equal(4))
			Expect(m.Contains(5)).To(BeFalse())

			_, inserted := m.InsertIfNew(6, "e")
			Expect(inserted).To(BeTrue())
			Expect(mustFind(m, 6)).To(Equal("e"))
		})
	})

	It("ranges over entries and clears", func() {
		m.InsertIfNew(3, "c")
		m.InsertIfNew(1, "a")
		Expect(m.Keys()).To(ConsistOf(uint32(1), uint32(3)))

		m.Clear()
		Expect(m.Count()).To(Equal(0))
		Expect(m.Contains(1)).To(BeFalse())
	})

	It("hashes pairs by both halves", func() {
		Expect(HashPair(1, 2)).ToNot(Equal(HashPair(2, 1)))
		Expect(HashU8(3)).To(Equal(HashU32(3)))
		Expect(HashU16(3)).To(Equal(HashU32(3)))
	})
})
