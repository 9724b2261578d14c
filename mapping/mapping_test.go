// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mapping

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func TestMapping(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Mapping Tests")
}

var _ = Describe("Info", func() {
	var mi *Info

	BeforeEach(func() {
		mi = NewInfo(0)
	})

	DescribeTable("returns a sentinel for IDs that were never added",
		func(lookup func(*Info) string, expected string) {
			Expect(lookup(mi)).To(Equal(expected))
		},
		Entry("fighter", func(mi *Info) string { return mi.Fighter.Name(42) }, UnknownFighter),
		Entry("stage", func(mi *Info) string { return mi.Stage.Name(1000) }, UnknownStage),
		Entry("hit status", func(mi *Info) string { return mi.HitStatus.Name(7) }, UnknownHitStatus),
		Entry("fighter status", func(mi *Info) string { return mi.Status.Name(3, 470) }, UnknownStatus),
	)

	It("keeps the first name added for an ID", func() {
		Expect(mi.Fighter.Add(8, "Pikachu")).To(BeTrue())
		Expect(mi.Fighter.Add(8, "Raichu")).To(BeFalse())
		Expect(mi.Fighter.Name(8)).To(Equal("Pikachu"))
		Expect(mi.Fighter.Len()).To(Equal(1))
	})

	It("finds IDs by name", func() {
		mi.Stage.Add(311, "Town & City")
		mi.Stage.Add(12, "Battlefield")

		id, ok := mi.Stage.ID("Town & City")
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(StageID(311)))

		_, ok = mi.Stage.ID("Final Destination")
		Expect(ok).To(BeFalse())
	})

	It("ranges in ascending ID order", func() {
		mi.HitStatus.Add(3, "c")
		mi.HitStatus.Add(1, "a")
		mi.HitStatus.Add(2, "b")

		var names []string
		mi.HitStatus.Range(func(_ HitStatusID, name string) bool {
			names = append(names, name)
			return true
		})
		Expect(names).To(Equal([]string{"a", "b", "c"}))
	})

	Context("fighter statuses", func() {
		BeforeEach(func() {
			mi.Status.AddBase(0, "FIGHTER_STATUS_KIND_WAIT")
			mi.Status.AddBase(470, "FIGHTER_STATUS_KIND_STANDBY")
			mi.Status.AddSpecific(8, 470, "FIGHTER_PIKACHU_STATUS_KIND_SPECIAL")
		})

		It("prefers fighter-specific names", func() {
			Expect(mi.Status.Name(8, 470)).To(Equal("FIGHTER_PIKACHU_STATUS_KIND_SPECIAL"))
		})

		It("falls back to the base table", func() {
			Expect(mi.Status.Name(9, 470)).To(Equal("FIGHTER_STATUS_KIND_STANDBY"))
			Expect(mi.Status.Name(8, 0)).To(Equal("FIGHTER_STATUS_KIND_WAIT"))
		})

		It("ignores duplicate specific entries", func() {
			Expect(mi.Status.AddSpecific(8, 470, "other")).To(BeFalse())
			Expect(mi.Status.SpecificLen()).To(Equal(1))
			Expect(mi.Status.SpecificFighters()).To(Equal([]FighterID{8}))
		})
	})

	It("compares tables by content", func() {
		other := NewInfo(99)
		for _, m := range []*Info{mi, other} {
			m.Fighter.Add(1, "Mario")
			m.Status.AddSpecific(1, 500, "JUMP")
		}
		Expect(mi.Equal(other)).To(BeTrue())

		other.Stage.Add(1, "Battlefield")
		Expect(mi.Equal(other)).To(BeFalse())
	})
})
