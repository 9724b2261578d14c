// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rfr

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/replay/compression"
	"github.com/reframedultimate/ReFramed-sub002/replay/savefile"
	"github.com/reframedultimate/ReFramed-sub002/session"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestRFR(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RFR Container Tests")
}

func testSession() *session.Session {
	info := mapping.NewInfo(0x1234)
	info.Fighter.Add(8, "PIKACHU")
	info.Stage.Add(118, "BATTLEFIELD")
	info.HitStatus.Add(0, "HIT_STATUS_NORMAL")
	info.Status.AddBase(470, "FIGHTER_STATUS_KIND_STANDBY")

	md := session.NewGameMetaData(118, []session.Player{
		{Fighter: 8, Tag: "TheComet", Sponsor: "VCR"},
		{Fighter: 8, Tag: "TAEL"},
	})
	md.TimeStarted, md.TimeEnded = 1662925522000, 1662925600000
	md.Game.Event = "Singles Bracket"

	frames := make([][]session.Frame, 2)
	for p := range frames {
		for i := 0; i < 30; i++ {
			frames[p] = append(frames[p], session.Frame{
				Timestamp: md.TimeStarted + uint64(i*17),
				Index:     uint32(1000 + i),
				PosX:      float32(i),
				Damage:    float32(p * i),
				Stocks:    uint8(3 - p),
				Motion:    session.MotionFromParts(0x0A, uint32(i)),
				Flags:     session.OpponentInHitlag,
			})
		}
	}
	s, err := session.NewWithFrames(info, md, frames)
	Expect(err).ToNot(HaveOccurred())
	s.FinalizeWinner()
	return s
}

func written(s *session.Session) []byte {
	var buf bytes.Buffer
	ExpectWithOffset(1, Write(&buf, s, compression.DefaultLevel)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Container", func() {
	It("round-trips a session, including frame indices", func() {
		want := testSession()
		data := written(want)
		Expect(IsContainer(data)).To(BeTrue())

		got, err := Read(data)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.MetaData()).To(Equal(want.MetaData()))
		Expect(got.MappingInfo().Equal(want.MappingInfo())).To(BeTrue())
		Expect(got.MappingInfo().Checksum).To(Equal(uint32(0x1234)))
		for p := 0; p < 2; p++ {
			Expect(got.Frames(p)).To(Equal(want.Frames(p)))
		}
	})

	It("lists its chunks", func() {
		entries, err := Table(written(testSession()))
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(3))
		Expect(entries[0].Type.String()).To(Equal("META"))
		Expect(entries[0].Offset).To(Equal(uint32(headerSize + 3*entrySize)))
		Expect(entries[1].Type).To(Equal(TypeMapping))
		Expect(entries[2].Type).To(Equal(TypeFrames))
	})

	It("rejects entries outside the data", func() {
		data := written(testSession())
		binary.LittleEndian.PutUint32(data[headerSize+4:], uint32(len(data)))

		_, err := Read(data)
		Expect(errors.Cause(err)).To(Equal(savefile.ErrMalformedInput))
	})

	It("rejects truncated tables and bad magic", func() {
		data := written(testSession())
		for _, n := range []int{0, 3, headerSize, headerSize + entrySize - 1} {
			_, err := Read(data[:n])
			Expect(errors.Cause(err)).To(Equal(savefile.ErrMalformedInput))
		}

		data[3] = '2'
		Expect(IsContainer(data)).To(BeFalse())
		_, err := Read(data)
		Expect(errors.Cause(err)).To(Equal(savefile.ErrMalformedInput))
	})

	It("rejects unknown frame data versions", func() {
		data := written(testSession())
		entries, err := Table(data)
		Expect(err).ToNot(HaveOccurred())
		data[entries[2].Offset+1] = 9

		_, err = Read(data)
		Expect(errors.Cause(err)).To(Equal(savefile.ErrUnsupportedVersion))
	})

	It("requires equal frame counts", func() {
		s := testSession()
		_, err := s.AppendFrame(0, session.Frame{})
		Expect(err).ToNot(HaveOccurred())
		Expect(Write(&bytes.Buffer{}, s, compression.DefaultLevel)).ToNot(Succeed())
	})
})
