// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/capture"
	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/replay/compression"
	"github.com/reframedultimate/ReFramed-sub002/replay/filename"
	"github.com/reframedultimate/ReFramed-sub002/replay/savefile"
	"github.com/reframedultimate/ReFramed-sub002/session"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func TestReplay(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Replay Tests")
}

var started = time.Date(2022, 9, 11, 19, 45, 22, 0, time.UTC)

func testMapping() *mapping.Info {
	info := mapping.NewInfo(0xC0FFEE)
	info.Fighter.Add(8, "PIKACHU")
	info.Fighter.Add(10, "CAPTAIN")
	info.Stage.Add(118, "BATTLEFIELD")
	info.HitStatus.Add(0, "HIT_STATUS_NORMAL")
	info.Status.AddBase(470, "FIGHTER_STATUS_KIND_STANDBY")
	info.Status.AddSpecific(8, 500, "FIGHTER_PIKACHU_STATUS_KIND_SPECIAL_S")
	return info
}

// testFrame returns a frame whose values survive the capture fixed-point
// encoding exactly.
func testFrame(p, i int) session.Frame {
	return session.Frame{
		Timestamp: session.MillisFromTime(started) + session.FrameOffsetMillis(uint64(i)),
		Index:     uint32(1000 + i),
		PosX:      float32(i) * 1.5,
		PosY:      -2,
		Damage:    float32(10*p) + 12.5,
		Hitstun:   3.25,
		Shield:    49.5,
		Status:    470,
		Motion:    session.MotionFromParts(0x0A, uint32(i)),
		Stocks:    uint8(3 - p),
		Flags:     session.FacingDirection,
	}
}

func testSession(frameCount int) *session.Session {
	md := session.NewGameMetaData(118, []session.Player{
		{Fighter: 8, Tag: "TheComet"},
		{Fighter: 10, Tag: "TAEL"},
	})
	md.TimeStarted = session.MillisFromTime(started)
	md.TimeEnded = md.TimeStarted + session.FrameOffsetMillis(uint64(frameCount))
	md.Game.Event = "Singles Bracket"

	frames := make([][]session.Frame, len(md.Players))
	for p := range frames {
		for i := 0; i < frameCount; i++ {
			frames[p] = append(frames[p], testFrame(p, i))
		}
	}
	s, err := session.NewWithFrames(testMapping(), md, frames)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	s.FinalizeWinner()
	return s
}

func expectSameSession(got, want *session.Session) {
	ExpectWithOffset(1, got.MetaData()).To(Equal(want.MetaData()))
	ExpectWithOffset(1, got.MappingInfo().Equal(want.MappingInfo())).To(BeTrue())
	ExpectWithOffset(1, got.FighterCount()).To(Equal(want.FighterCount()))
	for p := 0; p < want.FighterCount(); p++ {
		ExpectWithOffset(1, got.Frames(p)).To(Equal(want.Frames(p)))
	}
}

var _ = Describe("Load and Save", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "replay_test")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	DescribeTable("round-trips a session",
		func(opts SaveOptions) {
			want := testSession(12)
			data, err := Marshal(want, opts)
			Expect(err).ToNot(HaveOccurred())

			got, err := Load(data)
			Expect(err).ToNot(HaveOccurred())
			expectSameSession(got, want)
		},
		Entry("container", DefaultSaveOptions),
		Entry("zero options", SaveOptions{}),
		Entry("uncompressed JSON", SaveOptions{Format: FormatJSON, Version: savefile.Latest, Compression: compression.None}),
		Entry("gzip JSON", SaveOptions{Format: FormatJSON, Version: savefile.Latest, Compression: compression.Gzip}),
		Entry("legacy deflate JSON", SaveOptions{Format: FormatJSON, Version: savefile.Latest, Compression: compression.DeflateLegacy}),
		Entry("zstd JSON", SaveOptions{Format: FormatJSON, Version: savefile.Latest, Compression: compression.Zstd, Level: 3}),
		Entry("snappy JSON", SaveOptions{Format: FormatJSON, Version: savefile.Latest, Compression: compression.Snappy}),
	)

	It("saves and loads files atomically", func() {
		want := testSession(4)
		path := filepath.Join(dir, "nested", "game.rfr")
		Expect(SaveFile(path, want, DefaultSaveOptions)).To(Succeed())

		got, err := LoadFile(path)
		Expect(err).ToNot(HaveOccurred())
		expectSameSession(got, want)

		// Nothing staged is left behind.
		entries, err := os.ReadDir(filepath.Dir(path))
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("reports load failures as a LoadError", func() {
		_, err := Load([]byte("definitely not a replay"))
		Expect(err).To(BeAssignableToTypeOf(&LoadError{}))
		Expect(err.Error()).To(HavePrefix("could not load replay: "))

		_, err = LoadFile(filepath.Join(dir, "missing.rfr"))
		Expect(err).To(BeAssignableToTypeOf(&LoadError{}))
		Expect(err.(*LoadError).Path).To(HaveSuffix("missing.rfr"))
	})

	It("reports malformed containers with the malformed input cause", func() {
		data, err := Marshal(testSession(4), DefaultSaveOptions)
		Expect(err).ToNot(HaveOccurred())

		_, err = Load(data[:len(data)/2])
		Expect(err).To(BeAssignableToTypeOf(&LoadError{}))
		Expect(errors.Cause(err)).To(Equal(savefile.ErrMalformedInput))
	})

	It("refuses to save containers with unequal frame counts", func() {
		s := testSession(4)
		_, err := s.AppendFrame(0, testFrame(0, 4))
		Expect(err).ToNot(HaveOccurred())

		_, err = Marshal(s, DefaultSaveOptions)
		Expect(err).To(HaveOccurred())
	})

	It("converts legacy replays with uneven players to containers", func() {
		s := testSession(4)
		_, err := s.AppendFrame(0, testFrame(0, 4))
		Expect(err).ToNot(HaveOccurred())
		data, err := Marshal(s, SaveOptions{Format: FormatJSON, Version: savefile.V1_3, Compression: compression.None})
		Expect(err).ToNot(HaveOccurred())

		loaded, err := Load(data)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded.FrameCount(1)).To(Equal(5))
		last, _ := loaded.LastFrame(1)
		Expect(last.Index).To(Equal(uint32(1003)))

		data, err = Marshal(loaded, DefaultSaveOptions)
		Expect(err).ToNot(HaveOccurred())
		got, err := Load(data)
		Expect(err).ToNot(HaveOccurred())
		expectSameSession(got, loaded)
	})

	It("parses format names", func() {
		f, err := ParseFormat("JSON")
		Expect(err).ToNot(HaveOccurred())
		Expect(f).To(Equal(FormatJSON))
		Expect(f.String()).To(Equal("json"))

		_, err = ParseFormat("xml")
		Expect(err).To(HaveOccurred())
	})
})

// feed sends the events of src, as a capture device would announce it, to h.
func feed(h capture.Handler, src *session.Session) {
	md := src.MetaData()
	h.HandleEvent(capture.GameStarted{
		Stage:    md.Stage,
		EntryIDs: []uint8{0, 1},
		Players:  md.Players,
		Mapping:  src.MappingInfo(),
	})
	for i := 0; i < src.FrameCount(0); i++ {
		for p := 0; p < src.FighterCount(); p++ {
			f, _ := src.Frame(p, i)
			h.HandleEvent(capture.FighterStateReceived{PlayerIndex: p, EntryID: uint8(p), Frame: f})
		}
	}
	h.HandleEvent(capture.GameEnded{})
}

var _ = Describe("Recorder", func() {
	var (
		dir string
		r   *Recorder
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "recorder_test")
		Expect(err).ToNot(HaveOccurred())

		r = &Recorder{
			Dir:      dir,
			Location: time.UTC,
			NowFunc:  func() time.Time { return started },
		}
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("ignores events until started", func() {
		Expect(r.Status()).To(BeNil())
		feed(r, testSession(3))
		Expect(r.Stop()).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("saves finished sessions under their generated names", func() {
		var saved []string
		r.OnSaved = func(path string, _ *session.Session) { saved = append(saved, path) }
		r.Start()
		defer r.Stop()

		src := testSession(3)
		feed(r, src)
		feed(r, src)

		Expect(saved).To(HaveLen(2))
		Expect(saved[1]).To(Equal(strings.TrimSuffix(saved[0], filename.Extension) + " (2)" + filename.Extension))

		parts := filename.FromFileName(filepath.Base(saved[0]))
		Expect(parts.Date).To(Equal("2022-09-11"))
		Expect(parts.Time).To(Equal("19:45:22"))
		Expect(parts.Stage).To(Equal("BATTLEFIELD"))
		Expect(parts.Players).To(Equal([]filename.Player{
			{Name: "TheComet", Fighter: "PIKACHU"},
			{Name: "TAEL", Fighter: "CAPTAIN"},
		}))

		got, err := LoadFile(saved[0])
		Expect(err).ToNot(HaveOccurred())
		Expect(got.MetaData().Players).To(Equal(src.MetaData().Players))
		for p := 0; p < src.FighterCount(); p++ {
			Expect(got.Frames(p)).To(Equal(src.Frames(p)))
		}

		st := r.Status()
		Expect(st).ToNot(BeNil())
		Expect(st.Sessions).To(Equal(int64(2)))
		Expect(st.Name).To(Equal(saved[1]))
		Expect(st.Recording).To(BeFalse())
	})

	It("saves the session in progress on Stop, trimming unequal players", func() {
		r.Start()

		src := testSession(3)
		md := src.MetaData()
		r.HandleEvent(capture.GameStarted{Stage: md.Stage, EntryIDs: []uint8{0, 1}, Players: md.Players, Mapping: src.MappingInfo()})
		for i := 0; i < 3; i++ {
			r.HandleEvent(capture.FighterStateReceived{PlayerIndex: 0, Frame: testFrame(0, i)})
		}
		r.HandleEvent(capture.FighterStateReceived{PlayerIndex: 1, Frame: testFrame(1, 0)})

		st := r.Status()
		Expect(st.Recording).To(BeTrue())
		Expect(st.Frames).To(Equal(3))

		Expect(r.Stop()).To(Succeed())
		Expect(r.Status()).To(BeNil())

		entries, err := os.ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(1))

		got, err := LoadFile(filepath.Join(dir, entries[0].Name()))
		Expect(err).ToNot(HaveOccurred())
		Expect(got.FrameCount(0)).To(Equal(1))
		Expect(got.FrameCount(1)).To(Equal(1))
	})

	It("discards sessions without frames", func() {
		r.Start()
		md := testSession(0).MetaData()
		r.HandleEvent(capture.GameStarted{Stage: md.Stage, EntryIDs: []uint8{0, 1}, Players: md.Players, Mapping: testMapping()})
		r.HandleEvent(capture.GameEnded{})
		Expect(r.Stop()).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})

var _ = Describe("Player", func() {
	var (
		l      net.Listener
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		var err error
		l, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		cancel()
		_ = l.Close()
	})

	// capture connects a capture client to the player and returns the sessions
	// it assembled.
	captureFrom := func(p *Player) []*session.Session {
		served := make(chan error, 1)
		go func() {
			conn, err := l.Accept()
			if err != nil {
				served <- err
				return
			}
			served <- p.ServeConn(ctx, conn)
		}()

		conn, err := net.Dial("tcp", l.Addr().String())
		ExpectWithOffset(1, err).ToNot(HaveOccurred())

		var finished []*session.Session
		c := &capture.Client{
			Handler: &capture.SessionBuilder{
				NowFunc:    func() time.Time { return started },
				OnFinished: func(s *session.Session) { finished = append(finished, s) },
			},
		}
		_, err = c.Handshake(ctx, conn)
		ExpectWithOffset(1, err).ToNot(HaveOccurred())
		ExpectWithOffset(1, c.NegotiateMapping()).To(Succeed())
		ExpectWithOffset(1, c.Run(ctx)).To(Succeed())

		EventuallyWithOffset(1, served).Should(Receive(BeNil()))
		return finished
	}

	It("plays a game to a capture client", func() {
		src := testSession(5)
		p := &Player{Session: src}

		got := captureFrom(p)
		Expect(got).To(HaveLen(1))

		s := got[0]
		Expect(s.Type()).To(Equal(session.Game))
		Expect(s.MappingInfo().Equal(src.MappingInfo())).To(BeTrue())
		Expect(s.MetaData().Stage).To(Equal(src.MetaData().Stage))
		Expect(s.MetaData().Players).To(Equal(src.MetaData().Players))
		Expect(s.FighterCount()).To(Equal(2))
		for pl := 0; pl < 2; pl++ {
			want := src.Frames(pl)
			frames := s.Frames(pl)
			Expect(frames).To(HaveLen(len(want)))
			for i := range want {
				Expect(frames[i].Index).To(Equal(want[i].Index))
				Expect(frames[i].SameState(&want[i])).To(BeTrue(), "player %d frame %d", pl, i)
			}
		}
		Expect(s.MetaData().Winner).To(Equal(src.MetaData().Winner))

		st := p.Status()
		Expect(st.Clients).To(Equal(int64(1)))
		Expect(st.Playing).To(BeFalse())
		Expect(st.Position).To(Equal(5))
		Expect(st.Frames).To(Equal(5))
	})

	It("plays a training session", func() {
		md := session.NewTrainingMetaData(118, []session.Player{
			{Fighter: 8, Tag: "TheComet"},
			{Fighter: 10, Tag: capture.CPUTag},
		}, 1)
		frames := [][]session.Frame{
			{testFrame(0, 0), testFrame(0, 1)},
			{testFrame(1, 0), testFrame(1, 1)},
		}
		src, err := session.NewWithFrames(testMapping(), md, frames)
		Expect(err).ToNot(HaveOccurred())

		got := captureFrom(&Player{Session: src, FrameInterval: time.Millisecond})
		Expect(got).To(HaveLen(1))
		Expect(got[0].Type()).To(Equal(session.Training))
		Expect(got[0].MetaData().Players).To(Equal(md.Players))
		Expect(got[0].FrameCount(0)).To(Equal(2))
		Expect(got[0].FrameCount(1)).To(Equal(2))
	})

	It("stops serving when cancelled", func() {
		p := &Player{Session: testSession(1)}
		done := make(chan error, 1)
		go func() { done <- p.Serve(ctx, l) }()

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
