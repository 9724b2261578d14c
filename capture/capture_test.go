// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"bufio"
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestCapture(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Capture Tests")
}

// loopback returns both ends of a TCP connection.
func loopback() (device, app net.Conn) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		defer close(accepted)
		if c, err := l.Accept(); err == nil {
			accepted <- c
		}
	}()

	app, err = net.Dial("tcp", l.Addr().String())
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	device = <-accepted
	ExpectWithOffset(1, device).ToNot(BeNil())
	return
}

type recorder struct {
	events []Event
}

func (r *recorder) HandleEvent(e Event) { r.events = append(r.events, e) }

func (r *recorder) last() Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func testMapping(checksum uint32) *mapping.Info {
	info := mapping.NewInfo(checksum)
	info.Fighter.Add(8, "PIKACHU")
	info.Fighter.Add(10, "CAPTAIN")
	info.Stage.Add(118, "BATTLEFIELD")
	info.HitStatus.Add(0, "HIT_STATUS_NORMAL")
	info.Status.AddBase(470, "FIGHTER_STATUS_KIND_STANDBY")
	info.Status.AddSpecific(8, 500, "FIGHTER_PIKACHU_STATUS_KIND_SPECIAL_S")
	return info
}

func testFrame(i int) session.Frame {
	return session.Frame{
		Index:   uint32(1000 + i),
		PosX:    float32(i) * 1.5,
		PosY:    -2,
		Damage:  12.5,
		Hitstun: 3.25,
		Shield:  49.5,
		Status:  470,
		Motion:  session.MotionFromParts(0x0A, uint32(i)),
		Stocks:  3,
		Flags:   session.FacingDirection,
	}
}

var fixedNow = time.Date(2022, 9, 11, 19, 45, 22, 0, time.UTC)

var _ = Describe("DecodeFighterState", func() {
	It("decodes a literal record", func() {
		payload := []byte{
			1, 0, 0, 0, // frame
			0,                      // entry ID
			0x3F, 0x80, 0x00, 0x00, // 1.0
			0x40, 0x00, 0x00, 0x00, // 2.0
			0x01, 0xF4, // damage 500
			0x00, 0x00, // hitstun
			0x00, 0x00, // shield
			0x00, 0x05, // status
			0, 0, 0, 0, 0, // motion
			0,    // hit status
			3,    // stocks
			0x03, // flags
		}
		Expect(payload).To(HaveLen(FighterStateSize))

		entryID, f, err := DecodeFighterState(payload, 1234)
		Expect(err).ToNot(HaveOccurred())
		Expect(entryID).To(Equal(uint8(0)))
		Expect(f.Timestamp).To(Equal(uint64(1234)))
		Expect(f.PosX).To(Equal(float32(1.0)))
		Expect(f.PosY).To(Equal(float32(2.0)))
		Expect(f.Damage).To(Equal(float32(10.0)))
		Expect(f.Shield).To(Equal(float32(0)))
		Expect(f.Status).To(Equal(mapping.StatusID(5)))
		Expect(f.Stocks).To(Equal(uint8(3)))
		Expect(f.Flags.AttackConnected()).To(BeTrue())
		Expect(f.Flags.FacingDirection()).To(BeTrue())
		Expect(f.Flags.OpponentInHitlag()).To(BeFalse())
	})

	It("rejects a payload of the wrong size", func() {
		_, _, err := DecodeFighterState(make([]byte, FighterStateSize-1), 0)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Receiver", func() {
	var (
		device, app net.Conn
		rec         *recorder
		r           *Receiver
	)

	BeforeEach(func() {
		device, app = loopback()
		rec = &recorder{}
		r = &Receiver{
			Handler:      rec,
			NowFunc:      func() time.Time { return fixedNow },
			PollInterval: 10 * time.Millisecond,
		}
	})

	AfterEach(func() {
		device.Close()
		app.Close()
	})

	// serve writes with enc from a goroutine, then closes the device end.
	serve := func(fn func(enc *Encoder)) {
		go func() {
			defer GinkgoRecover()
			defer device.Close()
			fn(NewEncoder(device))
		}()
	}

	It("decodes a full game", func() {
		serve(func(enc *Encoder) {
			Expect(enc.Version(VersionMajor, VersionMinor)).To(Succeed())
			Expect(enc.MappingInfo(testMapping(0xC0FFEE))).To(Succeed())
			Expect(enc.GameStart(false, 118, []uint8{4, 7}, []session.Player{
				{Fighter: 8, Tag: "TheComet"},
				{Fighter: 10, Tag: "TAEL"},
			})).To(Succeed())
			for i := 0; i < 3; i++ {
				f := testFrame(i)
				Expect(enc.FighterState(7, &f)).To(Succeed())
				Expect(enc.FighterState(4, &f)).To(Succeed())
			}
			Expect(enc.GameEnd()).To(Succeed())
		})

		var sessions []*session.Session
		builder := &SessionBuilder{
			NowFunc:    func() time.Time { return fixedNow },
			OnFinished: func(s *session.Session) { sessions = append(sessions, s) },
		}
		r.Handler = Handlers{rec, builder}
		Expect(r.Run(context.Background(), app)).To(Succeed())

		Expect(rec.events[0]).To(Equal(VersionAnnounced{Major: 1, Minor: 0}))
		Expect(rec.events[1]).To(Equal(MappingStarted{Checksum: 0xC0FFEE}))
		Expect(rec.last()).To(BeAssignableToTypeOf(ConnectionClosed{}))

		var complete *MappingComplete
		var started *GameStarted
		var states []FighterStateReceived
		for _, e := range rec.events {
			switch e := e.(type) {
			case MappingComplete:
				complete = &e
			case GameStarted:
				started = &e
			case FighterStateReceived:
				states = append(states, e)
			}
		}
		Expect(complete).ToNot(BeNil())
		Expect(complete.Mapping.Equal(testMapping(0))).To(BeTrue())
		Expect(complete.Mapping.Checksum).To(Equal(uint32(0xC0FFEE)))

		Expect(started).ToNot(BeNil())
		Expect(started.Resumed).To(BeFalse())
		Expect(started.Stage).To(Equal(mapping.StageID(118)))
		Expect(started.EntryIDs).To(Equal([]uint8{4, 7}))
		Expect(started.Players[1].Tag).To(Equal("TAEL"))

		Expect(states).To(HaveLen(6))
		Expect(states[0].PlayerIndex).To(Equal(1))
		Expect(states[1].PlayerIndex).To(Equal(0))
		want := testFrame(0)
		want.Timestamp = session.MillisFromTime(fixedNow)
		Expect(states[0].Frame).To(Equal(want))

		Expect(sessions).To(HaveLen(1))
		s := sessions[0]
		Expect(s.Type()).To(Equal(session.Game))
		Expect(s.FrameCount(0)).To(Equal(3))
		Expect(s.FrameCount(1)).To(Equal(3))
		Expect(s.MetaData().Players[0].Name).To(Equal("TheComet"))
		Expect(s.MetaData().TimeEnded).To(Equal(session.MillisFromTime(fixedNow)))
		Expect(s.MetaData().Winner).To(Equal(0))
		Expect(builder.Current()).To(BeNil())
	})

	It("decodes training sessions and resets", func() {
		serve(func(enc *Encoder) {
			Expect(enc.TrainingStart(false, 118, 8, 10, "")).To(Succeed())
			f := testFrame(0)
			Expect(enc.FighterState(1, &f)).To(Succeed())
			Expect(enc.TrainingReset()).To(Succeed())
			Expect(enc.FighterState(0, &f)).To(Succeed())
			Expect(enc.TrainingEnd()).To(Succeed())
		})

		var sessions []*session.Session
		builder := &SessionBuilder{OnFinished: func(s *session.Session) { sessions = append(sessions, s) }}
		r.Handler = Handlers{rec, builder}
		Expect(r.Run(context.Background(), app)).To(Succeed())

		started, ok := rec.events[0].(TrainingStarted)
		Expect(ok).To(BeTrue())
		Expect(started.Players).To(Equal([]session.Player{
			{Fighter: 8, Tag: DefaultTrainingTag, Name: DefaultTrainingTag},
			{Fighter: 10, Tag: CPUTag, Name: CPUTag},
		}))
		Expect(rec.events[1]).To(BeAssignableToTypeOf(FighterStateReceived{}))
		Expect(rec.events[1].(FighterStateReceived).PlayerIndex).To(Equal(1))
		Expect(rec.events[2]).To(Equal(TrainingRestarted{}))

		Expect(sessions).To(HaveLen(2))
		Expect(sessions[0].MetaData().Training.SessionNumber).To(Equal(1))
		Expect(sessions[0].FrameCount(1)).To(Equal(1))
		Expect(sessions[1].MetaData().Training.SessionNumber).To(Equal(2))
		Expect(sessions[1].FrameCount(0)).To(Equal(1))
		Expect(sessions[1].MetaData().Winner).To(Equal(session.NoWinner))
	})

	It("drops states of unknown entry IDs", func() {
		serve(func(enc *Encoder) {
			Expect(enc.GameStart(true, 118, []uint8{4}, []session.Player{{Fighter: 8}})).To(Succeed())
			f := testFrame(0)
			Expect(enc.FighterState(9, &f)).To(Succeed())
		})
		Expect(r.Run(context.Background(), app)).To(Succeed())

		Expect(rec.events).To(HaveLen(2))
		Expect(rec.events[0].(GameStarted).Resumed).To(BeTrue())
		Expect(rec.events[1]).To(BeAssignableToTypeOf(ConnectionClosed{}))
	})

	It("reports a message cut short as a closed connection", func() {
		serve(func(enc *Encoder) {
			_, err := device.Write([]byte{byte(FighterState), 0, 0, 0})
			Expect(err).ToNot(HaveOccurred())
		})
		Expect(r.Run(context.Background(), app)).To(Succeed())
		Expect(rec.events).To(HaveLen(1))
		Expect(rec.last()).To(BeAssignableToTypeOf(ConnectionClosed{}))
	})

	DescribeProtocolError := func(desc string, raw []byte, t MessageType) {
		It("rejects "+desc, func() {
			serve(func(*Encoder) {
				_, err := device.Write(raw)
				Expect(err).ToNot(HaveOccurred())
				// Hold the connection open; the receiver must close it.
				_, _ = bufio.NewReader(device).ReadByte()
			})

			err := r.Run(context.Background(), app)
			Expect(err).To(BeAssignableToTypeOf(&ProtocolError{}))
			Expect(err.(*ProtocolError).Type).To(Equal(t))
			Expect(rec.events).To(BeEmpty())
		})
	}
	DescribeProtocolError("unknown message types", []byte{99}, MessageType(99))
	DescribeProtocolError("games without players", []byte{byte(GameStart), 0, 118, 0}, GameStart)
	DescribeProtocolError("games with too many players", []byte{byte(GameStart), 0, 118, 9}, GameStart)
	DescribeProtocolError("unsupported versions", []byte{byte(ProtocolVersion), 2, 0}, ProtocolVersion)

	It("reports Shutdown as cancellation", func() {
		go func() {
			time.Sleep(30 * time.Millisecond)
			r.Shutdown()
		}()
		Expect(r.Run(context.Background(), app)).To(Succeed())
		Expect(rec.events).To(Equal([]Event{Cancelled{}}))

		// The device end observes the orderly shutdown.
		_, err := bufio.NewReader(device).ReadByte()
		Expect(err).To(HaveOccurred())
	})

	It("reports context cancellation as cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		serve(func(enc *Encoder) {
			Expect(enc.GameStart(false, 118, []uint8{0}, []session.Player{{Fighter: 8}})).To(Succeed())
			// Hold the connection open until the receiver closes it.
			_, _ = bufio.NewReader(device).ReadByte()
		})
		r.Handler = HandlerFunc(func(e Event) {
			rec.HandleEvent(e)
			if _, ok := e.(GameStarted); ok {
				cancel()
			}
		})
		Expect(r.Run(ctx, app)).To(Succeed())
		Expect(rec.events).To(HaveLen(2))
		Expect(rec.last()).To(Equal(Cancelled{}))
	})

	It("flags a matching cached mapping as current", func() {
		r.Mapping = testMapping(0xC0FFEE)
		serve(func(enc *Encoder) {
			Expect(enc.MappingChecksum(0xC0FFEE)).To(Succeed())
			Expect(enc.MappingChecksum(0xBEEF)).To(Succeed())
		})
		Expect(r.Run(context.Background(), app)).To(Succeed())
		Expect(rec.events[0]).To(Equal(MappingChecksum{Checksum: 0xC0FFEE, Current: true}))
		Expect(rec.events[1]).To(Equal(MappingChecksum{Checksum: 0xBEEF, Current: false}))
	})
})

var _ = Describe("Encoder", func() {
	It("writes fixed-point fields clamped to their range", func() {
		Expect(fixed(12.5, DamageScale)).To(Equal(uint16(625)))
		Expect(fixed(-1, DamageScale)).To(Equal(uint16(0)))
		Expect(fixed(1e9, ShieldScale)).To(Equal(uint16(math.MaxUint16)))
	})

	It("rejects motion values wider than 40 bits", func() {
		f := testFrame(0)
		f.Motion = 1 << 41
		Expect(NewEncoder(&discard{}).FighterState(0, &f)).ToNot(Succeed())
	})
})

type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }

var _ = Describe("Client", func() {
	var device, app net.Conn

	BeforeEach(func() { device, app = loopback() })
	AfterEach(func() {
		device.Close()
		app.Close()
	})

	// emulate answers client requests like a device holding info, recording
	// the requests it saw. It stops after the resume requests.
	emulate := func(info *mapping.Info, seen chan<- MessageType) {
		go func() {
			defer GinkgoRecover()
			defer close(seen)
			defer device.Close()

			enc := NewEncoder(device)
			rd := bufio.NewReader(device)
			for {
				req, err := ReadRequest(rd)
				if err != nil {
					return
				}
				seen <- req.Type

				switch req.Type {
				case ProtocolVersion:
					Expect(enc.Version(req.Major, req.Minor)).To(Succeed())
				case MappingInfoChecksum:
					Expect(enc.MappingChecksum(info.Checksum)).To(Succeed())
				case MappingInfoRequest:
					Expect(enc.MappingInfo(info)).To(Succeed())
				case TrainingResume:
					Expect(enc.GameStart(true, 118, []uint8{0}, []session.Player{{Fighter: 8}})).To(Succeed())
					return
				}
			}
		}()
	}

	collect := func(seen <-chan MessageType) (types []MessageType) {
		for t := range seen {
			types = append(types, t)
		}
		return
	}

	run := func(c *Client) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		v, err := c.Handshake(ctx, app)
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(VersionAnnounced{Major: VersionMajor, Minor: VersionMinor}))
		Expect(c.NegotiateMapping()).To(Succeed())
		Expect(c.Run(ctx)).To(Succeed())
	}

	It("requests the mapping tables when they are not cached", func() {
		seen := make(chan MessageType, 16)
		emulate(testMapping(0xC0FFEE), seen)

		rec := &recorder{}
		run(&Client{Handler: rec})

		Expect(collect(seen)).To(Equal([]MessageType{
			ProtocolVersion, MappingInfoChecksum, MappingInfoRequest, GameResume, TrainingResume,
		}))
		var started *GameStarted
		for _, e := range rec.events {
			if gs, ok := e.(GameStarted); ok {
				started = &gs
			}
		}
		Expect(started).ToNot(BeNil())
		Expect(started.Mapping.Equal(testMapping(0))).To(BeTrue())
	})

	It("skips the mapping tables when the cache is current", func() {
		seen := make(chan MessageType, 16)
		emulate(testMapping(0xC0FFEE), seen)

		run(&Client{Mapping: testMapping(0xC0FFEE)})
		Expect(collect(seen)).To(Equal([]MessageType{
			ProtocolVersion, MappingInfoChecksum, GameResume, TrainingResume,
		}))
	})

	It("rejects a device with another protocol version", func() {
		go func() {
			defer GinkgoRecover()
			_, err := ReadRequest(bufio.NewReader(device))
			Expect(err).ToNot(HaveOccurred())
			Expect(NewEncoder(device).Version(2, 0)).To(Succeed())
		}()

		_, err := (&Client{}).Handshake(context.Background(), app)
		Expect(err).To(BeAssignableToTypeOf(&ProtocolError{}))
	})
})
