// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"bytes"
	"io"
	"math"
	"sync"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/dataio"
)

// Encoder writes device-side capture messages to a stream. It emulates a
// capture device, and is safe for concurrent use.
//
// Each message is written with a single Write call.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// message is one message being assembled.
type message struct {
	buf []byte
	err error
}

func (m *message) pack(rec interface{}) {
	if m.err != nil {
		return
	}
	var b bytes.Buffer
	if m.err = struc.Pack(&b, rec); m.err == nil {
		m.buf = append(m.buf, b.Bytes()...)
	}
}

func (m *message) str(s string) {
	if m.err == nil {
		m.buf, m.err = dataio.AppendString8(m.buf, s)
	}
}

func (e *Encoder) send(t MessageType, build func(m *message)) error {
	m := message{buf: []byte{byte(t)}}
	if build != nil {
		build(&m)
	}
	if m.err != nil {
		return errors.Wrapf(m.err, "encoding %s", t)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(m.buf); err != nil {
		return errors.Wrapf(err, "writing %s", t)
	}
	return nil
}

// Version announces the protocol version.
func (e *Encoder) Version(major, minor uint8) error {
	return e.send(ProtocolVersion, func(m *message) {
		m.pack(&versionRecord{Major: major, Minor: minor})
	})
}

// MappingChecksum announces the checksum of the device's mapping tables.
func (e *Encoder) MappingChecksum(checksum uint32) error {
	return e.send(MappingInfoChecksum, func(m *message) {
		m.pack(&checksumRecord{Checksum: checksum})
	})
}

// MappingInfo sends every entry of info, framed by MappingInfoRequest and
// MappingInfoRequestComplete.
func (e *Encoder) MappingInfo(info *mapping.Info) error {
	if err := e.send(MappingInfoRequest, func(m *message) {
		m.pack(&checksumRecord{Checksum: info.Checksum})
	}); err != nil {
		return err
	}

	var err error
	info.Fighter.Range(func(id mapping.FighterID, name string) bool {
		err = e.FighterKind(id, name)
		return err == nil
	})
	if err != nil {
		return err
	}
	info.Stage.Range(func(id mapping.StageID, name string) bool {
		err = e.StageKind(id, name)
		return err == nil
	})
	if err != nil {
		return err
	}
	info.HitStatus.Range(func(id mapping.HitStatusID, name string) bool {
		err = e.HitStatusKind(id, name)
		return err == nil
	})
	if err != nil {
		return err
	}
	info.Status.Base().Range(func(id mapping.StatusID, name string) bool {
		err = e.FighterStatusKind(mapping.BaseStatusFighter, id, name)
		return err == nil
	})
	if err != nil {
		return err
	}
	for _, fighter := range info.Status.SpecificFighters() {
		info.Status.RangeSpecific(fighter, func(id mapping.StatusID, name string) bool {
			err = e.FighterStatusKind(fighter, id, name)
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	return e.send(MappingInfoRequestComplete, nil)
}

// FighterKind announces one fighter.
func (e *Encoder) FighterKind(id mapping.FighterID, name string) error {
	return e.send(FighterKind, func(m *message) {
		m.pack(&fighterKindRecord{Fighter: uint8(id)})
		m.str(name)
	})
}

// FighterStatusKind announces one fighter status. A fighter of
// mapping.BaseStatusFighter announces a base status.
func (e *Encoder) FighterStatusKind(fighter mapping.FighterID, status mapping.StatusID, name string) error {
	return e.send(FighterStatusKind, func(m *message) {
		m.pack(&statusKindRecord{Fighter: uint8(fighter), Status: uint16(status)})
		m.str(name)
	})
}

// StageKind announces one stage.
func (e *Encoder) StageKind(id mapping.StageID, name string) error {
	return e.send(StageKind, func(m *message) {
		m.pack(&stageKindRecord{Stage: uint16(id)})
		m.str(name)
	})
}

// HitStatusKind announces one hit status.
func (e *Encoder) HitStatusKind(id mapping.HitStatusID, name string) error {
	return e.send(HitStatusKind, func(m *message) {
		m.pack(&hitStatusKindRecord{HitStatus: uint8(id)})
		m.str(name)
	})
}

// GameStart announces a game. Each player's Tag is sent. If resumed is true,
// GameResume is sent instead of GameStart.
func (e *Encoder) GameStart(resumed bool, stage mapping.StageID, entryIDs []uint8, players []session.Player) error {
	if len(players) == 0 || len(players) > MaxPlayers {
		return errors.Errorf("player count %d outside [1, %d]", len(players), MaxPlayers)
	}
	if len(entryIDs) != len(players) {
		return errors.Errorf("%d entry IDs for %d players", len(entryIDs), len(players))
	}

	t := GameStart
	if resumed {
		t = GameResume
	}
	return e.send(t, func(m *message) {
		m.pack(&gameStartRecord{Stage: uint16(stage), Count: uint8(len(players))})
		m.buf = append(m.buf, entryIDs...)
		for _, p := range players {
			m.buf = append(m.buf, byte(p.Fighter))
		}
		for _, p := range players {
			m.str(p.Tag)
		}
	})
}

// GameEnd announces the end of a game.
func (e *Encoder) GameEnd() error { return e.send(GameEnd, nil) }

// TrainingStart announces a training session. If resumed is true,
// TrainingResume is sent instead of TrainingStart.
func (e *Encoder) TrainingStart(resumed bool, stage mapping.StageID, fighter, cpu mapping.FighterID, tag string) error {
	t := TrainingStart
	if resumed {
		t = TrainingResume
	}
	return e.send(t, func(m *message) {
		m.pack(&trainingStartRecord{Stage: uint16(stage), Fighter: uint8(fighter), CPU: uint8(cpu)})
		m.str(tag)
	})
}

// TrainingReset announces a training session reset.
func (e *Encoder) TrainingReset() error { return e.send(TrainingReset, nil) }

// TrainingEnd announces the end of a training session.
func (e *Encoder) TrainingEnd() error { return e.send(TrainingEnd, nil) }

// FighterState sends one fighter's state. The frame's timestamp is not part
// of the message.
func (e *Encoder) FighterState(entryID uint8, f *session.Frame) error {
	if f.Motion&^session.MotionMask != 0 {
		return errors.Errorf("motion %s does not fit in 40 bits", f.Motion)
	}

	rec := fighterStateRecord{
		Frame:     f.Index,
		EntryID:   entryID,
		PosX:      math.Float32bits(f.PosX),
		PosY:      math.Float32bits(f.PosY),
		Damage:    fixed(f.Damage, DamageScale),
		Hitstun:   fixed(f.Hitstun, HitstunScale),
		Shield:    fixed(f.Shield, ShieldScale),
		Status:    uint16(f.Status),
		HitStatus: uint8(f.HitStatus),
		Stocks:    f.Stocks,
		Flags:     uint8(f.Flags),
	}
	motion := uint64(f.Motion)
	for i := len(rec.Motion) - 1; i >= 0; i-- {
		rec.Motion[i] = byte(motion)
		motion >>= 8
	}

	return e.send(FighterState, func(m *message) { m.pack(&rec) })
}

// fixed converts v to a fixed-point value with the given divisor, clamping
// to the u16 range.
func fixed(v float32, scale float64) uint16 {
	switch x := math.Round(float64(v) * scale); {
	case x <= 0 || math.IsNaN(x):
		return 0
	case x >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(x)
	}
}
