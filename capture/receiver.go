// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/byteslicereader"
	"github.com/reframedultimate/ReFramed-sub002/support/dataio"
	"github.com/reframedultimate/ReFramed-sub002/support/fmtutil"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
	"github.com/reframedultimate/ReFramed-sub002/support/network"
)

// DefaultPollInterval is the default Receiver.PollInterval.
const DefaultPollInterval = 100 * time.Millisecond

// Receiver decodes the stream of one capture connection into events.
//
// Receiver is not safe for concurrent use, except for Shutdown.
type Receiver struct {
	// Logger, if not nil, is the logger to use.
	Logger logging.L

	// Handler, if not nil, receives every decoded event. It is called on the
	// receiving goroutine.
	Handler Handler

	// Mapping, if not nil, seeds the mapping tables, typically with a cached
	// copy from an earlier connection. The receiver takes ownership of it.
	Mapping *mapping.Info

	// NowFunc, if not nil, returns the time attached to fighter states. If
	// nil, time.Now is used.
	NowFunc func() time.Time

	// PollInterval bounds how long a Shutdown waits while the receiver is
	// idle between messages. If zero, DefaultPollInterval is used.
	PollInterval time.Duration

	shutdown atomic.Bool

	logger   logging.L
	conn     net.Conn
	rd       *bufio.Reader
	info     *mapping.Info
	entryIDs []uint8
	state    [FighterStateSize]byte
}

// Shutdown asks a running receiver to stop at the next message boundary. A
// message already being read is completed first. Shutdown is safe to call
// from any goroutine.
func (r *Receiver) Shutdown() { r.shutdown.Store(true) }

func (r *Receiver) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc()
	}
	return time.Now()
}

func (r *Receiver) emit(e Event) {
	if r.Handler != nil {
		r.Handler.HandleEvent(e)
	}
}

// MappingInfo returns the receiver's current mapping tables.
func (r *Receiver) MappingInfo() *mapping.Info { return r.info }

// Run decodes conn until the peer hangs up, the receiver is shut down, ctx
// is cancelled, or the stream violates the protocol. It takes ownership of
// conn and closes it before returning.
//
// A hangup or cut-short message emits ConnectionClosed and a shutdown emits
// Cancelled; Run returns nil for both. Protocol violations are returned as a
// *ProtocolError.
func (r *Receiver) Run(ctx context.Context, conn net.Conn) error {
	r.logger = logging.Must(r.Logger)
	r.conn = conn
	r.rd = bufio.NewReader(countingReader{conn})
	r.info = r.Mapping
	if r.info == nil {
		r.info = mapping.NewInfo(0)
	}
	r.entryIDs = nil

	connectionsActive.Inc()
	defer connectionsActive.Dec()

	stop := context.AfterFunc(ctx, r.Shutdown)
	defer stop()

	r.logger.Infof("Receiving capture stream from %s.", conn.RemoteAddr())
	for {
		if r.shutdown.Load() {
			r.logger.Infof("Capture from %s cancelled.", conn.RemoteAddr())
			r.close()
			r.emit(Cancelled{})
			return nil
		}

		t, err := r.readType()
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			continue
		case err != nil:
			r.logger.Infof("Capture connection from %s closed: %s", conn.RemoteAddr(), err)
			r.close()
			r.emit(ConnectionClosed{Err: err})
			return nil
		}

		if err := r.handle(t); err != nil {
			r.close()

			var pe *ProtocolError
			if errors.As(err, &pe) {
				protocolErrors.Inc()
				r.logger.Errorf("Closing capture connection from %s: %s", conn.RemoteAddr(), pe)
				return pe
			}
			r.logger.Infof("Capture connection from %s closed mid-message: %s", conn.RemoteAddr(), err)
			r.emit(ConnectionClosed{Err: err})
			return nil
		}
	}
}

func (r *Receiver) close() {
	if err := network.CloseWrite(r.conn); err != nil {
		r.logger.Debugf("Failed to shut down capture connection: %s", err)
	}
	if err := r.conn.Close(); err != nil {
		r.logger.Debugf("Failed to close capture connection: %s", err)
	}
}

// readType reads the next message type. Only this wait is bounded by a
// deadline, so Shutdown interrupts an idle stream but never a message.
func (r *Receiver) readType() (MessageType, error) {
	if r.rd.Buffered() == 0 {
		interval := r.PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(interval)); err != nil {
			return 0, err
		}
		defer func() { _ = r.conn.SetReadDeadline(time.Time{}) }()
	}

	b, err := r.rd.ReadByte()
	return MessageType(b), err
}

func (r *Receiver) unpack(v interface{}) error {
	if err := struc.Unpack(r.rd, v); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func (r *Receiver) readString() (string, error) {
	s, err := dataio.ReadString8(r.rd)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return s, err
}

func (r *Receiver) handle(t MessageType) error {
	if !t.Valid() {
		return protocolErrorf(t, "unknown message type")
	}
	messagesReceived.WithLabelValues(t.String()).Inc()

	switch t {
	case ProtocolVersion:
		var rec versionRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		if rec.Major != VersionMajor || rec.Minor != VersionMinor {
			return protocolErrorf(t, "unsupported version %d.%d", rec.Major, rec.Minor)
		}
		r.emit(VersionAnnounced{Major: rec.Major, Minor: rec.Minor})

	case MappingInfoChecksum:
		var rec checksumRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		current := r.info.Checksum == rec.Checksum && r.info.Fighter.Len() > 0
		r.logger.Debugf("Device mapping checksum 0x%08x, ours 0x%08x.", rec.Checksum, r.info.Checksum)
		r.emit(MappingChecksum{Checksum: rec.Checksum, Current: current})

	case MappingInfoRequest:
		var rec checksumRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		r.info = mapping.NewInfo(rec.Checksum)
		r.emit(MappingStarted{Checksum: rec.Checksum})

	case FighterKind:
		var rec fighterKindRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		name, err := r.readString()
		if err != nil {
			return err
		}
		r.info.Fighter.Add(mapping.FighterID(rec.Fighter), name)
		r.emit(MappingEntry{Type: t, ID: uint16(rec.Fighter), Name: name})

	case FighterStatusKind:
		var rec statusKindRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		name, err := r.readString()
		if err != nil {
			return err
		}
		fighter := mapping.FighterID(rec.Fighter)
		if fighter == mapping.BaseStatusFighter {
			r.info.Status.AddBase(mapping.StatusID(rec.Status), name)
		} else {
			r.info.Status.AddSpecific(fighter, mapping.StatusID(rec.Status), name)
		}
		r.emit(MappingEntry{Type: t, Fighter: fighter, ID: rec.Status, Name: name})

	case StageKind:
		var rec stageKindRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		name, err := r.readString()
		if err != nil {
			return err
		}
		r.info.Stage.Add(mapping.StageID(rec.Stage), name)
		r.emit(MappingEntry{Type: t, ID: rec.Stage, Name: name})

	case HitStatusKind:
		var rec hitStatusKindRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		name, err := r.readString()
		if err != nil {
			return err
		}
		r.info.HitStatus.Add(mapping.HitStatusID(rec.HitStatus), name)
		r.emit(MappingEntry{Type: t, ID: uint16(rec.HitStatus), Name: name})

	case MappingInfoRequestComplete:
		r.logger.Infof("Received mapping info with checksum 0x%08x.", r.info.Checksum)
		r.emit(MappingComplete{Mapping: r.info})

	case GameStart, GameResume:
		return r.handleGameStart(t)

	case GameEnd:
		r.emit(GameEnded{})

	case TrainingStart, TrainingResume:
		var rec trainingStartRecord
		if err := r.unpack(&rec); err != nil {
			return err
		}
		tag, err := r.readString()
		if err != nil {
			return err
		}
		if tag == "" {
			tag = DefaultTrainingTag
		}
		r.entryIDs = []uint8{0, 1}
		r.emit(TrainingStarted{
			Resumed: t == TrainingResume,
			Stage:   mapping.StageID(rec.Stage),
			Players: []session.Player{
				{Fighter: mapping.FighterID(rec.Fighter), Tag: tag, Name: tag},
				{Fighter: mapping.FighterID(rec.CPU), Tag: CPUTag, Name: CPUTag},
			},
			Mapping: r.info,
		})

	case TrainingReset:
		r.emit(TrainingRestarted{})

	case TrainingEnd:
		r.emit(TrainingEnded{})

	case FighterState:
		return r.handleFighterState()
	}
	return nil
}

func (r *Receiver) handleGameStart(t MessageType) error {
	var rec gameStartRecord
	if err := r.unpack(&rec); err != nil {
		return err
	}
	if rec.Count == 0 || rec.Count > MaxPlayers {
		return protocolErrorf(t, "player count %d outside [1, %d]", rec.Count, MaxPlayers)
	}

	ids := make([]byte, 2*int(rec.Count))
	if err := dataio.ReadFull(r.rd, ids); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	entryIDs, fighters := ids[:rec.Count], ids[rec.Count:]

	players := make([]session.Player, rec.Count)
	for i := range players {
		tag, err := r.readString()
		if err != nil {
			return err
		}
		players[i] = session.Player{Fighter: mapping.FighterID(fighters[i]), Tag: tag, Name: tag}
	}

	r.entryIDs = entryIDs
	r.emit(GameStarted{
		Resumed:  t == GameResume,
		Stage:    mapping.StageID(rec.Stage),
		EntryIDs: append([]uint8(nil), entryIDs...),
		Players:  players,
		Mapping:  r.info,
	})
	return nil
}

func (r *Receiver) handleFighterState() error {
	// Stamp the state before blocking on its payload.
	ts := session.MillisFromTime(r.now())

	if err := dataio.ReadFull(r.rd, r.state[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	entryID, f, err := DecodeFighterState(r.state[:], ts)
	if err != nil {
		return err
	}

	for i, id := range r.entryIDs {
		if id == entryID {
			r.emit(FighterStateReceived{PlayerIndex: i, EntryID: entryID, Frame: f})
			return nil
		}
	}
	statesDropped.Inc()
	r.logger.Debugf("Dropping state of unknown entry ID %d (frame %d): %s", entryID, f.Index, fmtutil.HexSlice(r.state[:]))
	return nil
}

// DecodeFighterState decodes a FighterState payload, attaching timestamp to
// the frame.
func DecodeFighterState(payload []byte, timestamp uint64) (entryID uint8, f session.Frame, err error) {
	if len(payload) != FighterStateSize {
		return 0, session.Frame{}, errors.Errorf("fighter state is %d bytes, expected %d", len(payload), FighterStateSize)
	}

	br := byteslicereader.New(payload)
	f.Timestamp = timestamp
	f.Index = br.BU32()
	entryID = br.U8()
	f.PosX = br.BF32()
	f.PosY = br.BF32()
	f.Damage = float32(br.BU16()) / DamageScale
	f.Hitstun = float32(br.BU16()) / HitstunScale
	f.Shield = float32(br.BU16()) / ShieldScale
	f.Status = mapping.StatusID(br.BU16())
	f.Motion = session.Motion(br.BU40())
	f.HitStatus = mapping.HitStatusID(br.U8())
	f.Stocks = br.U8()
	f.Flags = session.Flags(br.U8())
	return entryID, f, br.Err()
}

type countingReader struct {
	r io.Reader
}

func (cr countingReader) Read(b []byte) (int, error) {
	n, err := cr.r.Read(b)
	bytesReceived.Add(float64(n))
	return n, err
}
