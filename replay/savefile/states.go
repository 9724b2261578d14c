// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package savefile

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/byteslicereader"
)

// MaxPlayerFrames bounds the number of frames a single player's states may
// expand to.
const MaxPlayerFrames = 1 << 24

// legacyShield is the shield value of versions that did not store it.
const legacyShield = 50

// recordLayout is the binary layout of one player-state record. Every layout
// starts with an optional u64 timestamp followed by a u32 frameEnd; fields
// holds the remainder.
type recordLayout struct {
	little     bool
	timestamps bool
	// size is the full record size in bytes.
	size int

	read  func(r *byteslicereader.R, f *session.Frame) error
	write func(b []byte, f *session.Frame) []byte
}

var (
	layoutV1_0 = recordLayout{
		size: 15,
		read: func(r *byteslicereader.R, f *session.Frame) error {
			f.Status = mapping.StatusID(r.BU16())
			f.Damage = float32(r.BF64())
			f.Stocks = r.U8()
			f.Shield = legacyShield
			return nil
		},
		write: func(b []byte, f *session.Frame) []byte {
			b = binary.BigEndian.AppendUint16(b, uint16(f.Status))
			b = binary.BigEndian.AppendUint64(b, math.Float64bits(float64(f.Damage)))
			return append(b, f.Stocks)
		},
	}

	layoutV1_2 = recordLayout{
		size: 57,
		read: func(r *byteslicereader.R, f *session.Frame) error {
			f.PosX = float32(r.BF64())
			f.PosY = float32(r.BF64())
			f.Damage = float32(r.BF64())
			f.Hitstun = float32(r.BF64())
			f.Shield = float32(r.BF64())
			f.Status = mapping.StatusID(r.BU16())
			motion := r.BU64()
			f.HitStatus = mapping.HitStatusID(r.U8())
			f.Stocks = r.U8()
			f.Flags = session.Flags(r.U8()) &^ session.OpponentInHitlag

			if !byteslicereader.Fits40(motion) {
				return malformed("motion 0x%x does not fit in 40 bits", motion)
			}
			f.Motion = session.Motion(motion)
			return nil
		},
		write: func(b []byte, f *session.Frame) []byte {
			for _, v := range []float32{f.PosX, f.PosY, f.Damage, f.Hitstun, f.Shield} {
				b = binary.BigEndian.AppendUint64(b, math.Float64bits(float64(v)))
			}
			b = binary.BigEndian.AppendUint16(b, uint16(f.Status))
			b = binary.BigEndian.AppendUint64(b, uint64(f.Motion&session.MotionMask))
			return append(b, uint8(f.HitStatus), f.Stocks, uint8(f.Flags&^session.OpponentInHitlag))
		},
	}

	layoutV1_3 = recordLayout{
		little: true,
		size:   34,
		read:   readFieldsV1_3,
		write:  writeFieldsV1_3,
	}

	layoutV1_4 = recordLayout{
		little:     true,
		timestamps: true,
		size:       42,
		read:       readFieldsV1_3,
		write:      writeFieldsV1_3,
	}
)

func readFieldsV1_3(r *byteslicereader.R, f *session.Frame) error {
	f.PosX = r.LF32()
	f.PosY = r.LF32()
	f.Damage = r.LF32()
	f.Hitstun = r.LF32()
	f.Shield = r.LF32()
	f.Status = mapping.StatusID(r.LU16())
	low := r.LU32()
	high := r.U8()
	f.Motion = session.MotionFromParts(high, low)
	f.HitStatus = mapping.HitStatusID(r.U8())
	f.Stocks = r.U8()
	f.Flags = session.Flags(r.U8())
	return nil
}

func writeFieldsV1_3(b []byte, f *session.Frame) []byte {
	for _, v := range []float32{f.PosX, f.PosY, f.Damage, f.Hitstun, f.Shield} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	b = binary.LittleEndian.AppendUint16(b, uint16(f.Status))
	b = binary.LittleEndian.AppendUint32(b, f.Motion.Low())
	return append(b, f.Motion.High(), uint8(f.HitStatus), f.Stocks, uint8(f.Flags))
}

func layoutOf(v Version) recordLayout {
	switch {
	case v <= V1_1:
		return layoutV1_0
	case v == V1_2:
		return layoutV1_2
	case v == V1_3:
		return layoutV1_3
	default:
		return layoutV1_4
	}
}

func (l *recordLayout) u32(r *byteslicereader.R) uint32 {
	if l.little {
		return r.LU32()
	}
	return r.BU32()
}

func (l *recordLayout) appendU32(b []byte, v uint32) []byte {
	if l.little {
		return binary.LittleEndian.AppendUint32(b, v)
	}
	return binary.BigEndian.AppendUint32(b, v)
}

// decodeBase64 decodes the "playerstates" text. Writers used URL-safe
// base64 without padding; the standard alphabet and padding are tolerated.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, malformed("player states are not valid base64")
}

func encodeBase64(data []byte) string { return base64.RawURLEncoding.EncodeToString(data) }

// satSub returns a-b, or 0 if b > a.
func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// decodeStates expands the run-length encoded records of players players.
//
// Each record's state fills frames [elapsed, frameEnd), and frame k is given
// index first+k. Without stored timestamps, frame k is stamped start + k/60s.
// With them, frames of a run are back-dated from the record's timestamp.
// Players are padded to the longest player's length with copies of their
// last frame.
func decodeStates(blob []byte, l recordLayout, players int, start uint64, first uint32) ([][]session.Frame, error) {
	r := byteslicereader.New(blob)
	out := make([][]session.Frame, players)

	for p := range out {
		count := l.u32(r)
		if err := r.Err(); err != nil {
			return nil, errors.Wrapf(ErrMalformedInput, "player %d: %s", p, err)
		}
		if count == 0 {
			return nil, malformed("player %d: no states", p)
		}
		if uint64(count)*uint64(l.size) > uint64(r.Remaining()) {
			return nil, malformed("player %d: %d states need %d bytes, have %d",
				p, count, uint64(count)*uint64(l.size), r.Remaining())
		}

		frames := make([]session.Frame, 0, count)
		var elapsed uint64
		for i := uint32(0); i < count; i++ {
			var ts uint64
			if l.timestamps {
				ts = r.LU64()
			}
			end := uint64(l.u32(r))
			var f session.Frame
			if err := l.read(r, &f); err != nil {
				return nil, errors.Wrapf(err, "player %d state %d", p, i)
			}
			if err := r.Err(); err != nil {
				return nil, errors.Wrapf(ErrMalformedInput, "player %d state %d: %s", p, i, err)
			}
			if end == 0 {
				return nil, malformed("player %d state %d: frame 0 is not a valid run end", p, i)
			}

			// A run end that does not advance is a discontinuity in the
			// recording. Its state is kept as a single frame.
			if end <= elapsed {
				end = elapsed + 1
			}
			if end > MaxPlayerFrames {
				return nil, malformed("player %d state %d: run end %d exceeds %d frames", p, i, end, MaxPlayerFrames)
			}

			for k := elapsed; k < end; k++ {
				g := f
				g.Index = first + uint32(k)
				if l.timestamps {
					g.Timestamp = satSub(ts, session.FrameOffsetMillis(end-1-k))
				} else {
					g.Timestamp = start + session.FrameOffsetMillis(k)
				}
				frames = append(frames, g)
			}
			elapsed = end
		}
		out[p] = frames
	}

	if r.Remaining() != 0 {
		return nil, malformed("%d trailing bytes after player states", r.Remaining())
	}
	padFrames(out)
	return out, nil
}

// padFrames extends every sequence to the length of the longest by repeating
// its last frame.
func padFrames(frames [][]session.Frame) {
	longest := 0
	for _, seq := range frames {
		if len(seq) > longest {
			longest = len(seq)
		}
	}
	for p, seq := range frames {
		for len(seq) < longest {
			seq = append(seq, seq[len(seq)-1])
		}
		frames[p] = seq
	}
}

// firstIndex returns the index of player 0's first frame, which encoded run
// ends are relative to.
func firstIndex(frames [][]session.Frame) uint32 {
	if len(frames) == 0 || len(frames[0]) == 0 {
		return 0
	}
	return frames[0][0].Index
}

// run is a span [first, last] of frames encoded as one record.
type run struct{ first, last int }

// runsOf groups identical consecutive states. With timestamps, a run is
// only extended while every member's timestamp can be reconstructed from the
// last member's.
func runsOf(seq []session.Frame, timestamps bool) []run {
	var runs []run
	for i := 0; i < len(seq); {
		j := i
		for j+1 < len(seq) && seq[j+1].SameState(&seq[i]) && (!timestamps || backDated(seq[i:j+2])) {
			j++
		}
		runs = append(runs, run{i, j})
		i = j + 1
	}
	return runs
}

func backDated(frames []session.Frame) bool {
	last := frames[len(frames)-1].Timestamp
	for m := range frames {
		if frames[m].Timestamp != satSub(last, session.FrameOffsetMillis(uint64(len(frames)-1-m))) {
			return false
		}
	}
	return true
}

func encodeStates(frames [][]session.Frame, l recordLayout) ([]byte, error) {
	var b []byte
	for p, seq := range frames {
		if len(seq) == 0 {
			return nil, errors.Errorf("player %d has no frames", p)
		}
		if len(seq) > MaxPlayerFrames {
			return nil, errors.Errorf("player %d has %d frames, more than %d", p, len(seq), MaxPlayerFrames)
		}

		runs := runsOf(seq, l.timestamps)
		b = l.appendU32(b, uint32(len(runs)))
		for _, rn := range runs {
			if l.timestamps {
				b = binary.LittleEndian.AppendUint64(b, seq[rn.last].Timestamp)
			}
			b = l.appendU32(b, uint32(rn.last+1))
			b = l.write(b, &seq[rn.first])
		}
	}
	return b, nil
}

// FrameRecordSize is the size of one record written by AppendFrameRecord.
const FrameRecordSize = 42

// AppendFrameRecord appends f to b in the 1.4 record layout, with the frame
// index in place of the run end.
func AppendFrameRecord(b []byte, f *session.Frame) []byte {
	b = binary.LittleEndian.AppendUint64(b, f.Timestamp)
	b = binary.LittleEndian.AppendUint32(b, f.Index)
	return writeFieldsV1_3(b, f)
}

// ReadFrameRecord reads a record written by AppendFrameRecord.
func ReadFrameRecord(r *byteslicereader.R) (session.Frame, error) {
	var f session.Frame
	f.Timestamp = r.LU64()
	f.Index = r.LU32()
	if err := readFieldsV1_3(r, &f); err != nil {
		return session.Frame{}, err
	}
	if err := r.Err(); err != nil {
		return session.Frame{}, errors.Wrapf(ErrMalformedInput, "frame record: %s", err)
	}
	return f, nil
}
