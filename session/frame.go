// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package session

import (
	"fmt"
	"time"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
)

// FramesPerSecond is the game's fixed simulation rate.
const FramesPerSecond = 60

// StatusStandby is the status of a fighter waiting off-stage to respawn.
const StatusStandby mapping.StatusID = 470

// Motion is a 40-bit motion hash. The upper 8 bits are the length of the
// hashed motion name and the lower 32 bits are its CRC32.
type Motion uint64

// MotionMask covers the valid bits of a Motion.
const MotionMask Motion = 0xFF_FFFF_FFFF

// MotionFromParts assembles a Motion from its length and CRC parts.
func MotionFromParts(high uint8, low uint32) Motion {
	return Motion(high)<<32 | Motion(low)
}

// High returns the length part of m.
func (m Motion) High() uint8 { return uint8(m >> 32) }

// Low returns the CRC part of m.
func (m Motion) Low() uint32 { return uint32(m) }

func (m Motion) String() string { return fmt.Sprintf("0x%010x", uint64(m)) }

// Flags is a set of per-frame fighter flags.
type Flags uint8

// Per-frame fighter flags.
const (
	AttackConnected  Flags = 0x01
	FacingDirection  Flags = 0x02
	OpponentInHitlag Flags = 0x04
)

// MakeFlags builds Flags from its components.
func MakeFlags(attackConnected, facingDirection, opponentInHitlag bool) Flags {
	var f Flags
	if attackConnected {
		f |= AttackConnected
	}
	if facingDirection {
		f |= FacingDirection
	}
	if opponentInHitlag {
		f |= OpponentInHitlag
	}
	return f
}

// AttackConnected returns true if the fighter's attack connected this frame.
func (f Flags) AttackConnected() bool { return f&AttackConnected != 0 }

// FacingDirection returns the fighter's facing direction bit.
func (f Flags) FacingDirection() bool { return f&FacingDirection != 0 }

// OpponentInHitlag returns true if the opponent is in hitlag.
func (f Flags) OpponentInHitlag() bool { return f&OpponentInHitlag != 0 }

// Frame is one fighter's state sample.
type Frame struct {
	// Timestamp is the time of the sample in milliseconds since the Unix
	// epoch.
	//
	// Replays written before per-frame timestamps existed have their
	// timestamps reconstructed from the session start time at a nominal 60
	// frames per second. Those values are an approximation that does not
	// account for pauses or lag.
	Timestamp uint64
	// Index is the frame number.
	Index uint32

	PosX    float32
	PosY    float32
	Damage  float32
	Hitstun float32
	Shield  float32

	Status    mapping.StatusID
	Motion    Motion
	HitStatus mapping.HitStatusID
	Stocks    uint8
	Flags     Flags
}

// SameState returns true if f and o describe the same fighter state,
// ignoring their position in time.
func (f *Frame) SameState(o *Frame) bool {
	a, b := *f, *o
	a.Timestamp, a.Index = 0, 0
	b.Timestamp, b.Index = 0, 0
	return a == b
}

// Time returns the frame's timestamp as a time.Time.
func (f *Frame) Time() time.Time { return TimeFromMillis(f.Timestamp) }

// TimeFromMillis converts milliseconds since the Unix epoch to a time.Time.
// Zero maps to the zero time.
func TimeFromMillis(ms uint64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// MillisFromTime converts t to milliseconds since the Unix epoch. The zero
// time maps to zero.
func MillisFromTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}

// FrameOffsetMillis returns the nominal duration of n frames in milliseconds.
func FrameOffsetMillis(n uint64) uint64 { return n * 1000 / FramesPerSecond }
