// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package capture decodes the live stream sent by the in-game capture
// device and encodes it for emulation.
//
// The stream is a sequence of messages, each a one-byte MessageType followed
// by a type-specific payload. Multi-byte fields are big-endian. Strings are
// prefixed by a one-byte length.
package capture

import (
	"fmt"
)

// MessageType identifies a message.
type MessageType uint8

// Message types.
const (
	ProtocolVersion MessageType = iota
	MappingInfoChecksum
	MappingInfoRequest
	FighterKind
	FighterStatusKind
	StageKind
	HitStatusKind
	MappingInfoRequestComplete
	GameStart
	GameResume
	GameEnd
	TrainingStart
	TrainingResume
	TrainingReset
	TrainingEnd
	FighterState

	messageTypeCount
)

var messageTypeNames = [messageTypeCount]string{
	ProtocolVersion:            "ProtocolVersion",
	MappingInfoChecksum:        "MappingInfoChecksum",
	MappingInfoRequest:         "MappingInfoRequest",
	FighterKind:                "FighterKind",
	FighterStatusKind:          "FighterStatusKind",
	StageKind:                  "StageKind",
	HitStatusKind:              "HitStatusKind",
	MappingInfoRequestComplete: "MappingInfoRequestComplete",
	GameStart:                  "GameStart",
	GameResume:                 "GameResume",
	GameEnd:                    "GameEnd",
	TrainingStart:              "TrainingStart",
	TrainingResume:             "TrainingResume",
	TrainingReset:              "TrainingReset",
	TrainingEnd:                "TrainingEnd",
	FighterState:               "FighterState",
}

func (t MessageType) String() string {
	if t < messageTypeCount {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Valid returns true if t is a known message type.
func (t MessageType) Valid() bool { return t < messageTypeCount }

// The protocol version this package speaks.
const (
	VersionMajor = 1
	VersionMinor = 0
)

// MaxPlayers is the largest player count a game may announce.
const MaxPlayers = 8

// FighterStateSize is the payload size of a FighterState message.
const FighterStateSize = 29

// Fixed-point divisors of the FighterState damage, hitstun and shield
// fields.
const (
	DamageScale  = 50
	HitstunScale = 100
	ShieldScale  = 200
)

// Tags assigned to training participants.
const (
	DefaultTrainingTag = "Player 1"
	CPUTag             = "CPU"
)

// Fixed payload layouts. Fields are big-endian.
type (
	versionRecord struct {
		Major uint8
		Minor uint8
	}

	checksumRecord struct {
		Checksum uint32
	}

	fighterKindRecord struct {
		Fighter uint8
	}

	statusKindRecord struct {
		Fighter uint8
		Status  uint16
	}

	stageKindRecord struct {
		Stage uint16
	}

	hitStatusKindRecord struct {
		HitStatus uint8
	}

	gameStartRecord struct {
		Stage uint16
		Count uint8
	}

	trainingStartRecord struct {
		Stage   uint16
		Fighter uint8
		CPU     uint8
	}

	fighterStateRecord struct {
		Frame     uint32
		EntryID   uint8
		PosX      uint32
		PosY      uint32
		Damage    uint16
		Hitstun   uint16
		Shield    uint16
		Status    uint16
		Motion    [5]byte
		HitStatus uint8
		Stocks    uint8
		Flags     uint8
	}
)

// ProtocolError reports a stream that violates the protocol.
type ProtocolError struct {
	Type   MessageType
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("capture protocol error in %s: %s", e.Type, e.Reason)
}

func protocolErrorf(t MessageType, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Type: t, Reason: fmt.Sprintf(format, args...)}
}
