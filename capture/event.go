// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
)

// Event is a decoded stream occurrence. The set of Event types is closed.
type Event interface {
	isEvent()
}

// VersionAnnounced reports the device's protocol version.
type VersionAnnounced struct {
	Major, Minor uint8
}

// MappingChecksum reports the checksum of the device's mapping tables.
type MappingChecksum struct {
	Checksum uint32
	// Current is true if the receiver's mapping tables already carry this
	// checksum.
	Current bool
}

// MappingStarted reports that the device is about to send fresh mapping
// tables.
type MappingStarted struct {
	Checksum uint32
}

// MappingEntry reports one announced mapping table entry.
type MappingEntry struct {
	// Type is the announcing message: FighterKind, FighterStatusKind,
	// StageKind or HitStatusKind.
	Type MessageType
	// Fighter is the fighter of a FighterStatusKind entry.
	Fighter mapping.FighterID
	ID      uint16
	Name    string
}

// MappingComplete reports that the mapping tables have been sent.
type MappingComplete struct {
	Mapping *mapping.Info
}

// GameStarted reports a game starting, or an in-progress game on resume.
type GameStarted struct {
	Resumed  bool
	Stage    mapping.StageID
	EntryIDs []uint8
	Players  []session.Player
	// Mapping is the receiver's mapping table. It is owned by the receiver's
	// goroutine and must be treated as read-only.
	Mapping *mapping.Info
}

// GameEnded reports the end of a game.
type GameEnded struct{}

// TrainingStarted reports a training session starting, or an in-progress
// session on resume.
type TrainingStarted struct {
	Resumed bool
	Stage   mapping.StageID
	Players []session.Player
	Mapping *mapping.Info
}

// TrainingRestarted reports a training session being reset.
type TrainingRestarted struct{}

// TrainingEnded reports the end of a training session.
type TrainingEnded struct{}

// FighterStateReceived reports one fighter's state for one frame.
type FighterStateReceived struct {
	PlayerIndex int
	EntryID     uint8
	Frame       session.Frame
}

// ConnectionClosed reports that the stream ended, because the peer hung up
// or a message was cut short.
type ConnectionClosed struct {
	Err error
}

// Cancelled reports that the receiver was shut down.
type Cancelled struct{}

func (VersionAnnounced) isEvent() {}
func (MappingChecksum) isEvent() {}
func (MappingStarted) isEvent() {}
func (MappingEntry) isEvent() {}
func (MappingComplete) isEvent() {}
func (GameStarted) isEvent() {}
func (GameEnded) isEvent() {}
func (TrainingStarted) isEvent() {}
func (TrainingRestarted) isEvent() {}
func (TrainingEnded) isEvent() {}
func (FighterStateReceived) isEvent() {}
func (ConnectionClosed) isEvent() {}
func (Cancelled) isEvent() {}

// Handler receives events.
type Handler interface {
	HandleEvent(e Event)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(e Event)

// HandleEvent implements Handler.
func (fn HandlerFunc) HandleEvent(e Event) { fn(e) }

// Handlers fans events out to every member in order.
type Handlers []Handler

// HandleEvent implements Handler.
func (hs Handlers) HandleEvent(e Event) {
	for _, h := range hs {
		h.HandleEvent(e)
	}
}
