// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package session

import (
	"github.com/reframedultimate/ReFramed-sub002/mapping"
)

// Type is the kind of session a MetaData describes.
type Type int

const (
	// Game is a competitive match between two or more players.
	Game Type = iota
	// Training is a training-mode session against a CPU.
	Training
)

func (t Type) String() string {
	switch t {
	case Game:
		return "game"
	case Training:
		return "training"
	default:
		return "unknown"
	}
}

// NoWinner is the winner index of a session without a known winner.
const NoWinner = -1

// Player describes one participant of a session.
type Player struct {
	Fighter mapping.FighterID
	// Tag is the in-game name tag.
	Tag string
	// Name is the player's display name. It defaults to Tag.
	Name    string
	Sponsor string
}

// Score is the set score before the current game.
type Score struct {
	Left  int
	Right int
}

// GameInfo holds the fields only games carry.
type GameInfo struct {
	Tournament   string
	Event        string
	Round        string
	Commentators []string

	SetNumber  int
	GameNumber int
	// SetFormat is the set format label, such as "Bo3" or "FT5".
	SetFormat string
	Score     Score

	// LoserSide has bit i set if player i came from the losers bracket.
	LoserSide uint8
}

// TrainingInfo holds the fields only training sessions carry.
type TrainingInfo struct {
	// SessionNumber increments for each training session.
	SessionNumber int
}

// MetaData describes a session.
//
// Exactly one of Game or Training is set, matching Type.
type MetaData struct {
	Type  Type
	Stage mapping.StageID

	// TimeStarted and TimeEnded are in milliseconds since the Unix epoch. Zero
	// means not yet known.
	TimeStarted uint64
	TimeEnded   uint64

	Players []Player

	// Winner is the index of the winning player, or NoWinner.
	Winner int

	Game     *GameInfo
	Training *TrainingInfo
}

// NewGameMetaData returns MetaData for a game.
func NewGameMetaData(stage mapping.StageID, players []Player) *MetaData {
	return &MetaData{
		Type:    Game,
		Stage:   stage,
		Players: fillNames(players),
		Winner:  NoWinner,
		Game:    &GameInfo{SetNumber: 1, GameNumber: 1, SetFormat: "Bo3"},
	}
}

// NewTrainingMetaData returns MetaData for a training session.
func NewTrainingMetaData(stage mapping.StageID, players []Player, number int) *MetaData {
	return &MetaData{
		Type:     Training,
		Stage:    stage,
		Players:  fillNames(players),
		Winner:   NoWinner,
		Training: &TrainingInfo{SessionNumber: number},
	}
}

func fillNames(players []Player) []Player {
	out := append([]Player(nil), players...)
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = out[i].Tag
		}
	}
	return out
}

// FighterCount returns the number of players.
func (md *MetaData) FighterCount() int { return len(md.Players) }

// FighterIDs returns each player's fighter, in player order.
func (md *MetaData) FighterIDs() []mapping.FighterID {
	ids := make([]mapping.FighterID, len(md.Players))
	for i, p := range md.Players {
		ids[i] = p.Fighter
	}
	return ids
}

// Tags returns each player's tag, in player order.
func (md *MetaData) Tags() []string {
	tags := make([]string, len(md.Players))
	for i, p := range md.Players {
		tags[i] = p.Tag
	}
	return tags
}

// Clone returns a deep copy of md.
func (md *MetaData) Clone() *MetaData {
	c := *md
	c.Players = append([]Player(nil), md.Players...)
	if md.Game != nil {
		g := *md.Game
		g.Commentators = append([]string(nil), md.Game.Commentators...)
		c.Game = &g
	}
	if md.Training != nil {
		t := *md.Training
		c.Training = &t
	}
	return &c
}
