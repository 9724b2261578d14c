// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package session contains the in-memory representation of a match or
// training session: mapping tables, metadata, and per-player frame sequences.
//
// A Session is produced either by decoding a replay file, at which point it is
// complete, or incrementally by a live capture. All mutation goes through
// Session setters, each of which returns a Change describing what was
// modified. Observers may subscribe to receive the same Change values; the
// data model itself does not depend on any particular notification mechanism.
package session

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/support/container"
)

// inlinePlayers is the number of per-player frame sequences stored inline.
// Most sessions are 1v1.
const inlinePlayers = 2

// Session is a session's mapping tables, metadata, and frames.
//
// Session is safe for concurrent use. Readers may query a Session while a
// capture goroutine appends to it.
type Session struct {
	mu sync.RWMutex

	mapping  *mapping.Info
	metadata *MetaData
	frames   container.SmallVector[*container.Vector[Frame]]

	observers observerSet
}

// New creates a Session with no frames.
//
// The Session takes ownership of mi and md.
func New(mi *mapping.Info, md *MetaData) *Session {
	s := &Session{
		mapping:  mi,
		metadata: md,
		frames:   container.NewSmallVector[*container.Vector[Frame]](inlinePlayers),
	}
	for range md.Players {
		s.frames.Push(container.NewVector[Frame](0))
	}
	return s
}

// NewWithFrames creates a Session populated with frames, one sequence per
// player in md.
//
// The Session takes ownership of mi, md and frames.
func NewWithFrames(mi *mapping.Info, md *MetaData, frames [][]Frame) (*Session, error) {
	if len(frames) != len(md.Players) {
		return nil, errors.Errorf("%d frame sequences for %d players", len(frames), len(md.Players))
	}

	s := &Session{
		mapping:  mi,
		metadata: md,
		frames:   container.NewSmallVector[*container.Vector[Frame]](inlinePlayers),
	}
	for _, f := range frames {
		s.frames.Push(container.VectorOf(f...))
	}
	return s, nil
}

// MappingInfo returns the session's mapping tables.
//
// The tables belong to the capture goroutine while a live session is being
// recorded, and must be treated as read-only by everyone else.
func (s *Session) MappingInfo() *mapping.Info { return s.mapping }

// MetaData returns a snapshot of the session's metadata.
func (s *Session) MetaData() *MetaData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata.Clone()
}

// Type returns the session's type.
func (s *Session) Type() Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata.Type
}

// FighterCount returns the number of players.
func (s *Session) FighterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames.Len()
}

// FrameCount returns the number of frames recorded for player. It returns 0
// for an invalid player index.
func (s *Session) FrameCount(player int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validPlayer(player) {
		return 0
	}
	return s.frames.At(player).Len()
}

// Frame returns frame i of player.
func (s *Session) Frame(player, i int) (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validPlayer(player) {
		return Frame{}, false
	}
	seq := s.frames.At(player)
	if i < 0 || i >= seq.Len() {
		return Frame{}, false
	}
	return seq.At(i), true
}

// LastFrame returns the most recent frame of player.
func (s *Session) LastFrame(player int) (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validPlayer(player) || s.frames.At(player).Len() == 0 {
		return Frame{}, false
	}
	return s.frames.At(player).Back(), true
}

// Frames returns a copy of player's frames.
func (s *Session) Frames(player int) []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validPlayer(player) {
		return nil
	}
	return append([]Frame(nil), s.frames.At(player).Slice()...)
}

func (s *Session) validPlayer(player int) bool { return player >= 0 && player < s.frames.Len() }

// Subscribe registers o to receive changes. The returned function removes the
// subscription.
func (s *Session) Subscribe(o Observer) (unsubscribe func()) {
	id := s.observers.add(o)
	return func() { s.observers.remove(id) }
}

func (s *Session) notify(c Change) Change {
	for _, o := range s.observers.snapshot() {
		o.SessionChanged(s, c)
	}
	return c
}

// AppendFrame appends f to player's frame sequence.
func (s *Session) AppendFrame(player int, f Frame) (Change, error) {
	s.mu.Lock()
	if !s.validPlayer(player) {
		s.mu.Unlock()
		return Change{}, errors.Errorf("invalid player index %d", player)
	}
	seq := s.frames.At(player)
	seq.Push(f)
	c := Change{Kind: FrameAppended, Player: player, Frame: f, FrameIndex: seq.Len() - 1}
	s.mu.Unlock()

	return s.notify(c), nil
}

// SetWinner sets the winning player index. NoWinner clears it.
func (s *Session) SetWinner(winner int) (Change, error) {
	s.mu.Lock()
	if winner != NoWinner && !s.validPlayer(winner) {
		s.mu.Unlock()
		return Change{}, errors.Errorf("invalid winner index %d", winner)
	}
	s.metadata.Winner = winner
	s.mu.Unlock()

	return s.notify(Change{Kind: WinnerChanged, Player: winner}), nil
}

// SetScore sets a game's set score.
func (s *Session) SetScore(score Score) (Change, error) {
	s.mu.Lock()
	if s.metadata.Game == nil {
		s.mu.Unlock()
		return Change{}, errors.New("score is only tracked for games")
	}
	s.metadata.Game.Score = score
	s.mu.Unlock()

	return s.notify(Change{Kind: ScoreChanged, Player: -1}), nil
}

// SetGameNumber sets a game's number within its set.
func (s *Session) SetGameNumber(n int) (Change, error) {
	s.mu.Lock()
	if s.metadata.Game == nil {
		s.mu.Unlock()
		return Change{}, errors.New("game number is only tracked for games")
	}
	s.metadata.Game.GameNumber = n
	s.mu.Unlock()

	return s.notify(Change{Kind: GameNumberChanged, Player: -1}), nil
}

// SetPlayerName sets player's display name.
func (s *Session) SetPlayerName(player int, name string) (Change, error) {
	s.mu.Lock()
	if !s.validPlayer(player) {
		s.mu.Unlock()
		return Change{}, errors.Errorf("invalid player index %d", player)
	}
	s.metadata.Players[player].Name = name
	s.mu.Unlock()

	return s.notify(Change{Kind: PlayerNameChanged, Player: player}), nil
}

// SetPlayerSponsor sets player's sponsor.
func (s *Session) SetPlayerSponsor(player int, sponsor string) (Change, error) {
	s.mu.Lock()
	if !s.validPlayer(player) {
		s.mu.Unlock()
		return Change{}, errors.Errorf("invalid player index %d", player)
	}
	s.metadata.Players[player].Sponsor = sponsor
	s.mu.Unlock()

	return s.notify(Change{Kind: PlayerSponsorChanged, Player: player}), nil
}

// SetTimeEnded sets the session end time, in milliseconds since the Unix
// epoch.
func (s *Session) SetTimeEnded(ms uint64) Change {
	s.mu.Lock()
	s.metadata.TimeEnded = ms
	s.mu.Unlock()

	return s.notify(Change{Kind: TimeEndedChanged, Player: -1})
}

// ComputeWinner determines the winner from each player's final frame.
//
// The player with the most stocks wins. Ties go to the player with the least
// damage, where a player in the standby status counts as having no damage.
// If no player has frames, player 0 wins. Training sessions have no winner.
func (s *Session) ComputeWinner() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computeWinnerLocked()
}

func (s *Session) computeWinnerLocked() int {
	if s.metadata.Type == Training || s.frames.Len() == 0 {
		return NoWinner
	}

	winner := 0
	var best *Frame
	for i := 0; i < s.frames.Len(); i++ {
		seq := s.frames.At(i)
		if seq.Len() == 0 {
			continue
		}
		f := seq.Ref(seq.Len() - 1)
		if best == nil || beats(f, best) {
			winner, best = i, f
		}
	}
	return winner
}

func effectiveDamage(f *Frame) float32 {
	if f.Status == StatusStandby {
		return 0
	}
	return f.Damage
}

// beats returns true if the final frame a beats the final frame b.
func beats(a, b *Frame) bool {
	if a.Stocks != b.Stocks {
		return a.Stocks > b.Stocks
	}
	return effectiveDamage(a) < effectiveDamage(b)
}

// FinalizeWinner computes the winner and stores it in the metadata.
func (s *Session) FinalizeWinner() Change {
	s.mu.Lock()
	w := s.computeWinnerLocked()
	s.metadata.Winner = w
	s.mu.Unlock()

	return s.notify(Change{Kind: WinnerChanged, Player: w})
}
