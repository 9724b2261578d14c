// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"sync"
	"time"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// SessionBuilder is a Handler that assembles live sessions from events.
//
// A session begins with GameStarted or TrainingStarted and is finished by the
// matching end event, by a training reset, or by the stream ending. Finished
// sessions carry their end time and winner.
type SessionBuilder struct {
	// Logger, if not nil, is the logger to use.
	Logger logging.L

	// NowFunc, if not nil, returns the current time. If nil, time.Now is used.
	NowFunc func() time.Time

	// OnStarted, if not nil, is called with each new session.
	OnStarted func(s *session.Session)

	// OnFinished, if not nil, is called with each finished session.
	OnFinished func(s *session.Session)

	mu       sync.Mutex
	current  *session.Session
	training *TrainingStarted
	number   int
}

var _ Handler = (*SessionBuilder)(nil)

func (b *SessionBuilder) now() uint64 {
	if b.NowFunc != nil {
		return session.MillisFromTime(b.NowFunc())
	}
	return session.MillisFromTime(time.Now())
}

// Current returns the session being recorded, or nil.
func (b *SessionBuilder) Current() *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// HandleEvent implements Handler.
func (b *SessionBuilder) HandleEvent(e Event) {
	var started, finished *session.Session

	b.mu.Lock()
	switch e := e.(type) {
	case GameStarted:
		finished = b.finishLocked()
		md := session.NewGameMetaData(e.Stage, e.Players)
		started = b.startLocked(e.Mapping, md)
		b.training = nil

	case TrainingStarted:
		finished = b.finishLocked()
		b.training = &e
		b.number++
		started = b.startLocked(e.Mapping, session.NewTrainingMetaData(e.Stage, e.Players, b.number))

	case TrainingRestarted:
		if b.training == nil {
			break
		}
		finished = b.finishLocked()
		b.number++
		t := b.training
		started = b.startLocked(t.Mapping, session.NewTrainingMetaData(t.Stage, t.Players, b.number))

	case FighterStateReceived:
		if s := b.current; s != nil {
			if _, err := s.AppendFrame(e.PlayerIndex, e.Frame); err != nil {
				logging.Must(b.Logger).Warnf("Dropping fighter state: %s", err)
			}
		}

	case GameEnded, TrainingEnded, ConnectionClosed, Cancelled:
		finished = b.finishLocked()
		b.training = nil
	}
	b.mu.Unlock()

	// Callbacks run unlocked so that they may call Current.
	if finished != nil && b.OnFinished != nil {
		b.OnFinished(finished)
	}
	if started != nil && b.OnStarted != nil {
		b.OnStarted(started)
	}
}

func (b *SessionBuilder) startLocked(mi *mapping.Info, md *session.MetaData) *session.Session {
	md.TimeStarted = b.now()
	b.current = session.New(mi, md)
	logging.Must(b.Logger).Infof("Started %s session with %d players.", md.Type, len(md.Players))
	return b.current
}

func (b *SessionBuilder) finishLocked() *session.Session {
	s := b.current
	if s == nil {
		return nil
	}
	b.current = nil

	end := b.now()
	for p := 0; p < s.FighterCount(); p++ {
		if f, ok := s.LastFrame(p); ok && f.Timestamp > end {
			end = f.Timestamp
		}
	}
	s.SetTimeEnded(end)
	s.FinalizeWinner()

	logging.Must(b.Logger).Infof("Finished %s session.", s.Type())
	return s
}
