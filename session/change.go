// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package session

import (
	"fmt"
	"sync"
)

// ChangeKind identifies what a Change modified.
type ChangeKind int

// Kinds of session changes.
const (
	FrameAppended ChangeKind = iota
	WinnerChanged
	ScoreChanged
	PlayerNameChanged
	PlayerSponsorChanged
	GameNumberChanged
	TimeEndedChanged
)

var changeKindNames = [...]string{
	FrameAppended:        "frame appended",
	WinnerChanged:        "winner changed",
	ScoreChanged:         "score changed",
	PlayerNameChanged:    "player name changed",
	PlayerSponsorChanged: "player sponsor changed",
	GameNumberChanged:    "game number changed",
	TimeEndedChanged:     "end time changed",
}

func (k ChangeKind) String() string {
	if k < 0 || int(k) >= len(changeKindNames) {
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
	return changeKindNames[k]
}

// Change describes one mutation of a Session. It is returned by every Session
// setter and delivered to subscribed Observers.
type Change struct {
	Kind ChangeKind
	// Player is the player index the change applies to, or -1.
	Player int

	// Frame is the appended frame, for FrameAppended.
	Frame Frame
	// FrameIndex is the position of the appended frame, for FrameAppended.
	FrameIndex int
}

func (c Change) String() string {
	if c.Player < 0 {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s (player %d)", c.Kind, c.Player)
}

// Observer receives Session changes.
//
// SessionChanged is called synchronously by the goroutine performing the
// mutation, after the session lock has been released.
type Observer interface {
	SessionChanged(s *Session, c Change)
}

// ObserverFunc is an Observer implemented as a function.
type ObserverFunc func(s *Session, c Change)

// SessionChanged implements Observer.
func (fn ObserverFunc) SessionChanged(s *Session, c Change) { fn(s, c) }

type observerSet struct {
	mu     sync.Mutex
	nextID int
	obs    map[int]Observer
}

func (set *observerSet) add(o Observer) int {
	set.mu.Lock()
	defer set.mu.Unlock()

	if set.obs == nil {
		set.obs = make(map[int]Observer)
	}
	id := set.nextID
	set.nextID++
	set.obs[id] = o
	return id
}

func (set *observerSet) remove(id int) {
	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.obs, id)
}

func (set *observerSet) snapshot() []Observer {
	set.mu.Lock()
	defer set.mu.Unlock()

	if len(set.obs) == 0 {
		return nil
	}

	// Deliver in subscription order.
	out := make([]Observer, 0, len(set.obs))
	for id := 0; id < set.nextID; id++ {
		if o, ok := set.obs[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
