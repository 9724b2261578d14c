// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package filename

import (
	"strconv"
	"strings"
)

// BracketType classifies a replay's event.
type BracketType int

// Bracket types. NoBracket is the zero value.
const (
	NoBracket BracketType = iota
	Singles
	Doubles
	Amateurs
	Side
	MoneyMatch
	Practice
	Friendlies
	OtherBracket
)

var bracketLabels = []struct {
	t     BracketType
	long  string
	short string
}{
	{Singles, "Singles Bracket", "Singles"},
	{Doubles, "Doubles Bracket", "Doubles"},
	{Amateurs, "Amateurs Bracket", "Amateurs"},
	{Side, "Side Bracket", "Side"},
	{MoneyMatch, "Money Match", "MM"},
	{Practice, "Practice", ""},
	{Friendlies, "Friendlies", ""},
}

// Event is a replay's event label.
type Event struct {
	Type BracketType
	// Label is the literal label of an OtherBracket event.
	Label string
}

// ParseEvent classifies label. Unknown labels are OtherBracket events that
// keep the label.
func ParseEvent(label string) Event {
	label = strings.TrimSpace(label)
	if label == "" {
		return Event{}
	}
	for _, bl := range bracketLabels {
		if strings.EqualFold(label, bl.long) || (bl.short != "" && strings.EqualFold(label, bl.short)) {
			return Event{Type: bl.t}
		}
	}
	return Event{Type: OtherBracket, Label: label}
}

// String returns the event's label.
func (e Event) String() string {
	if e.Type == OtherBracket {
		return e.Label
	}
	for _, bl := range bracketLabels {
		if bl.t == e.Type {
			return bl.long
		}
	}
	return ""
}

// IsSet returns true if e names an event.
func (e Event) IsSet() bool { return e.Type != NoBracket }

// FormatType classifies a set format.
type FormatType int

// Set formats. NoFormat is the zero value.
const (
	NoFormat FormatType = iota
	BO3
	BO5
	BO7
	FT5
	FT10
	Free
	OtherFormat
)

var formatLabels = []struct {
	t     FormatType
	short string
	long  string
}{
	{BO3, "Bo3", "Best of 3"},
	{BO5, "Bo5", "Best of 5"},
	{BO7, "Bo7", "Best of 7"},
	{FT5, "FT5", "First to 5"},
	{FT10, "FT10", "First to 10"},
	{Free, "Free", "Free Play"},
}

// SetFormat is a replay's set format.
type SetFormat struct {
	Type FormatType
	// Label is the literal label of an OtherFormat format.
	Label string
}

// ParseSetFormat classifies label by its short or long form. Unknown labels
// are OtherFormat formats that keep the label.
func ParseSetFormat(label string) SetFormat {
	label = strings.TrimSpace(label)
	if label == "" {
		return SetFormat{}
	}
	for _, fl := range formatLabels {
		if strings.EqualFold(label, fl.short) || strings.EqualFold(label, fl.long) {
			return SetFormat{Type: fl.t}
		}
	}
	return SetFormat{Type: OtherFormat, Label: label}
}

// String returns the short label, such as "Bo3".
func (f SetFormat) String() string {
	if f.Type == OtherFormat {
		return f.Label
	}
	for _, fl := range formatLabels {
		if fl.t == f.Type {
			return fl.short
		}
	}
	return ""
}

// Long returns the long label, such as "Best of 3".
func (f SetFormat) Long() string {
	for _, fl := range formatLabels {
		if fl.t == f.Type {
			return fl.long
		}
	}
	return f.String()
}

// IsSet returns true if f names a format.
func (f SetFormat) IsSet() bool { return f.Type != NoFormat }

// RoundType classifies a bracket round.
type RoundType int

// Round types. FreeRound, a plain numbered session, is the zero value.
const (
	FreeRound RoundType = iota
	WinnersRound
	WinnersQuarterFinals
	WinnersSemiFinals
	WinnersFinals
	LosersRound
	LosersQuarterFinals
	LosersSemiFinals
	LosersFinals
	GrandFinals
	Pools
)

var roundLabels = []struct {
	t        RoundType
	short    string
	long     string
	numbered bool
}{
	{WinnersRound, "WR", "Winners Round", true},
	{WinnersQuarterFinals, "WQF", "Winners Quarter Finals", false},
	{WinnersSemiFinals, "WSF", "Winners Semi Finals", false},
	{WinnersFinals, "WF", "Winners Finals", false},
	{LosersRound, "LR", "Losers Round", true},
	{LosersQuarterFinals, "LQF", "Losers Quarter Finals", false},
	{LosersSemiFinals, "LSF", "Losers Semi Finals", false},
	{LosersFinals, "LF", "Losers Finals", false},
	{GrandFinals, "GF", "Grand Finals", false},
	{Pools, "Pools", "Pools", true},
}

// Round is a bracket round, or the set number of a FreeRound.
type Round struct {
	Type RoundType
	// Number is the round or set number. Unnumbered rounds use 1. Zero means
	// unknown.
	Number int
}

// ParseRound parses labels such as "WR6", "LR4", "GF", "Pools 2" and "6".
func ParseRound(label string) (Round, bool) {
	label = strings.TrimSpace(label)
	for _, rl := range roundLabels {
		for _, prefix := range [...]string{rl.long, rl.short} {
			if len(label) < len(prefix) || !strings.EqualFold(label[:len(prefix)], prefix) {
				continue
			}
			rest := strings.TrimSpace(label[len(prefix):])
			if !rl.numbered {
				if rest != "" {
					continue
				}
				return Round{Type: rl.t, Number: 1}, true
			}
			n, ok := positive(rest)
			if !ok {
				continue
			}
			return Round{Type: rl.t, Number: n}, true
		}
	}

	n, ok := positive(label)
	return Round{Type: FreeRound, Number: n}, ok
}

// String returns the short label.
func (r Round) String() string {
	n := r.Number
	if n <= 0 {
		n = 1
	}
	for _, rl := range roundLabels {
		if rl.t != r.Type {
			continue
		}
		switch {
		case !rl.numbered:
			return rl.short
		case rl.t == Pools:
			return rl.short + " " + strconv.Itoa(n)
		default:
			return rl.short + strconv.Itoa(n)
		}
	}
	return strconv.Itoa(n)
}

// positive parses s as a positive decimal number.
func positive(s string) (int, bool) {
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
