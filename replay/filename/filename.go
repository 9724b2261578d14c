// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package filename parses and builds structured replay file names:
//
//	2022-09-11_19-45-22 - Singles Bracket - Bo3 (WR6) - TheComet (Pikachu) vs TAEL (C. Falcon) [L] - Game 4 (2-1) - Town & City.rfr
//
// Segments are separated by dashes. Older names omit later segments, so
// every segment is optional and one that cannot be found leaves its fields
// unset without aborting the parse.
package filename

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
)

// Extension is the extension written by ToFileName.
const Extension = ".rfr"

// CPUName is the name of the CPU player of a training session.
const CPUName = "CPU"

// TrainingFormat labels the set format of a training session.
const TrainingFormat = "Training"

// Player is one player segment.
type Player struct {
	Name    string
	Fighter string
	// Loser is true if the player came from the losers bracket, marked "[L]".
	Loser bool
}

// Score is the set score before a game.
type Score struct {
	Left, Right int
}

// Parts are the fields of a replay file name.
type Parts struct {
	// Date is "YYYY-MM-DD" and Time is "HH:MM:SS".
	Date string
	Time string

	Event  Event
	Format SetFormat
	Round  Round

	Players []Player

	// GameNumber is the game within the set, or 0 if unknown. A name with a
	// score has game number Left+Right+1.
	GameNumber int
	HasScore   bool
	Score      Score

	Stage string
}

// HasMissingInfo returns true if a player, a fighter, the date, the time or
// the stage is missing.
func (p *Parts) HasMissingInfo() bool {
	if len(p.Players) == 0 || p.Date == "" || p.Time == "" || p.Stage == "" {
		return true
	}
	return lo.ContainsBy(p.Players, func(pl Player) bool { return pl.Name == "" || pl.Fighter == "" })
}

// ToFileName formats p as a file name. Unset segments are omitted.
func (p *Parts) ToFileName() string {
	var segments []string

	if p.Date != "" {
		dt := p.Date
		if p.Time != "" {
			dt += "_" + strings.ReplaceAll(p.Time, ":", "-")
		}
		segments = append(segments, dt)
	}
	if p.Event.IsSet() {
		segments = append(segments, p.Event.String())
	}
	if p.Format.IsSet() {
		segments = append(segments, fmt.Sprintf("%s (%s)", p.Format, p.Round))
	}
	if len(p.Players) > 0 {
		segments = append(segments, strings.Join(lo.Map(p.Players, func(pl Player, _ int) string {
			s := pl.Name
			if pl.Fighter != "" {
				s += " (" + pl.Fighter + ")"
			}
			if pl.Loser {
				s += " [L]"
			}
			return s
		}), " vs "))
	}
	if p.GameNumber > 0 {
		game := fmt.Sprintf("Game %d", p.GameNumber)
		if p.HasScore {
			game += fmt.Sprintf(" (%d-%d)", p.Score.Left, p.Score.Right)
		}
		segments = append(segments, game)
	}
	if p.Stage != "" {
		segments = append(segments, p.Stage)
	}

	return strings.Join(segments, " - ") + Extension
}

// FromMetaData builds the parts of the file name of a session. Times are
// formatted in loc, or in local time if loc is nil.
func FromMetaData(mi *mapping.Info, md *session.MetaData, loc *time.Location) Parts {
	if loc == nil {
		loc = time.Local
	}
	started := session.TimeFromMillis(md.TimeStarted).In(loc)

	p := Parts{
		Date:  started.Format("2006-01-02"),
		Time:  started.Format("15:04:05"),
		Stage: mi.Stage.Name(md.Stage),
	}

	name := func(i int) string {
		if n := md.Players[i].Name; n != "" {
			return n
		}
		if t := md.Players[i].Tag; t != "" {
			return t
		}
		return fmt.Sprintf("Player %d", i+1)
	}

	switch {
	case md.Training != nil:
		p.Format = SetFormat{Type: OtherFormat, Label: TrainingFormat}
		p.Round = Round{Type: FreeRound, Number: md.Training.SessionNumber}
		if len(md.Players) > 0 {
			p.Players = []Player{{Name: name(0)}, {Name: CPUName}}
		}

	case md.Game != nil:
		g := md.Game
		p.Event = ParseEvent(g.Event)
		p.Format = ParseSetFormat(g.SetFormat)
		p.Round = Round{Type: FreeRound, Number: g.SetNumber}
		if r, ok := ParseRound(g.Round); ok {
			p.Round = r
		}
		p.Players = lo.Map(md.Players, func(pl session.Player, i int) Player {
			return Player{
				Name:    name(i),
				Fighter: mi.Fighter.Name(pl.Fighter),
				Loser:   g.LoserSide&(1<<uint(i)) != 0,
			}
		})
		p.GameNumber = g.GameNumber
		if g.GameNumber == g.Score.Left+g.Score.Right+1 {
			p.HasScore = true
			p.Score = Score{Left: g.Score.Left, Right: g.Score.Right}
		}
	}
	return p
}

// FromFileName parses name. Fields of segments that cannot be found are left
// unset. Directory components are not stripped.
func FromFileName(name string) Parts {
	var p Parts

	rest, hasExt := stripExtension(name)
	rest = scanDateTime(rest, &p)

	sc := scanner{segments: splitSegments(rest)}
	sc.scan(func(s string) bool {
		if looksLikeSetFormat(s) || looksLikePlayers(s) {
			return false
		}
		p.Event = ParseEvent(s)
		return true
	})
	sc.scan(func(s string) bool { return scanSetFormat(s, &p) })
	sc.scan(func(s string) bool { return scanPlayers(s, &p) })
	sc.scan(func(s string) bool { return scanGame(s, &p) })
	sc.scan(func(s string) bool {
		// The stage is recognised only as the last segment before an extension.
		if !hasExt || !sc.last() {
			return false
		}
		p.Stage = s
		return true
	})
	return p
}

// scanner steps through segments. A scan that does not recognise the current
// segment leaves it for the next scan.
type scanner struct {
	segments []string
	pos      int
}

func (sc *scanner) scan(fn func(s string) bool) {
	if sc.pos < len(sc.segments) && fn(sc.segments[sc.pos]) {
		sc.pos++
	}
}

func (sc *scanner) last() bool { return sc.pos == len(sc.segments)-1 }

// stripExtension removes a trailing ".r..." extension.
func stripExtension(name string) (string, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i+1 >= len(name) {
		return name, false
	}
	ext := name[i+1:]
	if (ext[0] != 'r' && ext[0] != 'R') || strings.ContainsAny(ext, " .") {
		return name, false
	}
	return name[:i], true
}

// scanDateTime finds the first "YYYY-MM-DD", optionally followed by
// "_HH-MM-SS", and returns the text after it. If there is none, name is
// returned unchanged.
func scanDateTime(name string, p *Parts) string {
	for i := 0; i+len("0000-00-00") <= len(name); i++ {
		if !matchPattern(name[i:], "dddd-dd-dd") {
			continue
		}
		p.Date = name[i : i+10]
		rest := name[i+10:]
		if strings.HasPrefix(rest, "_") && matchPattern(rest[1:], "dd-dd-dd") {
			p.Time = strings.ReplaceAll(rest[1:9], "-", ":")
			rest = rest[9:]
		}
		return rest
	}
	return name
}

// matchPattern returns true if s starts with pattern, where 'd' matches any
// digit.
func matchPattern(s, pattern string) bool {
	if len(s) < len(pattern) {
		return false
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == 'd' {
			if !isDigit(s[i]) {
				return false
			}
		} else if s[i] != pattern[i] {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// splitSegments splits s at dashes that touch whitespace, and before a
// "Game N" that was not separated from the players. Empty segments are
// dropped.
func splitSegments(s string) []string {
	var segments []string
	push := func(seg string) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, splitGame(seg)...)
		}
	}

	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			continue
		}
		before := i == 0 || isSpace(s[i-1])
		after := i+1 == len(s) || isSpace(s[i+1])
		if before || after {
			push(s[start:i])
			start = i + 1
		}
	}
	push(s[start:])
	return segments
}

func splitGame(seg string) []string {
	for i := 1; i < len(seg); i++ {
		if isSpace(seg[i-1]) && matchGame(seg[i:]) {
			return []string{strings.TrimSpace(seg[:i]), seg[i:]}
		}
	}
	return []string{seg}
}

func matchGame(s string) bool {
	return strings.HasPrefix(s, "Game ") && len(s) > 5 && isDigit(s[5])
}

// splitSetFormat splits "Bo3 (WR6)" or "Bo5(42)" into label and round.
func splitSetFormat(s string) (label, round string, ok bool) {
	if !strings.HasSuffix(s, ")") {
		return "", "", false
	}
	open := strings.LastIndexByte(s, '(')
	if open <= 0 {
		return "", "", false
	}
	label = strings.TrimSpace(s[:open])
	if label == "" || strings.IndexFunc(label, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == ' ')
	}) >= 0 {
		return "", "", false
	}
	return label, s[open+1 : len(s)-1], true
}

func looksLikeSetFormat(s string) bool {
	_, round, ok := splitSetFormat(s)
	if !ok {
		return false
	}
	_, ok = ParseRound(round)
	return ok
}

func scanSetFormat(s string, p *Parts) bool {
	label, round, ok := splitSetFormat(s)
	if !ok {
		return false
	}
	r, ok := ParseRound(round)
	if !ok {
		return false
	}
	p.Format = ParseSetFormat(label)
	p.Round = r
	return true
}

func looksLikePlayers(s string) bool {
	s = strings.TrimSuffix(s, " vs")
	if strings.Contains(s, " vs ") {
		return true
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "[L]"))
	return strings.HasSuffix(s, ")") && strings.Contains(s, "(")
}

func scanPlayers(s string, p *Parts) bool {
	if !looksLikePlayers(s) {
		return false
	}

	var players []Player
	for _, part := range strings.Split(strings.TrimSuffix(s, " vs"), " vs ") {
		pl, ok := parsePlayer(part)
		if !ok {
			return false
		}
		players = append(players, pl)
	}
	p.Players = players
	return true
}

// parsePlayer parses "Name (Fighter) [L]". The fighter is the last
// parenthesised group, so names may contain parentheses.
func parsePlayer(s string) (Player, bool) {
	var pl Player
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "[L]") {
		pl.Loser = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "[L]"))
	}

	if strings.HasSuffix(s, ")") {
		depth, open := 0, -1
		for i := len(s) - 1; i >= 0 && open < 0; i-- {
			switch s[i] {
			case ')':
				depth++
			case '(':
				if depth--; depth == 0 {
					open = i
				}
			}
		}
		if open <= 0 {
			return pl, false
		}
		fighter := s[open:]
		for strings.HasPrefix(fighter, "(") && strings.HasSuffix(fighter, ")") {
			fighter = fighter[1 : len(fighter)-1]
		}
		pl.Fighter = strings.TrimSpace(fighter)
		s = strings.TrimSpace(s[:open])
	} else if i := strings.LastIndex(s, " ("); i >= 0 {
		// An unterminated fighter.
		return pl, false
	}

	pl.Name = s
	return pl, pl.Name != ""
}

func scanGame(s string, p *Parts) bool {
	if !matchGame(s) {
		return false
	}
	rest := s[len("Game "):]

	i := 0
	for i < len(rest) && isDigit(rest[i]) {
		i++
	}
	n, _ := positive(rest[:i])
	rest = strings.TrimSpace(rest[i:])

	var score Score
	hasScore := false
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		if l, r, ok := strings.Cut(rest[1:len(rest)-1], "-"); ok {
			left, lok := nonNegative(l)
			right, rok := nonNegative(r)
			if lok && rok {
				score, hasScore = Score{Left: left, Right: right}, true
			}
		}
	} else if rest != "" {
		return false
	}

	p.GameNumber = n
	p.HasScore = hasScore
	p.Score = score
	if hasScore {
		p.GameNumber = score.Left + score.Right + 1
	}
	return true
}

func nonNegative(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "0" {
		return 0, true
	}
	return positive(s)
}
