// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package savefile

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
)

// MaxPlayers is the largest number of players a replay may hold.
const MaxPlayers = 8

const maxCounter = math.MaxInt32

// DateLayout is the layout of the "date" key of versions 1.0 to 1.3.
const DateLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{DateLayout, "2006-01-02T15:04:05", time.RFC3339Nano}

func parseDate(s string) (uint64, error) {
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		if t.Before(time.Unix(0, 0)) {
			return 0, malformed("date %q is before the epoch", s)
		}
		return session.MillisFromTime(t), nil
	}
	return 0, malformed("unrecognized date %q", s)
}

func formatDate(ms uint64) string {
	return time.UnixMilli(int64(ms)).UTC().Format(DateLayout)
}

// playerFields selects the keys a version stores per player.
type playerFields struct {
	name    bool
	sponsor bool
}

func decodePlayers(doc object, fields playerFields) ([]session.Player, error) {
	pi, err := doc.array("playerinfo")
	if err != nil {
		return nil, err
	}
	if len(pi) == 0 || len(pi) > MaxPlayers {
		return nil, malformed("%d players, expected 1 to %d", len(pi), MaxPlayers)
	}

	players := make([]session.Player, len(pi))
	for i := range pi {
		p, err := elementObject(pi, i, "player")
		if err != nil {
			return nil, err
		}
		fighter, err := p.bounded("fighterid", 0, math.MaxUint8)
		if err != nil {
			return nil, errors.Wrapf(err, "player %d", i)
		}
		tag, err := p.str("tag")
		if err != nil {
			return nil, errors.Wrapf(err, "player %d", i)
		}
		players[i] = session.Player{Fighter: mapping.FighterID(fighter), Tag: tag}

		if fields.name {
			if players[i].Name, err = p.str("name"); err != nil {
				return nil, errors.Wrapf(err, "player %d", i)
			}
		}
		if fields.sponsor {
			if players[i].Sponsor, err = p.optionalStr("sponsor"); err != nil {
				return nil, errors.Wrapf(err, "player %d", i)
			}
		}
	}
	return players, nil
}

func encodePlayers(players []session.Player, fields playerFields) []map[string]interface{} {
	return lo.Map(players, func(p session.Player, _ int) map[string]interface{} {
		out := map[string]interface{}{
			"fighterid": p.Fighter,
			"tag":       p.Tag,
		}
		if fields.name {
			out["name"] = p.Name
		}
		if fields.sponsor && p.Sponsor != "" {
			out["sponsor"] = p.Sponsor
		}
		return out
	})
}

// firstFrameKey holds the index of the first frame. Documents without it
// start at frame 0.
const firstFrameKey = "firstframe"

func decodePlayerStates(doc object, v Version, players int, start uint64) ([][]session.Frame, error) {
	text, err := doc.str("playerstates")
	if err != nil {
		return nil, err
	}
	blob, err := decodeBase64(text)
	if err != nil {
		return nil, err
	}

	var first uint32
	if doc.has(firstFrameKey) {
		n, err := doc.bounded(firstFrameKey, 0, math.MaxUint32-MaxPlayerFrames)
		if err != nil {
			return nil, err
		}
		first = uint32(n)
	}
	return decodeStates(blob, layoutOf(v), players, start, first)
}

// encodePlayerStates stores the states of s in doc.
func encodePlayerStates(doc map[string]interface{}, s *session.Session, v Version) error {
	frames := make([][]session.Frame, s.FighterCount())
	for p := range frames {
		frames[p] = s.Frames(p)
	}
	blob, err := encodeStates(frames, layoutOf(v))
	if err != nil {
		return err
	}
	doc["playerstates"] = encodeBase64(blob)
	if first := firstIndex(frames); first != 0 {
		doc[firstFrameKey] = first
	}
	return nil
}

// lastTimestamp returns the latest frame timestamp of any player.
func lastTimestamp(frames [][]session.Frame) uint64 {
	return lo.Max(lo.FilterMap(frames, func(seq []session.Frame, _ int) (uint64, bool) {
		if len(seq) == 0 {
			return 0, false
		}
		return seq[len(seq)-1].Timestamp, true
	}))
}

// decodeLegacy returns the decoder of the nested game-only shape used by
// versions 1.0 to 1.4.
func decodeLegacy(v Version) decodeFunc {
	return func(doc object) (*session.Session, error) {
		mi, err := doc.object("mappinginfo")
		if err != nil {
			return nil, err
		}
		info, err := decodeMappingInfo(mi, shapeOf(v))
		if err != nil {
			return nil, errors.Wrap(err, "mappinginfo")
		}

		gi, err := doc.object("gameinfo")
		if err != nil {
			return nil, err
		}
		game, stage, err := decodeLegacyGameInfo(gi, v)
		if err != nil {
			return nil, errors.Wrap(err, "gameinfo")
		}

		var start, end uint64
		if v <= V1_3 {
			date, err := gi.str("date")
			if err != nil {
				return nil, errors.Wrap(err, "gameinfo")
			}
			if start, err = parseDate(date); err != nil {
				return nil, errors.Wrap(err, "gameinfo")
			}
		} else {
			if start, end, err = decodeTimestamps(gi); err != nil {
				return nil, errors.Wrap(err, "gameinfo")
			}
		}

		players, err := decodePlayers(doc, playerFields{name: v >= V1_2})
		if err != nil {
			return nil, err
		}
		frames, err := decodePlayerStates(doc, v, len(players), start)
		if err != nil {
			return nil, errors.Wrap(err, "playerstates")
		}
		if v <= V1_3 {
			end = lastTimestamp(frames)
		}

		md := session.NewGameMetaData(stage, players)
		md.TimeStarted, md.TimeEnded = start, end
		md.Game = game
		return session.NewWithFrames(info, md, frames)
	}
}

func decodeLegacyGameInfo(gi object, v Version) (*session.GameInfo, mapping.StageID, error) {
	stage, err := gi.bounded("stageid", 0, math.MaxUint16)
	if err != nil {
		return nil, 0, err
	}
	game := &session.GameInfo{SetNumber: 1}
	if game.SetFormat, err = gi.str("format"); err != nil {
		return nil, 0, err
	}
	number, err := gi.bounded("number", 0, maxCounter)
	if err != nil {
		return nil, 0, err
	}
	game.GameNumber = int(number)

	if v >= V1_2 {
		set, err := gi.bounded("set", 0, maxCounter)
		if err != nil {
			return nil, 0, err
		}
		game.SetNumber = int(set)
	}
	if v >= V1_3 {
		// The stored winner is superseded by the one computed from the frames.
		if _, err := gi.integer("winner"); err != nil {
			return nil, 0, err
		}
	}
	return game, mapping.StageID(stage), nil
}

func decodeTimestamps(gi object) (start, end uint64, err error) {
	s, err := gi.bounded("timestampstart", 0, math.MaxInt64)
	if err != nil {
		return 0, 0, err
	}
	e, err := gi.bounded("timestampend", 0, math.MaxInt64)
	if err != nil {
		return 0, 0, err
	}
	return uint64(s), uint64(e), nil
}

func encodeLegacy(v Version) encodeFunc {
	return func(s *session.Session) (interface{}, error) {
		md := s.MetaData()
		if md.Type != session.Game {
			return nil, errors.Errorf("version %s cannot store %s sessions", v, md.Type)
		}
		if err := checkMeta(md); err != nil {
			return nil, err
		}

		gi := map[string]interface{}{
			"stageid": md.Stage,
			"format":  md.Game.SetFormat,
			"number":  md.Game.GameNumber,
		}
		if v >= V1_2 {
			gi["set"] = md.Game.SetNumber
		}
		if v >= V1_3 {
			gi["winner"] = md.Winner
		}
		if v <= V1_3 {
			gi["date"] = formatDate(md.TimeStarted)
		} else {
			gi["timestampstart"] = md.TimeStarted
			gi["timestampend"] = md.TimeEnded
		}

		doc := map[string]interface{}{
			"version":     v.String(),
			"mappinginfo": encodeMappingInfo(s.MappingInfo(), shapeOf(v)),
			"gameinfo":    gi,
			"playerinfo":  encodePlayers(md.Players, playerFields{name: v >= V1_2}),
		}
		if err := encodePlayerStates(doc, s, v); err != nil {
			return nil, err
		}
		return doc, nil
	}
}
