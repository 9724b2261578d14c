// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package savefile

import (
	"math"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/session"
)

var consolidatedPlayers = playerFields{name: true, sponsor: true}

func parseType(s string) (session.Type, error) {
	switch s {
	case session.Game.String():
		return session.Game, nil
	case session.Training.String():
		return session.Training, nil
	default:
		return 0, malformed("unknown session type %q", s)
	}
}

// decodeConsolidatedMeta decodes the metadata keys of a 1.5 document.
func decodeConsolidatedMeta(doc object) (*session.MetaData, error) {
	typeName, err := doc.str("type")
	if err != nil {
		return nil, err
	}
	typ, err := parseType(typeName)
	if err != nil {
		return nil, err
	}

	gi, err := doc.object("gameinfo")
	if err != nil {
		return nil, err
	}
	start, end, err := decodeTimestamps(gi)
	if err != nil {
		return nil, errors.Wrap(err, "gameinfo")
	}
	stage, err := gi.bounded("stageid", 0, math.MaxUint16)
	if err != nil {
		return nil, errors.Wrap(err, "gameinfo")
	}
	number, err := gi.bounded("number", 0, maxCounter)
	if err != nil {
		return nil, errors.Wrap(err, "gameinfo")
	}

	players, err := decodePlayers(doc, consolidatedPlayers)
	if err != nil {
		return nil, err
	}

	var md *session.MetaData
	switch typ {
	case session.Game:
		md = session.NewGameMetaData(mapping.StageID(stage), players)
		if err := decodeGameFields(gi, md.Game); err != nil {
			return nil, errors.Wrap(err, "gameinfo")
		}
		md.Game.GameNumber = int(number)
		// Type-checked only; the winner is recomputed from the frames.
		if _, err := gi.integer("winner"); err != nil {
			return nil, errors.Wrap(err, "gameinfo")
		}
	case session.Training:
		md = session.NewTrainingMetaData(mapping.StageID(stage), players, int(number))
	}
	md.TimeStarted, md.TimeEnded = start, end
	return md, nil
}

func decodeGameFields(gi object, g *session.GameInfo) error {
	set, err := gi.bounded("set", 0, maxCounter)
	if err != nil {
		return err
	}
	g.SetNumber = int(set)
	if g.SetFormat, err = gi.str("format"); err != nil {
		return err
	}

	for key, dst := range map[string]*string{
		"tournament": &g.Tournament,
		"event":      &g.Event,
		"round":      &g.Round,
	} {
		if *dst, err = gi.optionalStr(key); err != nil {
			return err
		}
	}

	if gi.has("commentators") {
		cs, err := gi.array("commentators")
		if err != nil {
			return err
		}
		for i, c := range cs {
			name, ok := c.(string)
			if !ok {
				return malformed("commentator %d is not a string", i)
			}
			g.Commentators = append(g.Commentators, name)
		}
	}

	if gi.has("score") {
		score, err := gi.array("score")
		if err != nil {
			return err
		}
		if len(score) != 2 {
			return malformed("score has %d elements, expected 2", len(score))
		}
		left, okL := toInteger(score[0])
		right, okR := toInteger(score[1])
		if !okL || !okR || left < 0 || right < 0 || left > maxCounter || right > maxCounter {
			return malformed("score must be two non-negative integers")
		}
		g.Score = session.Score{Left: int(left), Right: int(right)}
	}

	if gi.has("loserside") {
		side, err := gi.bounded("loserside", 0, math.MaxUint8)
		if err != nil {
			return err
		}
		g.LoserSide = uint8(side)
	}
	return nil
}

func decodeConsolidated(doc object) (*session.Session, error) {
	md, err := decodeConsolidatedMeta(doc)
	if err != nil {
		return nil, err
	}

	info := mapping.NewInfo(0)
	if doc.has("mappinginfo") {
		mi, err := doc.object("mappinginfo")
		if err != nil {
			return nil, err
		}
		if info, err = decodeMappingInfo(mi, shapeOf(V1_5)); err != nil {
			return nil, errors.Wrap(err, "mappinginfo")
		}
	}

	frames, err := decodePlayerStates(doc, V1_5, len(md.Players), md.TimeStarted)
	if err != nil {
		return nil, errors.Wrap(err, "playerstates")
	}
	return session.NewWithFrames(info, md, frames)
}

func encodeConsolidatedMeta(md *session.MetaData) map[string]interface{} {
	gi := map[string]interface{}{
		"timestampstart": md.TimeStarted,
		"timestampend":   md.TimeEnded,
		"stageid":        md.Stage,
	}
	switch md.Type {
	case session.Game:
		g := md.Game
		gi["number"] = g.GameNumber
		gi["set"] = g.SetNumber
		gi["format"] = g.SetFormat
		gi["winner"] = md.Winner
		gi["score"] = []int{g.Score.Left, g.Score.Right}
		for key, val := range map[string]string{
			"tournament": g.Tournament,
			"event":      g.Event,
			"round":      g.Round,
		} {
			if val != "" {
				gi[key] = val
			}
		}
		if len(g.Commentators) > 0 {
			gi["commentators"] = g.Commentators
		}
		if g.LoserSide != 0 {
			gi["loserside"] = g.LoserSide
		}
	case session.Training:
		gi["number"] = md.Training.SessionNumber
	}

	return map[string]interface{}{
		"version":    V1_5.String(),
		"type":       md.Type.String(),
		"gameinfo":   gi,
		"playerinfo": encodePlayers(md.Players, consolidatedPlayers),
	}
}

func checkMeta(md *session.MetaData) error {
	if md.Type == session.Game && md.Game == nil || md.Type == session.Training && md.Training == nil {
		return errors.Errorf("%s metadata is missing its %s fields", md.Type, md.Type)
	}
	return nil
}

func encodeConsolidated(s *session.Session) (interface{}, error) {
	md := s.MetaData()
	if err := checkMeta(md); err != nil {
		return nil, err
	}
	doc := encodeConsolidatedMeta(md)
	if err := encodePlayerStates(doc, s, V1_5); err != nil {
		return nil, err
	}
	doc["mappinginfo"] = encodeMappingInfo(s.MappingInfo(), shapeOf(V1_5))
	return doc, nil
}

// DecodeMetaData decodes a 1.5 document that carries only metadata, such as
// the metadata chunk of the modern container.
func DecodeMetaData(data []byte) (*session.MetaData, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	v, err := documentVersion(doc)
	if err != nil {
		return nil, err
	}
	if v != V1_5 {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "metadata version %s", v)
	}
	return decodeConsolidatedMeta(doc)
}

// EncodeMetaData encodes md as a 1.5 document without mapping info or
// player states.
func EncodeMetaData(md *session.MetaData) ([]byte, error) {
	if err := checkMeta(md); err != nil {
		return nil, err
	}
	return marshal(encodeConsolidatedMeta(md))
}

