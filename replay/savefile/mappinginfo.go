// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package savefile

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
)

// mappingShape describes which parts of "mappinginfo" a version stores.
type mappingShape struct {
	// statuses is false for 1.0, whose status tables were written incorrectly
	// and are ignored.
	statuses bool
	// hitStatus requires the "hitstatus" table.
	hitStatus bool
	// nullableSpecific permits a null "specific" status table.
	nullableSpecific bool
	// checksum stores the capture device's mapping checksum.
	checksum bool
}

func shapeOf(v Version) mappingShape {
	return mappingShape{
		statuses:         v >= V1_1,
		hitStatus:        v >= V1_3,
		nullableSpecific: v >= V1_4,
		checksum:         v >= V1_5,
	}
}

func decodeMappingInfo(mi object, shape mappingShape) (*mapping.Info, error) {
	info := mapping.NewInfo(0)

	if shape.checksum && mi.has("checksum") {
		n, err := mi.bounded("checksum", 0, 0xFFFFFFFF)
		if err != nil {
			return nil, err
		}
		info.Checksum = uint32(n)
	}

	fighters, err := mi.object("fighterid")
	if err != nil {
		return nil, err
	}
	if err := decodeTable(fighters, 8, func(id uint64, name string) { info.Fighter.Add(mapping.FighterID(id), name) }); err != nil {
		return nil, errors.Wrap(err, "fighterid")
	}

	stages, err := mi.object("stageid")
	if err != nil {
		return nil, err
	}
	if err := decodeTable(stages, 16, func(id uint64, name string) { info.Stage.Add(mapping.StageID(id), name) }); err != nil {
		return nil, errors.Wrap(err, "stageid")
	}

	statuses, err := mi.object("fighterstatus")
	if err != nil {
		return nil, err
	}
	if shape.statuses {
		if err := decodeStatuses(statuses, shape, info.Status); err != nil {
			return nil, errors.Wrap(err, "fighterstatus")
		}
	}

	if shape.hitStatus {
		hit, err := mi.object("hitstatus")
		if err != nil {
			return nil, err
		}
		if err := decodeTable(hit, 8, func(id uint64, name string) { info.HitStatus.Add(mapping.HitStatusID(id), name) }); err != nil {
			return nil, errors.Wrap(err, "hitstatus")
		}
	}

	return info, nil
}

func decodeTable(tbl object, bits int, add func(uint64, string)) error {
	for key, v := range tbl {
		id, err := parseKey(key, bits)
		if err != nil {
			return err
		}
		name, err := parseName(key, v)
		if err != nil {
			return err
		}
		add(id, name)
	}
	return nil
}

func decodeStatuses(fs object, shape mappingShape, st *mapping.StatusTable) error {
	base, err := fs.object("base")
	if err != nil {
		return err
	}
	if err := decodeTable(base, 16, func(id uint64, name string) { st.AddBase(mapping.StatusID(id), name) }); err != nil {
		return errors.Wrap(err, "base")
	}

	var specific object
	if shape.nullableSpecific {
		specific, err = fs.nullableObject("specific")
	} else {
		specific, err = fs.object("specific")
	}
	if err != nil {
		return err
	}

	for fkey, v := range specific {
		fighter, err := parseKey(fkey, 8)
		if err != nil {
			return errors.Wrap(err, "specific")
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return malformed("specific statuses of fighter %q are not an object", fkey)
		}
		add := func(id uint64, name string) {
			st.AddSpecific(mapping.FighterID(fighter), mapping.StatusID(id), name)
		}
		if err := decodeTable(object(m), 16, add); err != nil {
			return errors.Wrapf(err, "specific statuses of fighter %d", fighter)
		}
	}
	return nil
}

func idKey[K mapping.ID](id K) string { return strconv.FormatUint(uint64(id), 10) }

func encodeTable[K mapping.ID](t *mapping.Table[K]) map[string]interface{} {
	out := make(map[string]interface{}, t.Len())
	t.Range(func(id K, name string) bool {
		out[idKey(id)] = name
		return true
	})
	return out
}

// statusName is the historical status value layout. Only the enum name
// survives a round trip.
func statusName(name string) []string { return []string{name, "", ""} }

func encodeMappingInfo(info *mapping.Info, shape mappingShape) map[string]interface{} {
	base := make(map[string]interface{})
	specific := make(map[string]interface{})
	if shape.statuses {
		info.Status.Base().Range(func(id mapping.StatusID, name string) bool {
			base[idKey(id)] = statusName(name)
			return true
		})
		for _, fighter := range info.Status.SpecificFighters() {
			entries := make(map[string]interface{})
			info.Status.RangeSpecific(fighter, func(id mapping.StatusID, name string) bool {
				entries[idKey(id)] = statusName(name)
				return true
			})
			specific[idKey(fighter)] = entries
		}
	}

	out := map[string]interface{}{
		"fighterid": encodeTable(info.Fighter),
		"stageid":   encodeTable(info.Stage),
		"fighterstatus": map[string]interface{}{
			"base":     base,
			"specific": specific,
		},
	}
	if shape.hitStatus {
		out["hitstatus"] = encodeTable(info.HitStatus)
	}
	if shape.checksum && info.Checksum != 0 {
		out["checksum"] = info.Checksum
	}
	return out
}

// DecodeMappingInfo decodes a standalone "mappinginfo" object in the 1.4
// shape, as stored by the modern container.
func DecodeMappingInfo(data []byte) (*mapping.Info, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	shape := shapeOf(V1_4)
	shape.checksum = true
	return decodeMappingInfo(doc, shape)
}

// EncodeMappingInfo encodes info as a standalone "mappinginfo" object.
func EncodeMappingInfo(info *mapping.Info) ([]byte, error) {
	shape := shapeOf(V1_4)
	shape.checksum = true
	return marshal(encodeMappingInfo(info, shape))
}
