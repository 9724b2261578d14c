// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package mapping holds the ID to display-name tables that describe a session.
//
// Tables are append-only caches of names announced by the capture device or
// stored in a replay file. The first name added for an ID wins; later
// additions for the same ID are ignored.
package mapping

import (
	"sort"

	"github.com/reframedultimate/ReFramed-sub002/support/container"
)

// FighterID identifies a fighter (character).
type FighterID uint8

// StageID identifies a stage.
type StageID uint16

// StatusID identifies a fighter status code.
type StatusID uint16

// HitStatusID identifies a hit status.
type HitStatusID uint8

// BaseStatusFighter is the fighter ID the capture device uses to announce a
// status shared by all fighters.
const BaseStatusFighter FighterID = 255

// Sentinel names returned for IDs that are not in a table.
const (
	UnknownFighter   = "(unknown fighter)"
	UnknownStage     = "(unknown stage)"
	UnknownStatus    = "(unknown status)"
	UnknownHitStatus = "(unknown hit status)"
)

// ID is the set of key types a Table can be indexed by.
type ID interface {
	~uint8 | ~uint16 | ~uint32
}

// Table maps small integer IDs to names.
//
// Table is not safe for concurrent use.
type Table[K ID] struct {
	unknown string
	names   *container.HashMap[K, string]
}

// NewTable returns an empty Table that reports unknown for missing IDs.
func NewTable[K ID](unknown string) *Table[K] {
	return &Table[K]{
		unknown: unknown,
		names:   container.NewHashMap[K, string](func(k K) uint32 { return container.HashU32(uint32(k)) }),
	}
}

// Add stores name for id, unless id already has a name. It returns true if
// the name was stored.
func (t *Table[K]) Add(id K, name string) bool {
	_, inserted := t.names.InsertIfNew(id, name)
	return inserted
}

// Lookup returns the name of id, if one is known.
func (t *Table[K]) Lookup(id K) (string, bool) { return t.names.Find(id) }

// Name returns the name of id, or the table's unknown sentinel.
func (t *Table[K]) Name(id K) string {
	if name, ok := t.names.Find(id); ok {
		return name
	}
	return t.unknown
}

// ID returns the first ID whose name is name. Tables hold tens of entries, so
// this is a linear scan.
func (t *Table[K]) ID(name string) (id K, ok bool) {
	t.names.Range(func(k K, v string) bool {
		if v == name {
			id, ok = k, true
			return false
		}
		return true
	})
	return
}

// Len returns the number of entries.
func (t *Table[K]) Len() int { return t.names.Count() }

// IDs returns every ID in ascending order.
func (t *Table[K]) IDs() []K {
	ids := t.names.Keys()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Range calls fn for every entry in ascending ID order until fn returns false.
func (t *Table[K]) Range(fn func(id K, name string) bool) {
	for _, id := range t.IDs() {
		name, _ := t.names.Find(id)
		if !fn(id, name) {
			return
		}
	}
}

// Equal returns true if t and o hold the same entries.
func (t *Table[K]) Equal(o *Table[K]) bool {
	if t.Len() != o.Len() {
		return false
	}
	equal := true
	t.names.Range(func(k K, v string) bool {
		ov, ok := o.names.Find(k)
		equal = ok && ov == v
		return equal
	})
	return equal
}

// specificKey identifies a fighter-specific status.
type specificKey struct {
	fighter FighterID
	status  StatusID
}

// StatusTable maps fighter status codes to names.
//
// Statuses shared by every fighter live in a base table. Fighters may also
// have statuses of their own, stored per (fighter, status) pair; these take
// precedence over the base table.
type StatusTable struct {
	base     *Table[StatusID]
	specific *container.HashMap[specificKey, string]
}

// NewStatusTable returns an empty StatusTable.
func NewStatusTable() *StatusTable {
	return &StatusTable{
		base: NewTable[StatusID](UnknownStatus),
		specific: container.NewHashMap[specificKey, string](func(k specificKey) uint32 {
			return container.HashPair(uint32(k.fighter), uint32(k.status))
		}),
	}
}

// AddBase stores a status name shared by every fighter.
func (st *StatusTable) AddBase(status StatusID, name string) bool { return st.base.Add(status, name) }

// AddSpecific stores a status name used only by fighter.
func (st *StatusTable) AddSpecific(fighter FighterID, status StatusID, name string) bool {
	_, inserted := st.specific.InsertIfNew(specificKey{fighter, status}, name)
	return inserted
}

// Lookup returns the name of status for fighter, trying the fighter's own
// statuses first and then the base table.
func (st *StatusTable) Lookup(fighter FighterID, status StatusID) (string, bool) {
	if name, ok := st.specific.Find(specificKey{fighter, status}); ok {
		return name, true
	}
	return st.base.Lookup(status)
}

// Name is like Lookup, but returns UnknownStatus if the status is not known.
func (st *StatusTable) Name(fighter FighterID, status StatusID) string {
	if name, ok := st.Lookup(fighter, status); ok {
		return name
	}
	return UnknownStatus
}

// Base returns the table of statuses shared by every fighter.
func (st *StatusTable) Base() *Table[StatusID] { return st.base }

// SpecificLen returns the number of fighter-specific entries.
func (st *StatusTable) SpecificLen() int { return st.specific.Count() }

// SpecificFighters returns every fighter with specific statuses, ascending.
func (st *StatusTable) SpecificFighters() []FighterID {
	seen := make(map[FighterID]struct{})
	st.specific.Range(func(k specificKey, _ string) bool {
		seen[k.fighter] = struct{}{}
		return true
	})
	fighters := make([]FighterID, 0, len(seen))
	for f := range seen {
		fighters = append(fighters, f)
	}
	sort.Slice(fighters, func(i, j int) bool { return fighters[i] < fighters[j] })
	return fighters
}

// RangeSpecific calls fn for every status specific to fighter, in ascending
// status order.
func (st *StatusTable) RangeSpecific(fighter FighterID, fn func(status StatusID, name string) bool) {
	var statuses []StatusID
	st.specific.Range(func(k specificKey, _ string) bool {
		if k.fighter == fighter {
			statuses = append(statuses, k.status)
		}
		return true
	})
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		name, _ := st.specific.Find(specificKey{fighter, s})
		if !fn(s, name) {
			return
		}
	}
}

// Equal returns true if st and o hold the same entries.
func (st *StatusTable) Equal(o *StatusTable) bool {
	if !st.base.Equal(o.base) || st.specific.Count() != o.specific.Count() {
		return false
	}
	equal := true
	st.specific.Range(func(k specificKey, v string) bool {
		ov, ok := o.specific.Find(k)
		equal = ok && ov == v
		return equal
	})
	return equal
}

// Info is the full set of mapping tables for a session.
type Info struct {
	// Checksum is the mapping checksum announced by the capture device, or 0.
	Checksum uint32

	Fighter   *Table[FighterID]
	Stage     *Table[StageID]
	HitStatus *Table[HitStatusID]
	Status    *StatusTable
}

// NewInfo returns an Info with empty tables.
func NewInfo(checksum uint32) *Info {
	return &Info{
		Checksum:  checksum,
		Fighter:   NewTable[FighterID](UnknownFighter),
		Stage:     NewTable[StageID](UnknownStage),
		HitStatus: NewTable[HitStatusID](UnknownHitStatus),
		Status:    NewStatusTable(),
	}
}

// Equal returns true if mi and o hold the same entries. Checksums are not
// compared.
func (mi *Info) Equal(o *Info) bool {
	return mi.Fighter.Equal(o.Fighter) &&
		mi.Stage.Equal(o.Stage) &&
		mi.HitStatus.Equal(o.HitStatus) &&
		mi.Status.Equal(o.Status)
}
