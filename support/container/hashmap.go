// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package container

import (
	"github.com/segmentio/fasthash/fnv1a"
)

// Hash slot markers. Every other slot value is a stored hash.
const (
	slotUnused uint32 = 0
	slotRIP    uint32 = 1
)

const (
	// DefaultTableSize is the number of hash slots a HashMap starts with.
	DefaultTableSize = 128

	// maxLoadPercent is the load factor at which the table is doubled.
	maxLoadPercent = 70
)

// Hasher computes the hash of a key.
type Hasher[K any] func(K) uint32

// HashU8 hashes an 8-bit key.
func HashU8(v uint8) uint32 { return fnv1a.HashUint32(uint32(v)) }

// HashU16 hashes a 16-bit key.
func HashU16(v uint16) uint32 { return fnv1a.HashUint32(uint32(v)) }

// HashU32 hashes a 32-bit key.
func HashU32(v uint32) uint32 { return fnv1a.HashUint32(v) }

// HashString hashes a string key.
func HashString(v string) uint32 { return fnv1a.HashString32(v) }

// HashPair hashes a pair of small integer keys.
func HashPair(a, b uint32) uint32 { return fnv1a.AddUint32(fnv1a.HashUint32(a), b) }

// HashMap is an open-addressing hash map.
//
// Keys and values are stored in arrays parallel to a table of hash slots. Each
// slot is either unused, a tombstone (RIP) left behind by Erase, or the hash of
// the key stored at that position. Collisions are resolved with quadratic
// probing, and the table size is always a power of two, so a probe sequence
// visits every slot.
//
// The table doubles and rehashes when it reaches 70% load. Erase never
// shrinks the table.
type HashMap[K comparable, V any] struct {
	hasher Hasher[K]

	table  []uint32
	keys   []K
	values []V
	count  int
}

// NewHashMap returns an empty HashMap using hasher.
func NewHashMap[K comparable, V any](hasher Hasher[K]) *HashMap[K, V] {
	return NewHashMapSize[K, V](hasher, DefaultTableSize)
}

// NewHashMapSize returns an empty HashMap with a table of at least size slots.
func NewHashMapSize[K comparable, V any](hasher Hasher[K], size int) *HashMap[K, V] {
	if hasher == nil {
		panic("container: nil hasher")
	}
	size = nextPowerOf2(size)
	if size < 2 {
		size = 2
	}
	return &HashMap[K, V]{
		hasher: hasher,
		table:  make([]uint32, size),
		keys:   make([]K, size),
		values: make([]V, size),
	}
}

// Count returns the number of stored entries.
func (m *HashMap[K, V]) Count() int { return m.count }

// TableSize returns the number of hash slots.
func (m *HashMap[K, V]) TableSize() int { return len(m.table) }

func (m *HashMap[K, V]) hash(key K) uint32 {
	h := m.hasher(key)
	if h == slotUnused || h == slotRIP {
		h += 2
	}
	return h
}

func (m *HashMap[K, V]) mask() uint32 { return uint32(len(m.table) - 1) }

// findSlot returns the position holding key, or -1.
func (m *HashMap[K, V]) findSlot(key K) int {
	h := m.hash(key)
	pos := h & m.mask()
	for i := uint32(0); i < uint32(len(m.table)); {
		switch m.table[pos] {
		case slotUnused:
			return -1
		case h:
			if m.keys[pos] == key {
				return int(pos)
			}
		}

		i++
		pos = (pos + i) & m.mask()
	}
	return -1
}

// findInsertSlot walks the probe path of key. If key is present, its position
// is returned with found set. Otherwise the returned position is the first
// tombstone seen on the path, or the terminating unused slot.
func (m *HashMap[K, V]) findInsertSlot(key K, h uint32) (pos int, found bool) {
	p := h & m.mask()
	tombstone := -1
	for i := uint32(0); i < uint32(len(m.table)); {
		switch m.table[p] {
		case slotUnused:
			if tombstone >= 0 {
				return tombstone, false
			}
			return int(p), false
		case slotRIP:
			if tombstone < 0 {
				tombstone = int(p)
			}
		case h:
			if m.keys[p] == key {
				return int(p), true
			}
		}

		i++
		p = (p + i) & m.mask()
	}

	// Every slot was visited without finding an unused one. The load limit
	// guarantees a tombstone exists in that case.
	return tombstone, false
}

func (m *HashMap[K, V]) growIfNeeded() {
	if (m.count+1)*100 >= len(m.table)*maxLoadPercent {
		m.resize(len(m.table) * 2)
	}
}

// resize reallocates the table to size slots and reinserts every entry by
// recomputing its probe position.
func (m *HashMap[K, V]) resize(size int) {
	oldTable, oldKeys, oldValues := m.table, m.keys, m.values

	m.table = make([]uint32, size)
	m.keys = make([]K, size)
	m.values = make([]V, size)

	for old, h := range oldTable {
		if h == slotUnused || h == slotRIP {
			continue
		}

		pos := h & m.mask()
		for i := uint32(0); m.table[pos] != slotUnused; {
			i++
			pos = (pos + i) & m.mask()
		}
		m.table[pos] = h
		m.keys[pos] = oldKeys[old]
		m.values[pos] = oldValues[old]
	}
}

func (m *HashMap[K, V]) insert(key K, value V) (*V, bool) {
	m.growIfNeeded()

	h := m.hash(key)
	pos, found := m.findInsertSlot(key, h)
	if found {
		return &m.values[pos], false
	}

	m.table[pos] = h
	m.keys[pos] = key
	m.values[pos] = value
	m.count++
	return &m.values[pos], true
}

// InsertIfNew stores value under key if key is not already present.
//
// It returns a pointer to the stored value and true if the entry was
// inserted. If key already exists, the map is not modified and the pointer
// refers to the existing value, returned with false.
//
// The returned pointer is invalidated by the next insertion.
func (m *HashMap[K, V]) InsertIfNew(key K, value V) (*V, bool) {
	if pos := m.findSlot(key); pos >= 0 {
		return &m.values[pos], false
	}
	return m.insert(key, value)
}

// InsertOrGet returns a pointer to the value stored under key, first
// inserting def if key is not present.
//
// The returned pointer is invalidated by the next insertion.
func (m *HashMap[K, V]) InsertOrGet(key K, def V) *V {
	v, _ := m.InsertIfNew(key, def)
	return v
}

// Find returns the value stored under key.
func (m *HashMap[K, V]) Find(key K) (v V, ok bool) {
	if pos := m.findSlot(key); pos >= 0 {
		return m.values[pos], true
	}
	return
}

// Contains returns true if key is present.
func (m *HashMap[K, V]) Contains(key K) bool { return m.findSlot(key) >= 0 }

// Erase removes key, leaving a tombstone in its slot. It returns true if key
// was present.
func (m *HashMap[K, V]) Erase(key K) bool {
	pos := m.findSlot(key)
	if pos < 0 {
		return false
	}

	var (
		zeroK K
		zeroV V
	)
	m.table[pos] = slotRIP
	m.keys[pos] = zeroK
	m.values[pos] = zeroV
	m.count--
	return true
}

// Range calls fn for every entry in table order until fn returns false.
func (m *HashMap[K, V]) Range(fn func(key K, value V) bool) {
	for pos, h := range m.table {
		if h == slotUnused || h == slotRIP {
			continue
		}
		if !fn(m.keys[pos], m.values[pos]) {
			return
		}
	}
}

// Keys returns every key in table order.
func (m *HashMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.count)
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Clear removes every entry, keeping the current table size.
func (m *HashMap[K, V]) Clear() {
	var (
		zeroK K
		zeroV V
	)
	for i := range m.table {
		m.table[i] = slotUnused
		m.keys[i] = zeroK
		m.values[i] = zeroV
	}
	m.count = 0
}
