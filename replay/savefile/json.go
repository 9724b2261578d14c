// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package savefile

import (
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// object is a decoded JSON object. Its accessors fail with ErrMalformedInput
// when a key is missing or holds the wrong type.
type object map[string]interface{}

func (o object) has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o object) value(key string) (interface{}, error) {
	v, ok := o[key]
	if !ok {
		return nil, malformed("missing key %q", key)
	}
	return v, nil
}

func (o object) object(key string) (object, error) {
	v, err := o.value(key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, malformed("key %q is not an object", key)
	}
	return object(m), nil
}

// nullableObject is like object, but a null value yields a nil object.
func (o object) nullableObject(key string) (object, error) {
	v, err := o.value(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, malformed("key %q is not an object or null", key)
	}
	return object(m), nil
}

func (o object) array(key string) ([]interface{}, error) {
	v, err := o.value(key)
	if err != nil {
		return nil, err
	}
	a, ok := v.([]interface{})
	if !ok {
		return nil, malformed("key %q is not an array", key)
	}
	return a, nil
}

func (o object) str(key string) (string, error) {
	v, err := o.value(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("key %q is not a string", key)
	}
	return s, nil
}

// optionalStr returns the string at key, or "" if key is absent.
func (o object) optionalStr(key string) (string, error) {
	if !o.has(key) {
		return "", nil
	}
	return o.str(key)
}

func (o object) integer(key string) (int64, error) {
	v, err := o.value(key)
	if err != nil {
		return 0, err
	}
	n, ok := toInteger(v)
	if !ok {
		return 0, malformed("key %q is not an integer", key)
	}
	return n, nil
}

// bounded returns the integer at key, checked against [lo, hi].
func (o object) bounded(key string, lo, hi int64) (int64, error) {
	n, err := o.integer(key)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, malformed("key %q value %d out of range [%d, %d]", key, n, lo, hi)
	}
	return n, nil
}

func toInteger(v interface{}) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// parseKey parses a mapping table key. Keys are base-10 integers that must
// fit in bits; anything else, including trailing characters, is rejected.
func parseKey(key string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(key, 10, bits)
	if err != nil {
		return 0, malformed("invalid ID %q", key)
	}
	return n, nil
}

// parseName decodes a mapping table value. Values are either a name or the
// historical [enumName, shortName, customName] array, of which only enumName
// is kept.
func parseName(key string, v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []interface{}:
		if len(t) != 3 {
			return "", malformed("ID %q: expected 3 names, got %d", key, len(t))
		}
		for _, e := range t {
			if _, ok := e.(string); !ok {
				return "", malformed("ID %q: names must be strings", key)
			}
		}
		return t[0].(string), nil
	default:
		return "", malformed("ID %q: value is not a name", key)
	}
}

// elementObject checks that element i of an array is an object.
func elementObject(a []interface{}, i int, what string) (object, error) {
	m, ok := a[i].(map[string]interface{})
	if !ok {
		return nil, malformed("%s %d is not an object", what, i)
	}
	return object(m), nil
}
