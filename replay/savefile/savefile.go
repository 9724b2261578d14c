// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package savefile decodes and encodes the JSON replay schema in each of its
// historical versions.
//
// A replay is a JSON document with a "version" string. The version selects
// the document shape and the binary layout of the base64 "playerstates" blob;
// key presence is never used to guess a shape. Each version is decoded by its
// own routine which validates every key it reads, so a malformed document
// fails as a whole and never yields a partial session.
//
// Frame timestamps
//
// Versions before 1.4 did not store per-frame timestamps. Their frames are
// given timestamps reconstructed from the session start time, assuming 60
// frames per second. These are an approximation: game pauses and lag are not
// accounted for.
package savefile

import (
	"bytes"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/session"
)

var (
	// ErrMalformedInput is the cause of errors for documents that are not
	// valid replays: missing or mistyped keys, bad IDs, or truncated or
	// mis-sized frame data.
	ErrMalformedInput = errors.New("malformed input")

	// ErrUnsupportedVersion is the cause of errors for documents with an
	// unknown version string.
	ErrUnsupportedVersion = errors.New("unsupported version")
)

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedInput, format, args...)
}

// Version is a replay schema version.
type Version int

// Known schema versions, oldest first.
const (
	V1_0 Version = iota
	V1_1
	V1_2
	V1_3
	V1_4
	V1_5

	versionCount
)

// Latest is the newest schema version.
const Latest = V1_5

var versionNames = [versionCount]string{
	V1_0: "1.0",
	V1_1: "1.1",
	V1_2: "1.2",
	V1_3: "1.3",
	V1_4: "1.4",
	V1_5: "1.5",
}

func (v Version) String() string {
	if v < 0 || v >= versionCount {
		return "unknown"
	}
	return versionNames[v]
}

// Valid returns true if v is a known version.
func (v Version) Valid() bool { return v >= 0 && v < versionCount }

// ParseVersion parses a version string such as "1.3".
func ParseVersion(s string) (Version, error) {
	for i, name := range versionNames {
		if name == s {
			return Version(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedVersion, "version %q", s)
}

// Versions returns every known version, oldest first.
func Versions() []Version {
	vs := make([]Version, versionCount)
	for i := range vs {
		vs[i] = Version(i)
	}
	return vs
}

type decodeFunc func(doc object) (*session.Session, error)
type encodeFunc func(s *session.Session) (interface{}, error)

// codecs maps each version to its routines. Its size is fixed by
// versionCount, so adding a version without routines fails to compile.
var codecs = [versionCount]struct {
	decode decodeFunc
	encode encodeFunc
}{
	V1_0: {decodeLegacy(V1_0), encodeLegacy(V1_0)},
	V1_1: {decodeLegacy(V1_1), encodeLegacy(V1_1)},
	V1_2: {decodeLegacy(V1_2), encodeLegacy(V1_2)},
	V1_3: {decodeLegacy(V1_3), encodeLegacy(V1_3)},
	V1_4: {decodeLegacy(V1_4), encodeLegacy(V1_4)},
	V1_5: {decodeConsolidated, encodeConsolidated},
}

// parseDocument parses data as a JSON object, keeping numbers as json.Number.
func parseDocument(data []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrapf(ErrMalformedInput, "parsing JSON: %s", err)
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, malformed("document is not a JSON object")
	}
	return object(doc), nil
}

// DetectVersion returns the schema version of data.
func DetectVersion(data []byte) (Version, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return 0, err
	}
	return documentVersion(doc)
}

func documentVersion(doc object) (Version, error) {
	s, err := doc.str("version")
	if err != nil {
		return 0, err
	}
	return ParseVersion(s)
}

// Decode decodes a replay document.
//
// The returned session's winner has been computed from its final frames.
func Decode(data []byte) (*session.Session, error) {
	s, _, err := DecodeVersion(data)
	return s, err
}

// DecodeVersion is like Decode, but also returns the document's version.
func DecodeVersion(data []byte) (*session.Session, Version, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, 0, err
	}
	v, err := documentVersion(doc)
	if err != nil {
		return nil, 0, err
	}

	s, err := codecs[v].decode(doc)
	if err != nil {
		return nil, v, errors.Wrapf(err, "decoding version %s", v)
	}
	s.FinalizeWinner()
	return s, v, nil
}

// Encode encodes s as a version v document.
//
// Older versions cannot represent everything a session holds. Fields a
// version has no place for are dropped, and for versions without per-frame
// timestamps the frame timestamps are not stored.
func Encode(s *session.Session, v Version) ([]byte, error) {
	if !v.Valid() {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", int(v))
	}

	doc, err := codecs[v].encode(s)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding version %s", v)
	}
	return marshal(doc)
}

func marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling JSON")
	}
	return data, nil
}

// Upgrade decodes data and re-encodes it as version to. Downgrades are
// refused.
func Upgrade(data []byte, to Version) ([]byte, error) {
	if !to.Valid() {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", int(to))
	}

	s, from, err := DecodeVersion(data)
	if err != nil {
		return nil, err
	}
	if to < from {
		return nil, errors.Errorf("cannot downgrade from %s to %s", from, to)
	}
	return Encode(s, to)
}
