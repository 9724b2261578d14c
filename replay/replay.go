// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package replay loads and saves replay files in any supported format, and
// records and plays back live sessions.
//
// A replay on disk is either a chunked container (see package rfr) or a JSON
// document (see package savefile) inside an optional compression layer (see
// package compression). Load tells them apart by content, never by name.
package replay

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/replay/compression"
	"github.com/reframedultimate/ReFramed-sub002/replay/rfr"
	"github.com/reframedultimate/ReFramed-sub002/replay/savefile"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/stagingdir"
)

// LoadError is returned by Load and LoadFile when a replay cannot be loaded.
type LoadError struct {
	// Path is the loaded file, if any.
	Path string
	// Err is the underlying error. Its cause is one of the savefile or
	// compression sentinel errors where one applies.
	Err error
}

func (e *LoadError) Error() string { return "could not load replay: " + e.Err.Error() }

// Cause returns the underlying error, for errors.Cause.
func (e *LoadError) Cause() error { return e.Err }

// Unwrap returns the underlying error, for errors.Is and errors.As.
func (e *LoadError) Unwrap() error { return e.Err }

func loadFailed(path string, err error) error {
	loadErrors.Inc()
	return &LoadError{Path: path, Err: err}
}

// Load decodes a replay.
func Load(data []byte) (*session.Session, error) { return load("", data) }

// LoadFile reads and decodes the replay at path.
func LoadFile(path string) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadFailed(path, err)
	}
	return load(path, data)
}

func load(path string, data []byte) (*session.Session, error) {
	if rfr.IsContainer(data) {
		s, err := rfr.Read(data)
		if err != nil {
			return nil, loadFailed(path, err)
		}
		loads.WithLabelValues("rfr").Inc()
		return s, nil
	}

	doc, c, err := compression.Resolve(data)
	if err != nil {
		return nil, loadFailed(path, err)
	}
	s, err := savefile.Decode(doc)
	if err != nil {
		return nil, loadFailed(path, err)
	}
	loads.WithLabelValues(c.String()).Inc()
	return s, nil
}

// Format is an on-disk replay format.
type Format int

// Supported formats.
const (
	// FormatRFR is the chunked container.
	FormatRFR Format = iota
	// FormatJSON is a versioned JSON document.
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatRFR:
		return "rfr"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name, ignoring case.
func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(v) {
	case "rfr":
		return FormatRFR, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, errors.Errorf("unknown replay format: %q", v)
	}
}

// SaveOptions controls how a replay is written.
//
// The zero value writes a container with default compression.
type SaveOptions struct {
	Format Format

	// Version is the schema version of a FormatJSON document.
	Version savefile.Version
	// Compression is the outer layer of a FormatJSON document.
	Compression compression.Compression

	// Level is the compression level, or 0 for the default.
	Level int
}

// DefaultSaveOptions writes the newest format.
var DefaultSaveOptions = SaveOptions{
	Format:      FormatRFR,
	Version:     savefile.Latest,
	Compression: compression.Gzip,
}

func (o *SaveOptions) level() int {
	if o.Level == 0 {
		return compression.DefaultLevel
	}
	return o.Level
}

// Save writes s to w.
func Save(w io.Writer, s *session.Session, opts SaveOptions) error {
	var err error
	switch opts.Format {
	case FormatRFR:
		err = rfr.Write(w, s, opts.level())

	case FormatJSON:
		var doc []byte
		if doc, err = savefile.Encode(s, opts.Version); err == nil {
			err = compression.Compress(w, opts.Compression, doc, opts.level())
		}

	default:
		err = errors.Errorf("unknown replay format %d", int(opts.Format))
	}

	if err != nil {
		saveErrors.Inc()
		return errors.Wrapf(err, "saving %s replay", opts.Format)
	}
	saves.WithLabelValues(opts.Format.String()).Inc()
	return nil
}

// Marshal returns s encoded with opts.
func Marshal(s *session.Session, opts SaveOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Save(&buf, s, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveFile atomically writes s to path. An existing file is replaced.
func SaveFile(path string, s *session.Session, opts SaveOptions) error {
	sf, err := stagingdir.New(filepath.Dir(path), stagingPrefix())
	if err != nil {
		return err
	}
	defer func() { _ = sf.Destroy() }()

	if err := Save(sf, s, opts); err != nil {
		return err
	}
	return sf.Commit(path)
}
