// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package compression detects and removes the outer compression layer of a
// replay file, and applies one when writing.
//
// Replay files carry no marker naming their compression. Resolve tries each
// known container in a fixed order and returns the first that decodes:
//
//   - gzip, recognised by its magic bytes;
//   - the legacy format, a 4-byte little-endian uncompressed length followed
//     by a zlib (or raw deflate) stream;
//   - zstd and framed snappy, recognised by their magic bytes;
//   - uncompressed JSON text.
package compression

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Compression is an outer compression layer.
type Compression int

// Supported compression layers.
const (
	None Compression = iota
	Gzip
	DeflateLegacy
	Zstd
	Snappy
)

var compressionNames = [...]string{
	None:          "none",
	Gzip:          "gzip",
	DeflateLegacy: "deflate",
	Zstd:          "zstd",
	Snappy:        "snappy",
}

func (c Compression) String() string {
	if c < 0 || int(c) >= len(compressionNames) {
		return "unknown"
	}
	return compressionNames[c]
}

// ParseCompression parses a compression name, ignoring case.
func ParseCompression(v string) (Compression, error) {
	for i, name := range compressionNames {
		if strings.EqualFold(name, v) {
			return Compression(i), nil
		}
	}
	return None, errors.Errorf("unknown compression type: %q", v)
}

// Flag is a pflag.Value implementation that stores a Compression.
type Flag Compression

var _ pflag.Value = (*Flag)(nil)

func (f *Flag) String() string { return Compression(*f).String() }

// Set implements pflag.Value.
func (f *Flag) Set(v string) error {
	c, err := ParseCompression(v)
	if err != nil {
		return err
	}
	*f = Flag(c)
	return nil
}

// Type implements pflag.Value.
func (f *Flag) Type() string { return "compression" }

// Value returns the compression held by this flag.
func (f Flag) Value() Compression { return Compression(f) }

// FlagValues returns the list of possible values for a Flag.
func FlagValues() string { return strings.Join(compressionNames[:], ", ") }
