// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package compression

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/support/bufferpool"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// ErrCompressionMismatch is the cause of the error returned when no strategy
// could decode the input.
var ErrCompressionMismatch = errors.New("compression mismatch")

// ChunkSize is the size of the chunks decompressed streams are read in.
const ChunkSize = 64 * 1024

var (
	gzipMagic   = []byte{0x1f, 0x8b}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}
	utf8BOM     = []byte{0xef, 0xbb, 0xbf}
)

var chunks = bufferpool.Pool{Size: ChunkSize}

type strategy struct {
	c      Compression
	decode func([]byte) ([]byte, error)
}

// strategies are tried in order. The magic-checked containers never match
// JSON text, so they cannot shadow verbatim input.
var strategies = []strategy{
	{Gzip, decodeGzip},
	{DeflateLegacy, decodeDeflateLegacy},
	{Zstd, decodeZstd},
	{Snappy, decodeSnappy},
	{None, decodeVerbatim},
}

// Resolver removes the compression layer of replay data.
type Resolver struct {
	// Logger, if not nil, receives the reason each strategy was rejected.
	Logger logging.L
}

// Resolve returns the decompressed contents of data and the compression it
// used.
//
// If no strategy decodes data, the returned error's cause is
// ErrCompressionMismatch.
func (r *Resolver) Resolve(data []byte) ([]byte, Compression, error) {
	logger := logging.Must(r.Logger)

	for _, s := range strategies {
		out, err := s.decode(data)
		if err == nil {
			return out, s.c, nil
		}
		logger.Debugf("Input is not %s: %s", s.c, err)
	}
	return nil, None, errors.Wrapf(ErrCompressionMismatch, "none of %d formats matched", len(strategies))
}

// ResolveFile reads path and resolves its contents.
func (r *Resolver) ResolveFile(path string) ([]byte, Compression, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, None, errors.Wrapf(err, "reading %q", path)
	}
	return r.Resolve(data)
}

// Resolve is Resolver.Resolve with no logging.
func Resolve(data []byte) ([]byte, Compression, error) {
	var r Resolver
	return r.Resolve(data)
}

// ResolveFile is Resolver.ResolveFile with no logging.
func ResolveFile(path string) ([]byte, Compression, error) {
	var r Resolver
	return r.ResolveFile(path)
}

func drain(rd io.Reader, sizeHint int) ([]byte, error) {
	var out bytes.Buffer
	if sizeHint > 0 {
		out.Grow(sizeHint)
	}
	if _, err := chunks.Copy(&out, rd); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decodeGzip(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return nil, errors.New("missing gzip magic")
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "reading gzip header")
	}
	defer zr.Close()

	out, err := drain(zr, 4*len(data))
	if err != nil {
		return nil, errors.Wrap(err, "inflating gzip stream")
	}
	return out, nil
}

// InflateLegacy decodes a length-prefixed deflate stream, as written by
// Compress with DeflateLegacy.
func InflateLegacy(data []byte) ([]byte, error) {
	out, err := decodeDeflateLegacy(data)
	if err != nil {
		return nil, errors.Wrap(ErrCompressionMismatch, err.Error())
	}
	return out, nil
}

// maxDeflateRatio bounds how far a deflate stream can expand. A legacy
// prefix declaring more than this per input byte cannot be honest.
const maxDeflateRatio = 1032

func decodeDeflateLegacy(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("too short for a length prefix")
	}
	size := int64(binary.LittleEndian.Uint32(data))
	body := data[4:]
	if size > maxDeflateRatio*int64(len(body)) {
		return nil, errors.Errorf("prefix says %d bytes, more than %d input bytes can inflate to", size, len(body))
	}

	// A zero prefix is unchecked, so it is bounded by the ratio alone.
	limit := size + 1
	if size == 0 {
		limit = maxDeflateRatio*int64(len(body)) + 1
	}
	hint := int(size)
	if ceiling := 4 * len(body); hint > ceiling {
		hint = ceiling
	}

	out, err := inflateZlib(body, hint, limit)
	if err != nil {
		var rawErr error
		if out, rawErr = inflateRaw(body, hint, limit); rawErr != nil {
			return nil, errors.Wrapf(rawErr, "inflating legacy stream (zlib: %s)", err)
		}
	}

	if int64(len(out)) >= limit {
		return nil, errors.Errorf("inflated more than %d bytes", limit-1)
	}
	if size != 0 && int64(len(out)) != size {
		return nil, errors.Errorf("inflated %d bytes, prefix says %d", len(out), size)
	}
	return out, nil
}

func inflateZlib(body []byte, sizeHint int, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return drain(io.LimitReader(zr, limit), sizeHint)
}

func inflateRaw(body []byte, sizeHint int, limit int64) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(body))
	defer fr.Close()
	return drain(io.LimitReader(fr, limit), sizeHint)
}

func decodeZstd(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return nil, errors.New("missing zstd magic")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decoding zstd stream")
	}
	return out, nil
}

func decodeSnappy(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, snappyMagic) {
		return nil, errors.New("missing snappy stream identifier")
	}

	out, err := drain(snappy.NewReader(bytes.NewReader(data)), 2*len(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding snappy stream")
	}
	return out, nil
}

// decodeVerbatim accepts JSON text, optionally preceded by a UTF-8 byte order
// mark. The mark is stripped.
func decodeVerbatim(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return data, nil
		default:
			return nil, errors.Errorf("unexpected leading byte 0x%02x", b)
		}
	}
	return nil, errors.New("no JSON object")
}
