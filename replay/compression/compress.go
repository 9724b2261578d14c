// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package compression

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// DefaultLevel selects each format's default compression level.
const DefaultLevel = -1

// Compress writes data to dst wrapped in compression c.
//
// level is passed to formats that support levels; DefaultLevel selects the
// format's default. Snappy ignores it.
func Compress(dst io.Writer, c Compression, data []byte, level int) error {
	switch c {
	case None:
		_, err := dst.Write(data)
		return err

	case Gzip:
		if level < 0 {
			level = gzip.DefaultCompression
		}
		zw, err := gzip.NewWriterLevel(dst, level)
		if err != nil {
			return errors.Wrap(err, "creating gzip writer")
		}
		return writeAndClose(zw, data)

	case DeflateLegacy:
		if uint64(len(data)) > 0xFFFFFFFF {
			return errors.New("data too large for a legacy length prefix")
		}
		var prefix [4]byte
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
		if _, err := dst.Write(prefix[:]); err != nil {
			return err
		}

		if level < 0 {
			level = zlib.DefaultCompression
		}
		zw, err := zlib.NewWriterLevel(dst, level)
		if err != nil {
			return errors.Wrap(err, "creating zlib writer")
		}
		return writeAndClose(zw, data)

	case Zstd:
		opts := []zstd.EOption{}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		zw, err := zstd.NewWriter(dst, opts...)
		if err != nil {
			return errors.Wrap(err, "creating zstd writer")
		}
		return writeAndClose(zw, data)

	case Snappy:
		return writeAndClose(snappy.NewBufferedWriter(dst), data)

	default:
		return errors.Errorf("unknown compression: %s", c)
	}
}

func writeAndClose(w io.WriteCloser, data []byte) error {
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "compressing")
	}
	return errors.Wrap(w.Close(), "flushing compressed stream")
}
