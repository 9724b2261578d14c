// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package rfr reads and writes the chunked replay container.
//
// A container starts with the magic "RFR1" and a content table of up to 255
// entries, each naming a chunk by a four-byte type and locating it by offset
// and size:
//
//	"RFR1" u8:count { [4]byte:type u32le:offset u32le:size }*count chunks...
//
// Three chunk types are understood. META holds the session metadata as a
// 1.5 document without player states. MAPI holds the mapping tables. FDAT
// holds the frames:
//
//	u8:major u8:minor u32le:size zlib(u32le:frameCount u8:fighterCount records...)
//
// where records are stored frame-major, every fighter's frame i before any
// fighter's frame i+1. Unknown chunks are skipped.
package rfr

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/replay/compression"
	"github.com/reframedultimate/ReFramed-sub002/replay/savefile"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/byteslicereader"
)

// Magic identifies a container.
const Magic = "RFR1"

// Chunk types.
var (
	TypeMeta    = ChunkType{'M', 'E', 'T', 'A'}
	TypeMapping = ChunkType{'M', 'A', 'P', 'I'}
	TypeFrames  = ChunkType{'F', 'D', 'A', 'T'}
)

// Frame data version.
const (
	FramesMajor = 1
	FramesMinor = 5
)

// ChunkType names a chunk.
type ChunkType [4]byte

func (t ChunkType) String() string { return string(t[:]) }

type header struct {
	Magic [4]byte
	Count uint8
}

// Entry is one row of the content table.
type Entry struct {
	Type   ChunkType
	Offset uint32 `struc:",little"`
	Size   uint32 `struc:",little"`
}

const (
	headerSize = 5
	entrySize  = 12
)

type framesHeader struct {
	Major uint8
	Minor uint8
}

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(savefile.ErrMalformedInput, format, args...)
}

// IsContainer returns true if data starts with the container magic.
func IsContainer(data []byte) bool { return bytes.HasPrefix(data, []byte(Magic)) }

// Table reads the content table of data and checks that every entry lies
// within it.
func Table(data []byte) ([]Entry, error) {
	r := bytes.NewReader(data)

	var h header
	if err := struc.Unpack(r, &h); err != nil {
		return nil, malformed("reading header: %s", err)
	}
	if string(h.Magic[:]) != Magic {
		return nil, malformed("bad magic %q", h.Magic[:])
	}

	entries := make([]Entry, h.Count)
	for i := range entries {
		if err := struc.Unpack(r, &entries[i]); err != nil {
			return nil, malformed("reading table entry %d: %s", i, err)
		}
		e := &entries[i]
		if uint64(e.Offset)+uint64(e.Size) > uint64(len(data)) {
			return nil, malformed("chunk %s [%d, +%d) exceeds %d bytes", e.Type, e.Offset, e.Size, len(data))
		}
	}
	return entries, nil
}

func chunk(data []byte, entries []Entry, t ChunkType) ([]byte, bool) {
	for _, e := range entries {
		if e.Type == t {
			return data[e.Offset : e.Offset+e.Size], true
		}
	}
	return nil, false
}

// Read decodes a container.
func Read(data []byte) (*session.Session, error) {
	entries, err := Table(data)
	if err != nil {
		return nil, err
	}

	meta, ok := chunk(data, entries, TypeMeta)
	if !ok {
		return nil, malformed("no %s chunk", TypeMeta)
	}
	md, err := savefile.DecodeMetaData(meta)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", TypeMeta)
	}

	info := mapping.NewInfo(0)
	if mapi, ok := chunk(data, entries, TypeMapping); ok {
		if info, err = savefile.DecodeMappingInfo(mapi); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", TypeMapping)
		}
	}

	frames := make([][]session.Frame, len(md.Players))
	if fdat, ok := chunk(data, entries, TypeFrames); ok {
		if frames, err = readFrames(fdat, len(md.Players)); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", TypeFrames)
		}
	}

	s, err := session.NewWithFrames(info, md, frames)
	if err != nil {
		return nil, errors.Wrap(savefile.ErrMalformedInput, err.Error())
	}
	s.FinalizeWinner()
	return s, nil
}

func readFrames(fdat []byte, players int) ([][]session.Frame, error) {
	var fh framesHeader
	if err := struc.Unpack(bytes.NewReader(fdat), &fh); err != nil {
		return nil, malformed("reading frame header: %s", err)
	}
	if fh.Major != FramesMajor || fh.Minor != FramesMinor {
		return nil, errors.Wrapf(savefile.ErrUnsupportedVersion, "frame data %d.%d", fh.Major, fh.Minor)
	}

	payload, err := compression.InflateLegacy(fdat[2:])
	if err != nil {
		return nil, malformed("inflating frames: %s", err)
	}

	r := byteslicereader.New(payload)
	frameCount := r.LU32()
	fighterCount := int(r.U8())
	if err := r.Err(); err != nil {
		return nil, malformed("reading frame counts: %s", err)
	}
	if fighterCount != players {
		return nil, malformed("frames for %d fighters, metadata has %d", fighterCount, players)
	}
	if uint64(frameCount)*uint64(fighterCount)*savefile.FrameRecordSize != uint64(r.Remaining()) {
		return nil, malformed("%d frames of %d fighters do not fit %d bytes", frameCount, fighterCount, r.Remaining())
	}

	frames := make([][]session.Frame, players)
	for p := range frames {
		frames[p] = make([]session.Frame, 0, frameCount)
	}
	for i := uint32(0); i < frameCount; i++ {
		for p := range frames {
			f, err := savefile.ReadFrameRecord(r)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d of fighter %d", i, p)
			}
			frames[p] = append(frames[p], f)
		}
	}
	return frames, nil
}

// Write encodes s as a container. level is the zlib level of the frame
// chunk, or compression.DefaultLevel.
//
// Frames are stored frame-major, so every player must have the same number
// of frames.
func Write(w io.Writer, s *session.Session, level int) error {
	meta, err := savefile.EncodeMetaData(s.MetaData())
	if err != nil {
		return err
	}
	mapi, err := savefile.EncodeMappingInfo(s.MappingInfo())
	if err != nil {
		return err
	}
	fdat, err := encodeFrames(s, level)
	if err != nil {
		return err
	}

	chunks := []struct {
		t    ChunkType
		data []byte
	}{
		{TypeMeta, meta},
		{TypeMapping, mapi},
		{TypeFrames, fdat},
	}

	h := header{Count: uint8(len(chunks))}
	copy(h.Magic[:], Magic)
	if err := struc.Pack(w, &h); err != nil {
		return errors.Wrap(err, "writing header")
	}

	offset := uint32(headerSize + entrySize*len(chunks))
	for _, c := range chunks {
		e := Entry{Type: c.t, Offset: offset, Size: uint32(len(c.data))}
		if err := struc.Pack(w, &e); err != nil {
			return errors.Wrapf(err, "writing table entry %s", c.t)
		}
		offset += e.Size
	}
	for _, c := range chunks {
		if _, err := w.Write(c.data); err != nil {
			return errors.Wrapf(err, "writing chunk %s", c.t)
		}
	}
	return nil
}

func encodeFrames(s *session.Session, level int) ([]byte, error) {
	players := s.FighterCount()
	frames := make([][]session.Frame, players)
	for p := range frames {
		frames[p] = s.Frames(p)
		if len(frames[p]) != len(frames[0]) {
			return nil, errors.Errorf("player %d has %d frames, player 0 has %d", p, len(frames[p]), len(frames[0]))
		}
	}
	frameCount := 0
	if players > 0 {
		frameCount = len(frames[0])
	}

	payload := make([]byte, 0, 5+frameCount*players*savefile.FrameRecordSize)
	payload = append(payload, byte(frameCount), byte(frameCount>>8), byte(frameCount>>16), byte(frameCount>>24), byte(players))
	for i := 0; i < frameCount; i++ {
		for p := range frames {
			payload = savefile.AppendFrameRecord(payload, &frames[p][i])
		}
	}

	var buf bytes.Buffer
	if err := struc.Pack(&buf, &framesHeader{Major: FramesMajor, Minor: FramesMinor}); err != nil {
		return nil, err
	}
	if err := compression.Compress(&buf, compression.DeflateLegacy, payload, level); err != nil {
		return nil, errors.Wrap(err, "compressing frames")
	}
	return buf.Bytes(), nil
}
