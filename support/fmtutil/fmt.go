// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains lazy formatting helpers for logs and reports.
//
// Each type renders only when its String method is called, so that a value
// passed to a disabled log level costs nothing to format.
package fmtutil

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// HexSlice is a byte slice that renders as "[2]byte{0x0F, 0x10}".
type HexSlice []byte

func (hs HexSlice) String() string {
	bytes := lo.Map([]byte(hs), func(b byte, _ int) string { return fmt.Sprintf("0x%02X", b) })
	return fmt.Sprintf("[%d]byte{%s}", len(hs), strings.Join(bytes, ", "))
}

// FramesPerSecond is the rate that frame counts are rendered at.
const FramesPerSecond = 60

// FrameTime is a frame count that renders as "m:ss.ff", where ff is the frame
// within the second.
type FrameTime uint64

func (ft FrameTime) String() string {
	frames := uint64(ft)
	secs := frames / FramesPerSecond
	return fmt.Sprintf("%d:%02d.%02d", secs/60, secs%60, frames%FramesPerSecond)
}
