// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Zerolog is an L backed by a zerolog.Logger.
type Zerolog struct {
	Logger zerolog.Logger
}

var _ L = (*Zerolog)(nil)

// NewZerolog returns a Zerolog writing to w at level.
//
// If console is true, entries are rendered for humans. Otherwise they are
// written as JSON lines.
func NewZerolog(w io.Writer, level zerolog.Level, console bool) *Zerolog {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return &Zerolog{
		Logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// NewZerologStderr is NewZerolog writing to stderr, choosing console output
// when stderr is a terminal.
func NewZerologStderr(level zerolog.Level) *Zerolog {
	console := false
	if fi, err := os.Stderr.Stat(); err == nil {
		console = fi.Mode()&os.ModeCharDevice != 0
	}
	return NewZerolog(os.Stderr, level, console)
}

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(v string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(v)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", v)
	}
	return lvl, nil
}

// With returns a Zerolog that adds key=value to every entry.
func (z *Zerolog) With(key string, value interface{}) *Zerolog {
	return &Zerolog{Logger: z.Logger.With().Interface(key, value).Logger()}
}

func (z *Zerolog) Error(args ...interface{}) { z.Logger.Error().Msg(fmt.Sprint(args...)) }
func (z *Zerolog) Warn(args ...interface{})  { z.Logger.Warn().Msg(fmt.Sprint(args...)) }
func (z *Zerolog) Info(args ...interface{})  { z.Logger.Info().Msg(fmt.Sprint(args...)) }
func (z *Zerolog) Debug(args ...interface{}) { z.Logger.Debug().Msg(fmt.Sprint(args...)) }

func (z *Zerolog) Errorf(f string, args ...interface{}) { z.Logger.Error().Msgf(f, args...) }
func (z *Zerolog) Warnf(f string, args ...interface{})  { z.Logger.Warn().Msgf(f, args...) }
func (z *Zerolog) Infof(f string, args ...interface{})  { z.Logger.Info().Msgf(f, args...) }
func (z *Zerolog) Debugf(f string, args ...interface{}) { z.Logger.Debug().Msgf(f, args...) }
