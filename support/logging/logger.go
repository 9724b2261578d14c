// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package logging defines L, the logging interface accepted by every library
// package, and adapters that back it.
package logging

import (
	"fmt"
)

// L accepts logging data at four levels. The f-suffixed variants take a
// format string.
//
// Most sugared loggers satisfy L directly. Zerolog adapts a zerolog.Logger.
type L interface {
	Error(args ...interface{})
	Warn(args ...interface{})
	Info(args ...interface{})
	Debug(args ...interface{})

	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Nop discards everything.
var Nop L = nop{}

// Must returns l, or Nop if l is nil.
func Must(l L) L {
	if l == nil {
		return Nop
	}
	return l
}

// Prefixed returns an L that writes to base with prefix before each message.
// A nil base yields Nop.
func Prefixed(base L, prefix string) L {
	if base == nil || base == Nop {
		return Nop
	}
	return &prefixed{base: base, prefix: prefix}
}

type prefixed struct {
	base   L
	prefix string
}

func (p *prefixed) msg(args []interface{}) string { return p.prefix + fmt.Sprint(args...) }

func (p *prefixed) Error(args ...interface{}) { p.base.Error(p.msg(args)) }
func (p *prefixed) Warn(args ...interface{})  { p.base.Warn(p.msg(args)) }
func (p *prefixed) Info(args ...interface{})  { p.base.Info(p.msg(args)) }
func (p *prefixed) Debug(args ...interface{}) { p.base.Debug(p.msg(args)) }

func (p *prefixed) Errorf(format string, args ...interface{}) {
	p.base.Errorf(p.prefix+format, args...)
}

func (p *prefixed) Warnf(format string, args ...interface{}) {
	p.base.Warnf(p.prefix+format, args...)
}

func (p *prefixed) Infof(format string, args ...interface{}) {
	p.base.Infof(p.prefix+format, args...)
}

func (p *prefixed) Debugf(format string, args ...interface{}) {
	p.base.Debugf(p.prefix+format, args...)
}

type nop struct{}

func (nop) Error(...interface{}) {}
func (nop) Warn(...interface{})  {}
func (nop) Info(...interface{})  {}
func (nop) Debug(...interface{}) {}

func (nop) Errorf(string, ...interface{}) {}
func (nop) Warnf(string, ...interface{})  {}
func (nop) Infof(string, ...interface{})  {}
func (nop) Debugf(string, ...interface{}) {}
