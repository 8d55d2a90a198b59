// Copyright 2024 The ProbeLua Authors
// This file is part of the ProbeLua interpreter.
//
// ProbeLua is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ProbeLua is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ProbeLua. If not, see <http://www.gnu.org/licenses/>.

// Package xlog is a small leveled logger for VM execution tracing, GC cycle
// transitions, and coroutine status changes. It is never wired into the
// hot dispatch loop itself (vm.go's runLoop steps the GC on every
// instruction unless it is stopped, but never logs per-instruction);
// callers opt into tracing explicitly.
package xlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging severity, ordered so that a lower value is more severe
// (matches the go-ethereum log15 convention the color scheme below follows).
type Lvl int

const (
	LvlError Lvl = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlError:
		return "ERRO"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DBUG"
	case LvlTrace:
		return "TRCE"
	default:
		return "????"
	}
}

var levelColor = map[Lvl]color.Attribute{
	LvlError: color.FgRed,
	LvlWarn:  color.FgYellow,
	LvlInfo:  color.FgGreen,
	LvlDebug: color.FgCyan,
	LvlTrace: color.FgMagenta,
}

// Logger writes leveled, optionally colorized lines to an underlying
// writer. The zero value is not usable; construct one with New.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	level   Lvl
	color   bool
	prefix  string
	withLoc bool // prefix each line with its caller's file:line (Trace only)
}

// New wraps w (or a colorable stdout when w is nil and the process is
// attached to a real terminal) at the given level.
func New(w io.Writer, level Lvl) *Logger {
	useColor := false
	if w == nil {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			w = colorable.NewColorableStdout()
			useColor = true
		} else {
			w = os.Stdout
		}
	}
	return &Logger{out: w, level: level, color: useColor}
}

// WithPrefix returns a copy of l that tags every line with prefix, e.g.
// "gc", "vm", "coroutine".
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{out: l.out, level: l.level, color: l.color, prefix: prefix, withLoc: l.withLoc}
}

// SetLevel adjusts the minimum severity that reaches the output writer.
func (l *Logger) SetLevel(lvl Lvl) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

func (l *Logger) log(lvl Lvl, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.level {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	tag := lvl.String()
	if l.color {
		tag = color.New(levelColor[lvl]).Sprint(tag)
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + ": " + msg
	}
	if l.withLoc && lvl == LvlTrace {
		call := stack.Caller(2)
		msg = fmt.Sprintf("%s (%n at %+v)", msg, call, call)
	}
	fmt.Fprintf(l.out, "%s [%s] %s\n", ts, tag, msg)
}

func (l *Logger) Error(format string, args ...any) { l.log(LvlError, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LvlWarn, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LvlInfo, format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.log(LvlDebug, format, args...) }
func (l *Logger) Trace(format string, args ...any) { l.log(LvlTrace, format, args...) }

// Sink returns a func(string) suitable for State.SetLogger, logged at Debug
// level and tagged with the given subsystem prefix.
func (l *Logger) Sink(prefix string) func(string) {
	tagged := l.WithPrefix(prefix)
	return func(msg string) { tagged.log(LvlDebug, "%s", msg) }
}
