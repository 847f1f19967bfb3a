// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vlog builds the *slog.Logger the container uses for the one class
// of message the core is allowed to emit instead of propagate: a swallowed
// Disposable.Dispose failure (see the vinculum package's error handling
// design).
package vlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	DefaultLevel     = slog.LevelInfo
	DefaultAddSource = false
	DefaultFormat    = FormatText
)

// Format selects the log output encoding.
type Format uint8

const (
	FormatText Format = iota
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	default:
		return "text"
	}
}

type config struct {
	Level     slog.Level
	AddSource bool
	Format    Format
	Writer    io.Writer
}

// Option configures a logger built by New.
type Option func(*config)

// WithLevel parses a level name ("debug", "info", "warn", "error") and
// applies it. Invalid names are ignored, leaving the previous level intact.
func WithLevel(name string) Option {
	return func(c *config) {
		if level, err := ParseLevel(name); err == nil {
			c.Level = level
		}
	}
}

// WithFormat parses a format name ("text", "json") and applies it. Invalid
// names are ignored.
func WithFormat(name string) Option {
	return func(c *config) {
		if format, err := ParseFormat(name); err == nil {
			c.Format = format
		}
	}
}

// WithAddSource toggles source file/line annotation on log records.
func WithAddSource(add bool) Option {
	return func(c *config) {
		c.AddSource = add
	}
}

// WithWriter sets the destination for log output. A nil writer is ignored.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.Writer = w
		}
	}
}

// New builds a *slog.Logger from the given options, defaulting to
// slog.LevelInfo, text format, and os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := config{
		Level:     DefaultLevel,
		AddSource: DefaultAddSource,
		Format:    DefaultFormat,
		Writer:    os.Stdout,
	}
	for _, opt := range opts {
		opt(&c)
	}

	o := &slog.HandlerOptions{
		Level:     c.Level,
		AddSource: c.AddSource,
	}

	var handler slog.Handler
	switch c.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(c.Writer, o)
	default:
		handler = slog.NewTextHandler(c.Writer, o)
	}
	return slog.New(handler)
}

// ParseLevel parses a textual slog level name.
func ParseLevel(s string) (level slog.Level, err error) {
	if e := level.UnmarshalText([]byte(s)); e != nil {
		err = fmt.Errorf("vlog: invalid level %q", s)
	}
	return
}

// ParseFormat parses a textual format name.
func ParseFormat(s string) (format Format, err error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	default:
		return format, fmt.Errorf("vlog: invalid format %q", s)
	}
}
