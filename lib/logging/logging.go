// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging provides the diagnostic stream format for osbpb
// binaries: one line per record, prefixed with a bracketed level tag.
//
//	[INFO] loaded policy payload payload.name=osbpb.lua payload.size=812
//	[ERROR] caught error in lua runtime: osbpb.lua:3: bad config
//
// The tags are free-form text, not a parsed protocol. [Handler] is a
// plain [slog.Handler], so every package logs through *slog.Logger and
// only the binary decides the format. When the color mode allows it,
// the level tag is styled with lipgloss; message text is never styled.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ColorMode selects when level tags are colored.
type ColorMode string

const (
	// ColorAuto colors tags only when the writer is a terminal.
	ColorAuto ColorMode = "auto"
	// ColorAlways colors tags unconditionally.
	ColorAlways ColorMode = "always"
	// ColorNever never emits escape sequences.
	ColorNever ColorMode = "never"
)

// ParseColorMode validates a color mode name. The empty string means
// [ColorAuto].
func ParseColorMode(name string) (ColorMode, error) {
	switch ColorMode(name) {
	case "", ColorAuto:
		return ColorAuto, nil
	case ColorAlways, ColorNever:
		return ColorMode(name), nil
	default:
		return "", fmt.Errorf("unknown color mode %q (want auto, always, or never)", name)
	}
}

// Options configures a [Handler].
type Options struct {
	// Level is the minimum level written. Defaults to slog.LevelInfo.
	Level slog.Leveler

	// Color selects tag coloring. Defaults to ColorAuto.
	Color ColorMode
}

// Handler writes "[LEVEL] message key=value ..." lines.
type Handler struct {
	mu      *sync.Mutex
	writer  io.Writer
	level   slog.Leveler
	styles  map[slog.Level]lipgloss.Style
	prefix  string
	preattr []byte
}

// New returns a logger backed by a [Handler] writing to w.
func New(w io.Writer, options Options) *slog.Logger {
	return slog.New(NewHandler(w, options))
}

// NewHandler creates a handler writing to w.
func NewHandler(w io.Writer, options Options) *Handler {
	if options.Level == nil {
		options.Level = slog.LevelInfo
	}

	renderer := lipgloss.NewRenderer(w)
	renderer.SetColorProfile(colorProfile(w, options.Color))

	return &Handler{
		mu:     &sync.Mutex{},
		writer: w,
		level:  options.Level,
		styles: map[slog.Level]lipgloss.Style{
			slog.LevelDebug: renderer.NewStyle().Foreground(lipgloss.Color("8")),
			slog.LevelInfo:  renderer.NewStyle().Foreground(lipgloss.Color("12")),
			slog.LevelWarn:  renderer.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
			slog.LevelError: renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		},
	}
}

// colorProfile picks the termenv profile for mode. Auto mode colors
// only real terminals; redirected output stays plain.
func colorProfile(w io.Writer, mode ColorMode) termenv.Profile {
	switch mode {
	case ColorAlways:
		return termenv.ANSI256
	case ColorNever:
		return termenv.Ascii
	}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return termenv.NewOutput(file).EnvColorProfile()
	}
	return termenv.Ascii
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	var line bytes.Buffer
	line.WriteString(h.tag(record.Level))
	line.WriteByte(' ')
	line.WriteString(record.Message)
	line.Write(h.preattr)
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(&line, h.prefix, attr)
		return true
	})
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(line.Bytes())
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	var buffer bytes.Buffer
	buffer.Write(h.preattr)
	for _, attr := range attrs {
		appendAttr(&buffer, h.prefix, attr)
	}
	clone.preattr = buffer.Bytes()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// tag renders the bracketed level, e.g. "[ERROR]". Levels between the
// named ones use the style of the level below them.
func (h *Handler) tag(level slog.Level) string {
	text := "[" + level.String() + "]"
	for _, base := range []slog.Level{slog.LevelError, slog.LevelWarn, slog.LevelInfo, slog.LevelDebug} {
		if level >= base {
			return h.styles[base].Render(text)
		}
	}
	return text
}

func appendAttr(buffer *bytes.Buffer, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			appendAttr(buffer, groupPrefix, member)
		}
		return
	}
	buffer.WriteByte(' ')
	buffer.WriteString(prefix)
	buffer.WriteString(attr.Key)
	buffer.WriteByte('=')
	buffer.WriteString(quoteIfNeeded(attr.Value.String()))
}

func quoteIfNeeded(value string) string {
	if value == "" {
		return `""`
	}
	if strings.IndexFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '=' || !unicode.IsPrint(r)
	}) >= 0 {
		return strconv.Quote(value)
	}
	return value
}
