package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorBold   = "\033[1m"
)

// PrettyHandler is a slog.Handler that formats logs with colors for CLI output.
type PrettyHandler struct {
	opts  slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	group string
	attrs []slog.Attr
}

// NewPrettyHandler creates a new PrettyHandler.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{
		opts: *opts,
		w:    w,
		mu:   &sync.Mutex{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return enabled(h.opts, level)
}

// Handle formats and writes a log record.
//
// Format: [TIME] LEVEL name: message key=value key=value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	name, attrs := collectAttrs(h.attrs, r)

	buf := make([]byte, 0, 1024)

	buf = append(buf, colorGray...)
	buf = append(buf, '[')
	buf = r.Time.AppendFormat(buf, time.DateTime)
	buf = append(buf, ']')
	buf = append(buf, colorReset...)
	buf = append(buf, ' ')

	buf = append(buf, levelColor(r.Level)...)
	buf = append(buf, colorBold...)
	buf = append(buf, padLevel(r.Level.String())...)
	buf = append(buf, colorReset...)
	buf = append(buf, ' ')

	if name != "" {
		buf = append(buf, colorGreen...)
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, colorReset...)
		buf = append(buf, ' ')
	}

	buf = append(buf, r.Message...)

	if len(attrs) > 0 {
		buf = append(buf, ' ')
		buf = append(buf, colorCyan...)
		buf = appendAttrs(buf, attrs, h.group)
		buf = append(buf, colorReset...)
	}

	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a new handler with additional attributes.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyHandler{
		opts:  h.opts,
		w:     h.w,
		mu:    h.mu,
		group: h.group,
		attrs: appendHandlerAttrs(h.attrs, attrs),
	}
}

// WithGroup returns a new handler with a group name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &PrettyHandler{
		opts:  h.opts,
		w:     h.w,
		mu:    h.mu,
		group: joinGroup(h.group, name),
		attrs: h.attrs,
	}
}

func enabled(opts slog.HandlerOptions, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if opts.Level != nil {
		minLevel = opts.Level.Level()
	}
	return level >= minLevel
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

// padLevel pads to 5 characters for alignment.
func padLevel(level string) string {
	if len(level) == 4 {
		return level + " "
	}
	return level
}

func joinGroup(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func appendHandlerAttrs(existing, extra []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(existing)+len(extra))
	copy(out, existing)
	copy(out[len(existing):], extra)
	return out
}

// collectAttrs merges handler and record attributes and pulls the logger name
// out of them. Nested names are joined with dots.
func collectAttrs(handlerAttrs []slog.Attr, r slog.Record) (string, []slog.Attr) {
	var names []string
	attrs := make([]slog.Attr, 0, len(handlerAttrs)+r.NumAttrs())
	take := func(a slog.Attr) {
		if a.Key == NameKey && a.Value.Kind() == slog.KindString {
			names = append(names, a.Value.String())
			return
		}
		attrs = append(attrs, a)
	}
	for _, a := range handlerAttrs {
		take(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		take(a)
		return true
	})
	return strings.Join(names, "."), attrs
}

func appendAttrs(buf []byte, attrs []slog.Attr, group string) []byte {
	for i, attr := range attrs {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = appendAttr(buf, attr, group)
	}
	return buf
}

func appendAttr(buf []byte, attr slog.Attr, group string) []byte {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}

	buf = append(buf, key...)
	buf = append(buf, '=')

	switch attr.Value.Kind() {
	case slog.KindString:
		s := attr.Value.String()
		if needsQuoting(s) {
			buf = append(buf, '"')
			buf = append(buf, s...)
			buf = append(buf, '"')
		} else {
			buf = append(buf, s...)
		}
	case slog.KindTime:
		buf = attr.Value.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindGroup:
		buf = append(buf, '{')
		buf = appendAttrs(buf, attr.Value.Group(), "")
		buf = append(buf, '}')
	default:
		buf = append(buf, fmt.Sprint(attr.Value.Any())...)
	}

	return buf
}

func needsQuoting(s string) bool {
	for _, c := range s {
		if c == ' ' || c == '\t' || c == '\n' || c == '"' {
			return true
		}
	}
	return false
}
