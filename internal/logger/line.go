package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// lineTimeLayout matches the "2006-01-02 15:04:05,000" stamp used by the
// training log file.
const lineTimeLayout = "2006-01-02 15:04:05,000"

// LineHandler writes uncolored, one-record-per-line output:
//
//	2024-05-01 12:00:00,000 - sweep - INFO - message key=value
type LineHandler struct {
	opts  slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	group string
	attrs []slog.Attr
	root  string
}

// NewLineHandler creates a LineHandler. Records without a logger name are
// attributed to "tunebench".
func NewLineHandler(w io.Writer, opts *slog.HandlerOptions) *LineHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &LineHandler{
		opts: *opts,
		w:    w,
		mu:   &sync.Mutex{},
		root: "tunebench",
	}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return enabled(h.opts, level)
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	name, attrs := collectAttrs(h.attrs, r)
	if name == "" {
		name = h.root
	}

	buf := make([]byte, 0, 256)
	buf = r.Time.AppendFormat(buf, lineTimeLayout)
	buf = append(buf, " - "...)
	buf = append(buf, name...)
	buf = append(buf, " - "...)
	buf = append(buf, levelName(r.Level)...)
	buf = append(buf, " - "...)
	buf = append(buf, r.Message...)
	if len(attrs) > 0 {
		buf = append(buf, ' ')
		buf = appendAttrs(buf, attrs, h.group)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = appendHandlerAttrs(h.attrs, attrs)
	return &c
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.group = joinGroup(h.group, name)
	return &c
}

func levelName(level slog.Level) string {
	if level == slog.LevelWarn {
		return "WARNING"
	}
	return level.String()
}
