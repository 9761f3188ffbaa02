package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ANSI escape sequences for console output.
const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
)

// identityKeys are rendered in a distinct color so a device's lines are
// easy to pick out when many connections interleave on one console.
var identityKeys = map[string]bool{
	KeyIMEI:         true,
	KeySessionID:    true,
	KeyConnectionID: true,
}

// ConsoleHandler is a slog.Handler producing single-line human-readable
// output. It is the default handler for interactive terminals; JSON is
// used everywhere else.
type ConsoleHandler struct {
	opts  *slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
	color bool
}

// NewConsoleHandler returns a handler writing to w. Colors are emitted
// only when enabled.
func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *ConsoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ConsoleHandler{
		opts:  opts,
		w:     w,
		mu:    &sync.Mutex{},
		color: color,
	}
}

// Enabled reports whether records at the given level are handled.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

// Handle formats one record and writes it as a single line.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	// Millisecond timestamps: frame handling is routinely sub-second.
	ts := r.Time.Format("2006-01-02 15:04:05.000")

	var buf []byte
	buf = fmt.Appendf(buf, "%s %s %s", ts, h.levelTag(r.Level), r.Message)

	for _, attr := range h.attrs {
		buf = h.appendAttr(buf, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, a)
		return true
	})
	buf = append(buf, '\n')

	// The buffer is local; only the write needs the lock.
	h.mu.Lock()
	_, err := h.w.Write(buf)
	h.mu.Unlock()
	return err
}

func (h *ConsoleHandler) levelTag(level slog.Level) string {
	var tag, color string
	switch {
	case level < slog.LevelInfo:
		tag, color = "DBG", ansiGray
	case level < slog.LevelWarn:
		tag, color = "INF", ansiGreen
	case level < slog.LevelError:
		tag, color = "WRN", ansiYellow
	default:
		tag, color = "ERR", ansiRed
	}
	if h.color {
		return color + tag + ansiReset
	}
	return tag
}

func (h *ConsoleHandler) appendAttr(buf []byte, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	a.Value = a.Value.Resolve()

	val := renderValue(a.Value)
	if !h.color {
		return fmt.Appendf(buf, " %s=%s", a.Key, val)
	}

	keyColor := ansiCyan
	switch {
	case identityKeys[a.Key]:
		keyColor = ansiMagenta
	case a.Key == KeyError:
		keyColor = ansiRed
	}
	return fmt.Appendf(buf, " %s%s%s=%s", keyColor, a.Key, ansiReset, val)
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case slog.KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	case slog.KindFloat64:
		return fmt.Sprintf("%.3f", v.Float64())
	case slog.KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

// WithAttrs returns a handler that prepends attrs to every record.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{
		opts:  h.opts,
		w:     h.w,
		mu:    h.mu, // shared with the parent so writes stay serialized
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
		color: h.color,
	}
}

// WithGroup is accepted but groups are flattened; keys in this codebase
// are already namespaced (conn_id, session_id).
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return h
}
