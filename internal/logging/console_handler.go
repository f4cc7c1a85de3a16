package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one human-readable line per record:
//
//	2024-05-01 15:04:05 WARN  [harbor · output · 3/1.2] sink: tile declined size=512
//
// component, scene, stage and tile are lifted out of the key=value tail into
// the prefix; the first value seen for each wins.
type prettyHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	prefix    string  // open groups, dot-joined with a trailing dot
	preset    []field // attrs from WithAttrs, already flattened
}

func newPrettyHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &prettyHandler{mu: new(sync.Mutex), w: w, level: level, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append([]field(nil), h.preset...)
	for _, a := range attrs {
		next.preset = appendFields(next.preset, h.prefix, a)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix += name + "."
	return &next
}

var subjectKeys = []string{FieldScene, FieldStage, FieldTile}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append(make([]field, 0, len(h.preset)+record.NumAttrs()), h.preset...)
	record.Attrs(func(a slog.Attr) bool {
		fields = appendFields(fields, h.prefix, a)
		return true
	})

	lifted := map[string]string{}
	tail := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent, FieldScene, FieldStage, FieldTile:
			if _, ok := lifted[f.key]; !ok {
				lifted[f.key] = plain(f.val)
			}
		default:
			tail = append(tail, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var buf bytes.Buffer
	buf.WriteString(ts.Local().Format(consoleTimeLayout))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	buf.WriteByte(' ')

	parts := make([]string, len(subjectKeys))
	for i, k := range subjectKeys {
		parts[i] = lifted[k]
	}
	if subject := FormatSubject(parts...); subject != "" {
		buf.WriteString("[" + subject + "] ")
	}
	if c := lifted[FieldComponent]; c != "" {
		buf.WriteString(c + ": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	for _, f := range lastPerKey(tail) {
		buf.WriteString(" " + f.key + "=" + quoted(f.val))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// lastPerKey drops earlier duplicates of a key, keeping the position of the
// first occurrence and the value of the last.
func lastPerKey(fields []field) []field {
	if len(fields) < 2 {
		return fields
	}
	pos := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := pos[f.key]; ok {
			out[i].val = f.val
			continue
		}
		pos[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

const consoleTimeLayout = "2006-01-02 15:04:05"

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

// FormatSubject joins the non-blank parts (scene, stage, tile) with " · "
// for the bracketed console subject.
func FormatSubject(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " · ")
}
