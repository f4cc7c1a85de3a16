package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// field is one flattened key=value pair; group names are folded into the key
// with dots.
type field struct {
	key string
	val slog.Value
}

func appendFields(dst []field, prefix string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	val := attr.Value.Resolve()
	if val.Kind() != slog.KindGroup {
		return append(dst, field{key: prefix + attr.Key, val: val})
	}
	// An unnamed group inlines its members.
	if attr.Key != "" {
		prefix += attr.Key + "."
	}
	for _, member := range val.Group() {
		dst = appendFields(dst, prefix, member)
	}
	return dst
}

// plain renders v without quoting.
func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		// Bool, Int64, Uint64 and Duration stringify as expected.
		return v.String()
	}
}

// quoted renders v for the key=value tail, quoting blanks and values that
// would be ambiguous to split on spaces or '='.
func quoted(v slog.Value) string {
	s := plain(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
