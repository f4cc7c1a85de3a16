package main

import (
	"encoding/json"
	"io"
)

// writeJSON prints v as indented JSON. HTML escaping is off so glob patterns
// and paths come through unmangled.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
