// Package deps resolves the external programs tessera shells out to.
package deps

import (
	"errors"
	"os/exec"
	"strings"
)

// ErrNotConfigured reports a tool whose command line is empty.
var ErrNotConfigured = errors.New("command not configured")

// Tool is an external program a run may invoke.
type Tool struct {
	Name    string
	Command string // program name or path, without arguments
}

// Resolution records where a Tool was found, or why it was not.
type Resolution struct {
	Tool
	Path string
	Err  error
}

// Available reports whether the tool resolved to an executable.
func (r Resolution) Available() bool { return r.Err == nil }

// Resolve looks the tool up on PATH. Commands containing a path separator are
// checked in place.
func Resolve(tool Tool) Resolution {
	tool.Command = strings.TrimSpace(tool.Command)
	if tool.Command == "" {
		return Resolution{Tool: tool, Err: ErrNotConfigured}
	}
	path, err := exec.LookPath(tool.Command)
	if err != nil {
		return Resolution{Tool: tool, Err: err}
	}
	return Resolution{Tool: tool, Path: path}
}
