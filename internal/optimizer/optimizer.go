// Package optimizer runs an external program over an encoded tile to
// re-compress it.
//
// The program is described by a command template such as
// "oxipng -o 4 --out {output} {input}". The template is split with shell
// quoting rules; the {input} and {output} placeholders are replaced by paths
// to per-invocation temp files, both of which are removed before Optimize
// returns.
package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/shlex"

	"tessera/internal/faults"
)

const (
	inputPlaceholder  = "{input}"
	outputPlaceholder = "{output}"
	stderrLimit       = 512
)

// Executor abstracts command execution so tests can substitute a fake.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// ExitError reports an optimizer process that ran but exited non-zero.
type ExitError struct {
	Program string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Program, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Program, e.Code, e.Stderr)
}

// Runner invokes one command template.
type Runner struct {
	program string
	args    []string
	tempDir string
	exec    Executor
}

// New parses a command template. Temp files are created under tempDir, or
// the system temp directory when it is empty.
func New(command, tempDir string) (*Runner, error) {
	return newRunner(command, tempDir, commandExecutor{})
}

func newRunner(command, tempDir string, exec Executor) (*Runner, error) {
	fields, err := shlex.Split(command)
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "optimizer", "parse command", command, err)
	}
	if len(fields) == 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "optimizer", "parse command", "empty command", nil)
	}
	joined := strings.Join(fields[1:], " ")
	if !strings.Contains(joined, inputPlaceholder) || !strings.Contains(joined, outputPlaceholder) {
		return nil, faults.Wrap(faults.ErrConfiguration, "optimizer", "parse command",
			fmt.Sprintf("%q must reference %s and %s", command, inputPlaceholder, outputPlaceholder), nil)
	}
	return &Runner{program: fields[0], args: fields[1:], tempDir: tempDir, exec: exec}, nil
}

// Args expands the template for the given paths.
func (r *Runner) Args(input, output string) []string {
	replacer := strings.NewReplacer(inputPlaceholder, input, outputPlaceholder, output)
	out := make([]string, len(r.args))
	for i, arg := range r.args {
		out[i] = replacer.Replace(arg)
	}
	return out
}

// Optimize writes data to a temp file named with inExt, runs the program,
// and returns the bytes it wrote to the output file named with outExt.
// Failures match faults.ErrExternalTool; a non-zero exit also matches
// *ExitError.
func (r *Runner) Optimize(ctx context.Context, data []byte, inExt, outExt string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(r.tempDir, "tessera-opt-*")
	if err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "optimizer", "temp dir", r.tempDir, err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "in"+inExt)
	output := filepath.Join(dir, "out"+outExt)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "optimizer", "write input", input, err)
	}

	stderr, err := r.exec.Run(ctx, r.program, r.Args(input, output))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		type exitCoder interface{ ExitCode() int }
		var exitErr exitCoder
		if errors.As(err, &exitErr) {
			return nil, faults.Wrap(faults.ErrExternalTool, "optimizer", "run", r.program, &ExitError{
				Program: r.program,
				Code:    exitErr.ExitCode(),
				Stderr:  tail(stderr),
			})
		}
		return nil, faults.Wrap(faults.ErrExternalTool, "optimizer", "start", r.program, err)
	}

	result, err := os.ReadFile(output)
	if err != nil {
		return nil, faults.Wrap(faults.ErrExternalTool, "optimizer", "read output",
			fmt.Sprintf("%s produced no output", r.program), err)
	}
	if len(result) == 0 {
		return nil, faults.Wrap(faults.ErrExternalTool, "optimizer", "read output",
			fmt.Sprintf("%s produced an empty file", r.program), nil)
	}
	return result, nil
}

func tail(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if len(text) > stderrLimit {
		cut := len(text) - stderrLimit
		for cut < len(text) && !utf8.RuneStart(text[cut]) {
			cut++
		}
		text = "…" + text[cut:]
	}
	return text
}
