package optimizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"tessera/internal/faults"
	"tessera/internal/testsupport"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opt")
	testsupport.WriteExecutable(t, path, body)
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned: %d entries left", len(entries))
	}
}

func TestNewRejectsBadTemplates(t *testing.T) {
	for _, command := range []string{
		"",
		"oxipng {input}",
		"oxipng --out {output}",
		`oxipng "unterminated {input} {output}`,
	} {
		if _, err := New(command, ""); !errors.Is(err, faults.ErrConfiguration) {
			t.Errorf("New(%q) error = %v, want ErrConfiguration", command, err)
		}
	}
}

func TestArgsExpandsPlaceholders(t *testing.T) {
	r, err := New(`tool -o 4 "--out={output}" {input}`, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.program != "tool" {
		t.Fatalf("program = %q", r.program)
	}
	got := r.Args("/tmp/in.png", "/tmp/out.png")
	want := []string{"-o", "4", "--out=/tmp/out.png", "/tmp/in.png"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizeReturnsOutputAndCleansUp(t *testing.T) {
	tempDir := t.TempDir()
	script := writeScript(t, "tr 'a-z' 'A-Z' < \"$1\" > \"$2\"\n")
	r, err := New(script+" {input} {output}", tempDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.Optimize(context.Background(), []byte("tile"), ".png", ".png")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if string(got) != "TILE" {
		t.Fatalf("Optimize = %q, want TILE", got)
	}
	assertEmptyDir(t, tempDir)
}

func TestOptimizeReportsExitCode(t *testing.T) {
	tempDir := t.TempDir()
	script := writeScript(t, "echo 'bad input' >&2\nexit 3\n")
	r, err := New(script+" {input} {output}", tempDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.Optimize(context.Background(), []byte("tile"), ".png", ".png")
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("exit code = %d, want 3", exitErr.Code)
	}
	if exitErr.Stderr != "bad input" {
		t.Fatalf("stderr = %q", exitErr.Stderr)
	}
	assertEmptyDir(t, tempDir)
}

func TestOptimizeMissingBinary(t *testing.T) {
	tempDir := t.TempDir()
	r, err := New("clearly-not-present-optimizer {input} {output}", tempDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.Optimize(context.Background(), []byte("tile"), ".png", ".png")
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Fatalf("missing binary reported as exit error: %v", exitErr)
	}
	assertEmptyDir(t, tempDir)
}

func TestOptimizeEmptyOutput(t *testing.T) {
	tempDir := t.TempDir()
	script := writeScript(t, ": > \"$2\"\n")
	r, err := New(script+" {input} {output}", tempDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Optimize(context.Background(), []byte("tile"), ".png", ".png"); !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("error = %v, want ErrExternalTool", err)
	}
	assertEmptyDir(t, tempDir)
}

type fakeExecutor struct {
	args []string
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string) ([]byte, error) {
	f.args = args
	return nil, os.WriteFile(args[1], []byte("ok"), 0o600)
}

func TestOptimizeUsesExtensions(t *testing.T) {
	fake := &fakeExecutor{}
	r, err := newRunner("tool {input} {output}", t.TempDir(), fake)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	if _, err := r.Optimize(context.Background(), []byte("x"), ".bmp", ".png"); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if filepath.Ext(fake.args[0]) != ".bmp" || filepath.Ext(fake.args[1]) != ".png" {
		t.Fatalf("unexpected temp names: %v", fake.args)
	}
}

func TestOptimizeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := newRunner("tool {input} {output}", t.TempDir(), &fakeExecutor{})
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}
	if _, err := r.Optimize(ctx, []byte("x"), ".png", ".png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestTailKeepsWholeRunes(t *testing.T) {
	text := "x" + strings.Repeat("€", stderrLimit)
	got := tail([]byte(text))
	if !utf8.ValidString(got) {
		t.Fatalf("tail produced invalid UTF-8: %q", got)
	}
	if !strings.HasPrefix(got, "…€") {
		t.Fatalf("tail = %q, want ellipsis then whole runes", got)
	}
	if short := tail([]byte("  boom \n")); short != "boom" {
		t.Fatalf("tail(short) = %q", short)
	}
}
