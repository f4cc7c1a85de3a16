package faults_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"tessera/internal/faults"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := faults.Wrap(faults.ErrExternalTool, "optimizer", "run", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, faults.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"optimizer", "run", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := faults.Wrap(nil, " ", "", "", nil)
	if !errors.Is(err, faults.ErrOutput) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "pipeline failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"resource", faults.Wrap(faults.ErrResource, "load", "parse", "bad face", nil), true},
		{"render", faults.Wrap(faults.ErrRender, "render", "tile", "", errors.New("x")), true},
		{"configuration", faults.Wrap(faults.ErrConfiguration, "geometry", "", "", nil), false},
		{"external tool", faults.Wrap(faults.ErrExternalTool, "optimizer", "", "", nil), false},
		{"output", faults.Wrap(faults.ErrOutput, "output", "", "", nil), false},
		{"plain", errors.New("plain"), false},
		{"double wrapped", fmt.Errorf("outer: %w", faults.Wrap(faults.ErrResource, "", "", "", nil)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := faults.Recoverable(tt.err); got != tt.want {
				t.Fatalf("Recoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	if got := faults.Kind(faults.Wrap(faults.ErrRender, "", "", "", nil)); got != "render" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := faults.Kind(errors.New("x")); got != "unknown" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := faults.Kind(nil); got != "" {
		t.Fatalf("unexpected kind %q", got)
	}
}
