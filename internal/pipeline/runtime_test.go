package pipeline

import (
	"runtime"
	"runtime/debug"
	"testing"
)

func TestTuneRuntimeRestores(t *testing.T) {
	procs := runtime.GOMAXPROCS(0)
	gc := debug.SetGCPercent(100)
	defer debug.SetGCPercent(gc)

	restore := tuneRuntime(runtimeRequest{procs: procs + 4, gcPercent: 300})
	if got := runtime.GOMAXPROCS(0); got != procs+4 {
		t.Fatalf("GOMAXPROCS during run = %d, want %d", got, procs+4)
	}
	restore()
	restore()

	if got := runtime.GOMAXPROCS(0); got != procs {
		t.Fatalf("GOMAXPROCS after run = %d, want %d", got, procs)
	}
	if prev := debug.SetGCPercent(100); prev != 100 {
		t.Fatalf("GC percent after run = %d, want 100", prev)
	}
}

func TestTuneRuntimeHonoursCeiling(t *testing.T) {
	procs := runtime.GOMAXPROCS(0)
	restore := tuneRuntime(runtimeRequest{procs: procs + 8, maxProcs: procs + 1})
	defer restore()
	if got := runtime.GOMAXPROCS(0); got != procs+1 {
		t.Fatalf("GOMAXPROCS = %d, want ceiling %d", got, procs+1)
	}
}

func TestTuneRuntimeNestedScopes(t *testing.T) {
	procs := runtime.GOMAXPROCS(0)
	outer := tuneRuntime(runtimeRequest{procs: procs + 1})
	inner := tuneRuntime(runtimeRequest{procs: procs + 3})
	outer()
	if got := runtime.GOMAXPROCS(0); got != procs+3 {
		t.Fatalf("GOMAXPROCS with inner scope active = %d, want %d", got, procs+3)
	}
	inner()
	if got := runtime.GOMAXPROCS(0); got != procs {
		t.Fatalf("GOMAXPROCS after both scopes = %d, want %d", got, procs)
	}
}
