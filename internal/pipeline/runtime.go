package pipeline

import (
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sys/unix"
)

// Runtime settings are process-wide, so overlapping runs share one scope:
// the first run to start saves the previous values and the last to finish
// restores them.
var tuning struct {
	mu        sync.Mutex
	active    int
	procs     int
	gcPercent int
	gcSet     bool
	nofile    unix.Rlimit
	nofileSet bool
}

type runtimeRequest struct {
	procs     int
	maxProcs  int
	gcPercent int
}

// tuneRuntime widens GOMAXPROCS, raises the GC target, and lifts the soft
// open-file limit to the hard limit. The returned function undoes it.
func tuneRuntime(req runtimeRequest) (restore func()) {
	tuning.mu.Lock()
	defer tuning.mu.Unlock()

	if tuning.active == 0 {
		tuning.procs = runtime.GOMAXPROCS(0)
		tuning.gcSet = false
		tuning.nofileSet = false
		if req.gcPercent != 0 {
			tuning.gcPercent = debug.SetGCPercent(req.gcPercent)
			tuning.gcSet = true
		}
		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err == nil && lim.Cur < lim.Max {
			raised := lim
			raised.Cur = lim.Max
			if unix.Setrlimit(unix.RLIMIT_NOFILE, &raised) == nil {
				tuning.nofile = lim
				tuning.nofileSet = true
			}
		}
	}
	tuning.active++

	want := req.procs
	if req.maxProcs > 0 {
		want = min(want, req.maxProcs)
	}
	if want > runtime.GOMAXPROCS(0) {
		runtime.GOMAXPROCS(want)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			tuning.mu.Lock()
			defer tuning.mu.Unlock()
			tuning.active--
			if tuning.active > 0 {
				return
			}
			runtime.GOMAXPROCS(tuning.procs)
			if tuning.gcSet {
				debug.SetGCPercent(tuning.gcPercent)
			}
			if tuning.nofileSet {
				_ = unix.Setrlimit(unix.RLIMIT_NOFILE, &tuning.nofile)
			}
		})
	}
}
