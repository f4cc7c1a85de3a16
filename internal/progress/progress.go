// Package progress tracks pipeline counters that workers bump concurrently and
// monitors poll without locking.
package progress

import (
	"sync/atomic"
)

// Step names, in pipeline order.
const (
	ScenesFound    = "scenes_found"
	ScenesLoaded   = "scenes_loaded"
	TilesEmpty     = "tiles_empty"
	TilesRendered  = "tiles_rendered"
	TilesEncoded   = "tiles_encoded"
	TilesOptimized = "tiles_optimized"
	TilesOutput    = "tiles_output"
)

// Step is a named monotonic counter with an optional known total.
type Step struct {
	name  string
	count atomic.Int64
	total atomic.Int64 // -1 while unknown
}

func newStep(name string) *Step {
	s := &Step{name: name}
	s.total.Store(-1)
	return s
}

// Name returns the step name.
func (s *Step) Name() string { return s.name }

// Inc records one event.
func (s *Step) Inc() { s.count.Add(1) }

// Add records n events.
func (s *Step) Add(n int64) { s.count.Add(n) }

// Count returns the current count.
func (s *Step) Count() int64 { return s.count.Load() }

// SetTotal records the expected final count.
func (s *Step) SetTotal(n int64) { s.total.Store(n) }

// AddTotal grows the expected final count, marking it known if it was not.
func (s *Step) AddTotal(n int64) {
	for {
		cur := s.total.Load()
		next := n
		if cur >= 0 {
			next = cur + n
		}
		if s.total.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Total returns the expected final count and whether it is known.
func (s *Step) Total() (int64, bool) {
	t := s.total.Load()
	return t, t >= 0
}

// Tracker owns one counter per pipeline step for a single run, plus the
// number of tiles planned across every loaded scene.
type Tracker struct {
	steps   []*Step
	index   map[string]*Step
	planned atomic.Int64
	skipped atomic.Int64
}

// NewTracker returns a tracker with all seven pipeline steps at zero.
func NewTracker() *Tracker {
	names := []string{ScenesFound, ScenesLoaded, TilesEmpty, TilesRendered, TilesEncoded, TilesOptimized, TilesOutput}
	t := &Tracker{index: make(map[string]*Step, len(names))}
	for _, name := range names {
		s := newStep(name)
		t.steps = append(t.steps, s)
		t.index[name] = s
	}
	return t
}

// AddPlanned records tiles enumerated for a newly loaded scene.
func (t *Tracker) AddPlanned(n int64) { t.planned.Add(n) }

// Planned returns the number of tiles enumerated so far.
func (t *Tracker) Planned() int64 { return t.planned.Load() }

// SkipScene records a scene dropped before it finished loading.
func (t *Tracker) SkipScene() { t.skipped.Add(1) }

// Step returns the named counter, or nil for an unknown name.
func (t *Tracker) Step(name string) *Step {
	return t.index[name]
}

// Steps returns every counter in pipeline order.
func (t *Tracker) Steps() []*Step {
	return append([]*Step(nil), t.steps...)
}

// StepSnapshot is a point-in-time copy of one counter.
type StepSnapshot struct {
	Name       string
	Count      int64
	Total      int64
	TotalKnown bool
}

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (s StepSnapshot) Percent() float64 {
	if !s.TotalKnown {
		return -1
	}
	if s.Total == 0 {
		return 100
	}
	return min(100, float64(s.Count)*100/float64(s.Total))
}

// Snapshot is a point-in-time copy of every counter. Counters are read
// individually, so the copy is not a consistent cut across steps.
type Snapshot struct {
	Steps         []StepSnapshot
	PlannedTiles  int64
	SkippedScenes int64
}

// Snapshot reads all counters.
func (t *Tracker) Snapshot() Snapshot {
	out := Snapshot{
		Steps:         make([]StepSnapshot, 0, len(t.steps)),
		PlannedTiles:  t.planned.Load(),
		SkippedScenes: t.skipped.Load(),
	}
	for _, s := range t.steps {
		total, known := s.Total()
		out.Steps = append(out.Steps, StepSnapshot{Name: s.name, Count: s.Count(), Total: total, TotalKnown: known})
	}
	return out
}

// Get returns the snapshot entry for name.
func (s Snapshot) Get(name string) StepSnapshot {
	for _, step := range s.Steps {
		if step.Name == name {
			return step
		}
	}
	return StepSnapshot{Name: name}
}

// Settled returns the number of planned tiles that reached a terminal state:
// dropped as empty or persisted by the sink.
func (s Snapshot) Settled() int64 {
	return s.Get(TilesEmpty).Count + s.Get(TilesOutput).Count
}

// Percent returns overall completion, or -1 until scene discovery has
// finished. The planned count still grows while scenes load, so early values
// overestimate.
func (s Snapshot) Percent() float64 {
	if !s.Get(ScenesFound).TotalKnown {
		return -1
	}
	if s.PlannedTiles == 0 {
		return 100
	}
	return min(100, float64(s.Settled())*100/float64(s.PlannedTiles))
}
