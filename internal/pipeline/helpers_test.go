package pipeline_test

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"tessera/internal/codec"
	"tessera/internal/config"
	"tessera/internal/logging"
	"tessera/internal/pipeline"
	"tessera/internal/render"
	"tessera/internal/scene"
	"tessera/internal/sink"
	"tessera/internal/testsupport"
	"tessera/internal/tile"
	"tessera/internal/tilegeom"
)

func testParams() tilegeom.Params {
	return tilegeom.Params{TileSize: 256, BasePixelsPerUnit: 1, MinPixelsPerUnit: 8, AutoZoom: true}
}

func sceneFS(sizes map[string]float64) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, size := range sizes {
		fsys[name] = &fstest.MapFile{Data: []byte(testsupport.CubeOBJ(size))}
	}
	return fsys
}

// event is one renderer call, tagged with the bound scene's extent so tests
// can tell scenes apart.
type event struct {
	kind     string
	renderer int
	extent   float64
}

type eventLog struct {
	mu     sync.Mutex
	events []event
}

func (l *eventLog) add(e event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event(nil), l.events...)
}

type fakeRenderer struct {
	id     int
	log    *eventLog
	model  *scene.Model
	empty  func(c tilegeom.Coordinate) bool
	fail   func(extent float64, c tilegeom.Coordinate) error
	delay  time.Duration
	busy   atomic.Int32
	misuse *atomic.Int32
}

func (f *fakeRenderer) extent() float64 { return f.model.Bounds.Max.X }

func (f *fakeRenderer) Bind(model *scene.Model) error {
	f.model = model
	if f.log != nil {
		f.log.add(event{kind: "bind", renderer: f.id, extent: f.extent()})
	}
	return nil
}

func (f *fakeRenderer) RenderTile(_ context.Context, c tilegeom.Coordinate, _ tilegeom.Rect) (*image.NRGBA, int, error) {
	if f.busy.Add(1) != 1 && f.misuse != nil {
		f.misuse.Add(1)
	}
	defer f.busy.Add(-1)
	if f.log != nil {
		f.log.add(event{kind: "tile", renderer: f.id, extent: f.extent()})
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		if err := f.fail(f.extent(), c); err != nil {
			return nil, 0, err
		}
	}
	if f.empty != nil && f.empty(c) {
		return nil, 0, nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Pix[3] = 0xff
	return img, 1, nil
}

func (f *fakeRenderer) Close() error { return nil }

type fakeSetup struct {
	renderers int
	log       *eventLog
	empty     func(c tilegeom.Coordinate) bool
	fail      func(extent float64, c tilegeom.Coordinate) error
	delay     time.Duration
	misuse    *atomic.Int32
}

func fakePool(t *testing.T, setup fakeSetup) *render.Pool {
	t.Helper()
	if setup.renderers == 0 {
		setup.renderers = 2
	}
	renderers := make([]render.Renderer, setup.renderers)
	for i := range renderers {
		renderers[i] = &fakeRenderer{
			id:     i,
			log:    setup.log,
			empty:  setup.empty,
			fail:   setup.fail,
			delay:  setup.delay,
			misuse: setup.misuse,
		}
	}
	pool := render.NewPool(renderers)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	return pool
}

// recordingSink stores every tile it receives. When gate is non-nil each
// Persist waits for it to close.
type recordingSink struct {
	mu    sync.Mutex
	tiles map[string]tile.Encoded
	dups  int
	gate  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{tiles: make(map[string]tile.Encoded)}
}

func (r *recordingSink) Persist(ctx context.Context, t tile.Encoded) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tiles[t.String()]; ok {
		r.dups++
	}
	r.tiles[t.String()] = t
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) perScene() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, t := range r.tiles {
		out[t.Scene]++
	}
	return out
}

var _ sink.Sink = (*recordingSink)(nil)

func baseOptions(fsys fstest.MapFS, pool *render.Pool, out sink.Sink) pipeline.Options {
	return pipeline.Options{
		FS:               fsys,
		Pattern:          "*.obj",
		Layer:            "base",
		Params:           testParams(),
		Pool:             pool,
		Format:           codec.PNG,
		Quality:          90,
		Sink:             out,
		Encoder:          pipeline.StageLimits{Parallelism: 3, Capacity: 4},
		OptimizerStage:   pipeline.StageLimits{Parallelism: 2, Capacity: 4},
		Output:           pipeline.StageLimits{Parallelism: 2, Capacity: 2},
		FailurePolicy:    config.FailurePolicyAbort,
		ProgressInterval: time.Hour,
		Logger:           logging.NewNop(),
	}
}

func mustScheduler(t *testing.T, opts pipeline.Options) *pipeline.Scheduler {
	t.Helper()
	s, err := pipeline.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// planned computes the tile count and the number of empty tiles a scene of
// the given cube size yields under params.
func planned(t *testing.T, size float64, params tilegeom.Params, empty func(tilegeom.Coordinate) bool) (total, empties int) {
	t.Helper()
	bounds := tilegeom.AABB{Max: tilegeom.Vec3{X: size, Y: size, Z: size}}
	g, err := tilegeom.New(bounds, params)
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	for c := range g.Tiles() {
		total++
		if empty != nil && empty(c) {
			empties++
		}
	}
	if total != g.Count() {
		t.Fatalf("enumerated %d tiles, Count() = %d", total, g.Count())
	}
	return total, empties
}

