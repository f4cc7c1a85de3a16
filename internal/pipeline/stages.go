package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"tessera/internal/codec"
	"tessera/internal/faults"
	"tessera/internal/logging"
	"tessera/internal/progress"
	"tessera/internal/scene"
	"tessera/internal/sink"
	"tessera/internal/tile"
)

// runStage starts the given number of workers draining in, handing each
// item to work. Once every worker has returned, done runs (when set) and out is
// closed (when set), which is how completion reaches the next stage.
func runStage[In, Out any](
	ctx context.Context,
	g *errgroup.Group,
	workers int,
	in <-chan In,
	out chan<- Out,
	done func(),
	work func(ctx context.Context, item In, emit func(Out) error) error,
) {
	emit := func(v Out) error {
		select {
		case out <- v:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case item, ok := <-in:
					if !ok {
						return nil
					}
					if err := work(ctx, item, emit); err != nil {
						return err
					}
				}
			}
		})
	}
	g.Go(func() error {
		wg.Wait()
		if done != nil {
			done()
		}
		if out != nil {
			close(out)
		}
		return nil
	})
}

func (s *Scheduler) execute(ctx context.Context, pattern string, state *runState) error {
	g, gctx := errgroup.WithContext(ctx)
	renderers := s.opts.Pool.Size()

	resources := make(chan scene.Resource, renderers)
	loaded := make(chan *scene.Loaded, renderers)
	raws := make(chan tile.Raw, s.opts.Encoder.Capacity)
	toOutput := make(chan tile.Encoded, s.opts.Output.Capacity)

	g.Go(func() error {
		return s.selectScenes(faults.WithStage(gctx, "select"), pattern, resources)
	})
	runStage[scene.Resource, *scene.Loaded](faults.WithStage(gctx, "load"), g, renderers, resources, loaded, nil,
		func(ctx context.Context, res scene.Resource, emit func(*scene.Loaded) error) error {
			return s.loadScene(ctx, state, res, emit)
		})
	runStage[*scene.Loaded, tile.Raw](faults.WithStage(gctx, "render"), g, renderers, loaded, raws, s.renderDone,
		func(ctx context.Context, sc *scene.Loaded, emit func(tile.Raw) error) error {
			return s.renderScene(ctx, state, sc, emit)
		})

	if s.opts.Optimizer != nil {
		toOptimizer := make(chan tile.Encoded, s.opts.OptimizerStage.Capacity)
		runStage[tile.Raw, tile.Encoded](faults.WithStage(gctx, "encode"), g, s.opts.Encoder.Parallelism, raws, toOptimizer, nil,
			s.encodeTile(s.opts.IntermediateFormat))
		runStage[tile.Encoded, tile.Encoded](faults.WithStage(gctx, "optimize"), g, s.opts.OptimizerStage.Parallelism, toOptimizer, toOutput, nil,
			s.optimizeTile)
	} else {
		runStage[tile.Raw, tile.Encoded](faults.WithStage(gctx, "encode"), g, s.opts.Encoder.Parallelism, raws, toOutput, nil,
			s.encodeTile(s.opts.Format))
	}

	runStage[tile.Encoded, struct{}](faults.WithStage(gctx, "output"), g, s.opts.Output.Parallelism, toOutput, nil, nil,
		func(ctx context.Context, e tile.Encoded, _ func(struct{}) error) error {
			return s.outputTile(ctx, state, e)
		})

	return g.Wait()
}

// selectScenes walks the namespace breadth-first. Totals for the scene
// counters become known when the walk ends.
func (s *Scheduler) selectScenes(ctx context.Context, pattern string, out chan<- scene.Resource) error {
	defer close(out)
	found := s.tracker.Step(progress.ScenesFound)
	for res, err := range scene.Select(ctx, s.opts.FS, pattern) {
		if err != nil {
			return err
		}
		found.Inc()
		select {
		case out <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	total := found.Count()
	found.SetTotal(total)
	s.tracker.Step(progress.ScenesLoaded).SetTotal(total)
	return nil
}

func (s *Scheduler) loadScene(ctx context.Context, state *runState, res scene.Resource, emit func(*scene.Loaded) error) error {
	ctx = faults.WithScene(ctx, res.Name)
	sc, err := s.loader.Load(ctx, res)
	if err != nil {
		if s.skippable(err) {
			s.tracker.SkipScene()
			s.skipScene(ctx, state, res.Name, "load", err)
			return nil
		}
		return err
	}
	count := sc.Geometry.Count()
	s.tracker.AddPlanned(int64(count))
	s.tracker.Step(progress.ScenesLoaded).Inc()
	s.logger.Debug("scene loaded",
		logging.String(logging.FieldScene, res.Name),
		logging.Int("min_zoom", sc.Geometry.MinZoom()),
		logging.Int("max_zoom", sc.Geometry.MaxZoom()),
		logging.Int("tiles", count),
		logging.Int("triangles", len(sc.Model.Triangles)),
	)
	return emit(sc)
}

// renderScene holds one renderer lease for the whole scene and releases it
// after the last tile has been handed downstream or on any error.
func (s *Scheduler) renderScene(ctx context.Context, state *runState, sc *scene.Loaded, emit func(tile.Raw) error) error {
	ctx = faults.WithScene(ctx, sc.Name)
	settled, err := s.renderTiles(ctx, sc, emit)
	if err == nil {
		return nil
	}
	if s.skippable(err) {
		s.tracker.AddPlanned(-(int64(sc.Geometry.Count()) - settled))
		s.skipScene(ctx, state, sc.Name, "render", err)
		return nil
	}
	return err
}

func (s *Scheduler) renderTiles(ctx context.Context, sc *scene.Loaded, emit func(tile.Raw) error) (int64, error) {
	lease, err := s.opts.Pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer lease.Release()

	r := lease.Renderer()
	if err := r.Bind(sc.Model); err != nil {
		return 0, renderFault(err, "bind", sc.Name)
	}

	empty := s.tracker.Step(progress.TilesEmpty)
	rendered := s.tracker.Step(progress.TilesRendered)
	var settled int64
	for c := range sc.Geometry.Tiles() {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		pixels, covered, err := r.RenderTile(ctx, c, sc.Geometry.TileBounds(c))
		if err != nil {
			return settled, renderFault(err, "tile", fmt.Sprintf("%s %s", sc.Name, c))
		}
		settled++
		if covered == 0 {
			empty.Inc()
			continue
		}
		rendered.Inc()
		raw := tile.Raw{
			Key:     tile.Key{Scene: sc.Name, Layer: s.opts.Layer, Coord: c},
			Pixels:  pixels,
			Covered: covered,
		}
		if err := emit(raw); err != nil {
			return settled, err
		}
	}
	return settled, nil
}

// renderDone fixes the downstream totals once no more tiles can be rendered.
func (s *Scheduler) renderDone() {
	n := s.tracker.Step(progress.TilesRendered).Count()
	s.tracker.Step(progress.TilesEncoded).SetTotal(n)
	s.tracker.Step(progress.TilesOutput).SetTotal(n)
	if s.opts.Optimizer != nil {
		s.tracker.Step(progress.TilesOptimized).SetTotal(n)
	} else {
		s.tracker.Step(progress.TilesOptimized).SetTotal(0)
	}
}

func (s *Scheduler) encodeTile(format codec.Format) func(context.Context, tile.Raw, func(tile.Encoded) error) error {
	encoded := s.tracker.Step(progress.TilesEncoded)
	return func(ctx context.Context, raw tile.Raw, emit func(tile.Encoded) error) error {
		data, err := codec.Encode(raw.Pixels, format, s.opts.Quality)
		if err != nil {
			return faults.Wrap(faults.ErrOutput, "encode", string(format), raw.String(), err)
		}
		encoded.Inc()
		return emit(tile.Encoded{Key: raw.Key, Format: format, Data: data})
	}
}

func (s *Scheduler) optimizeTile(ctx context.Context, e tile.Encoded, emit func(tile.Encoded) error) error {
	data, err := s.opts.Optimizer.Optimize(ctx, e.Data, e.Format.Extension(), s.opts.Format.Extension())
	if err != nil {
		if isCancellation(err) {
			return err
		}
		return fmt.Errorf("%s: %w", e, err)
	}
	s.tracker.Step(progress.TilesOptimized).Inc()
	return emit(tile.Encoded{Key: e.Key, Format: s.opts.Format, Data: data})
}

func (s *Scheduler) outputTile(ctx context.Context, state *runState, e tile.Encoded) error {
	err := s.opts.Sink.Persist(ctx, e)
	switch {
	case err == nil:
		state.bytes.Add(int64(len(e.Data)))
	case errors.Is(err, sink.ErrDeclined):
		logging.WithContext(ctx, s.logger).Debug("tile declined by sink",
			logging.String(logging.FieldScene, e.Scene),
			logging.Tile(e.Coord),
		)
	case isCancellation(err) || faults.Kind(err) != "unknown":
		return err
	default:
		return faults.Wrap(faults.ErrOutput, "output", "persist", e.String(), err)
	}
	s.tracker.Step(progress.TilesOutput).Inc()
	return nil
}

func renderFault(err error, op, subject string) error {
	if isCancellation(err) || faults.Kind(err) != "unknown" {
		return err
	}
	return faults.Wrap(faults.ErrRender, "render", op, subject, err)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
