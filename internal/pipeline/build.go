package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"tessera/internal/codec"
	"tessera/internal/config"
	"tessera/internal/faults"
	"tessera/internal/manifest"
	"tessera/internal/optimizer"
	"tessera/internal/preflight"
	"tessera/internal/render"
	"tessera/internal/scene"
	"tessera/internal/sink"
	"tessera/internal/tilegeom"
)

// Params converts the tiling section of cfg to geometry parameters.
func Params(cfg *config.Config) tilegeom.Params {
	return tilegeom.Params{
		TileSize:          cfg.Tiling.TileSize,
		BasePixelsPerUnit: cfg.Tiling.BasePixelsPerUnit,
		MinPixelsPerUnit:  cfg.Tiling.MinPixelsPerUnit,
		Border:            cfg.Tiling.Border,
		AutoZoom:          cfg.Tiling.AutoZoom,
		MinZoom:           cfg.Tiling.MinZoom,
		MaxZoom:           cfg.Tiling.MaxZoom,
	}
}

// Build validates cfg, runs preflight checks, and assembles a Scheduler with
// the software renderer pool, the configured sink, and the optional
// optimizer and manifest. Every configuration problem is reported here,
// before any work is scheduled. The caller must Close the scheduler.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Paths.ArchivePath != "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "pipeline", "build", cfg.Paths.ArchivePath, sink.ErrArchiveUnsupported)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "pipeline", "build", "ensure directories", err)
	}
	if err := preflight.Err(preflight.RunAll(ctx, cfg)); err != nil {
		return nil, err
	}

	format, err := codec.ParseFormat(cfg.Encoding.Format)
	if err != nil {
		return nil, invalid(err.Error())
	}
	background, err := config.ParseHexColor(cfg.Render.Background)
	if err != nil {
		return nil, invalid(err.Error())
	}
	base, err := config.ParseHexColor(cfg.Render.Color)
	if err != nil {
		return nil, invalid(err.Error())
	}

	opts := Options{
		FS:      os.DirFS(cfg.Paths.InputDir),
		Pattern: cfg.Scenes.Pattern,
		Layer:   cfg.Scenes.Layer,
		Parser:  scene.OBJParser{},
		Params:  Params(cfg),
		Format:  format,
		Quality: cfg.Encoding.Quality,
		Encoder: StageLimits{
			Parallelism: cfg.Pipeline.Encoder.Parallelism,
			Capacity:    cfg.Pipeline.Encoder.Capacity,
		},
		OptimizerStage: StageLimits{
			Parallelism: cfg.Pipeline.Optimizer.Parallelism,
			Capacity:    cfg.Pipeline.Optimizer.Capacity,
		},
		Output: StageLimits{
			Parallelism: cfg.Pipeline.Output.Parallelism,
			Capacity:    cfg.Pipeline.Output.Capacity,
		},
		FailurePolicy:    cfg.Pipeline.FailurePolicy,
		MaxProcs:         cfg.Pipeline.MaxProcs,
		GCPercent:        cfg.Pipeline.GCPercent,
		ProgressInterval: time.Duration(cfg.Pipeline.ProgressInterval) * time.Second,
		Logger:           logger,
	}

	if cfg.Optimizer.Enabled {
		runner, err := optimizer.New(cfg.Optimizer.Command, cfg.Paths.TempDir)
		if err != nil {
			return nil, err
		}
		intermediate, err := codec.ParseFormat(cfg.Optimizer.IntermediateFormat)
		if err != nil {
			return nil, invalid(err.Error())
		}
		opts.Optimizer = runner
		opts.IntermediateFormat = intermediate
	}

	pool, err := render.NewSoftwarePool(cfg.Pipeline.Renderers, render.SoftwareOptions{
		TileSize:   cfg.Tiling.TileSize,
		Background: background,
		Color:      base,
	})
	if err != nil {
		return nil, err
	}
	opts.Pool = pool

	primary, err := sink.Open(cfg)
	if err != nil {
		_ = pool.Close(ctx)
		return nil, err
	}
	opts.Sink = primary

	if cfg.Paths.ManifestPath != "" {
		store, err := manifest.Open(ctx, cfg.Paths.ManifestPath)
		if err != nil {
			_ = primary.Close()
			_ = pool.Close(ctx)
			return nil, err
		}
		opts.Sink = sink.NewMulti(primary, store)
		opts.Recorder = store
	}

	s, err := New(opts)
	if err != nil {
		_ = opts.Sink.Close()
		_ = pool.Close(ctx)
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the renderer pool and sink when the scheduler was created
// by Build. Schedulers created with New leave their collaborators to the
// caller.
func (s *Scheduler) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return errors.Join(s.opts.Pool.Close(ctx), s.opts.Sink.Close())
}
