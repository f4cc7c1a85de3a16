package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tessera/internal/config"
	"tessera/internal/faults"
	"tessera/internal/logging"
	"tessera/internal/manifest"
	"tessera/internal/progress"
	"tessera/internal/scene"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("scheduler already ran")

// SkippedScene records a scene dropped under the skip_scene policy.
type SkippedScene struct {
	Name  string
	Stage string
	Err   error
}

// Result summarizes a finished run, successful or not.
type Result struct {
	RunID         string
	StartedAt     time.Time
	Duration      time.Duration
	Snapshot      progress.Snapshot
	BytesWritten  int64
	SkippedScenes []SkippedScene
	PeakLeases    int
}

// Scheduler runs the tile pipeline once.
type Scheduler struct {
	opts    Options
	tracker *progress.Tracker
	logger  *slog.Logger
	loader  *scene.Loader
	started atomic.Bool
	owned   bool
}

// New validates opts and returns a scheduler with a fresh progress tracker.
func New(opts Options) (*Scheduler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		opts:    opts,
		tracker: progress.NewTracker(),
		logger:  logging.NewComponentLogger(opts.Logger, "pipeline"),
		loader:  &scene.Loader{FS: opts.FS, Parser: opts.Parser, Params: opts.Params},
	}, nil
}

// Tracker exposes the run's counters for live progress display.
func (s *Scheduler) Tracker() *progress.Tracker { return s.tracker }

// runState collects per-run results written by concurrent workers.
type runState struct {
	mu      sync.Mutex
	skipped []SkippedScene
	bytes   atomic.Int64
}

func (r *runState) skip(name, stage string, err error) {
	r.mu.Lock()
	r.skipped = append(r.skipped, SkippedScene{Name: name, Stage: stage, Err: err})
	r.mu.Unlock()
}

// Run selects scenes matching filter (or the configured pattern when filter
// is empty) and produces their tiles. It returns when the output stage has
// drained or the first fault has unwound every stage.
func (s *Scheduler) Run(ctx context.Context, filter string) (Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRun
	}
	pattern := strings.TrimSpace(filter)
	if pattern == "" {
		pattern = s.opts.Pattern
	}
	if _, err := path.Match(strings.ToLower(pattern), ""); err != nil {
		return Result{}, faults.Wrap(faults.ErrConfiguration, "pipeline", "filter", pattern, err)
	}

	runID := s.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = faults.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, s.logger)
	result := Result{RunID: runID, StartedAt: time.Now()}

	restore := tuneRuntime(runtimeRequest{
		procs:     s.totalWorkers(),
		maxProcs:  s.opts.MaxProcs,
		gcPercent: s.opts.GCPercent,
	})
	defer restore()

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.BeginRun(ctx, runID, result.StartedAt); err != nil {
			return result, err
		}
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitor := progress.NewMonitor(s.tracker, logger, s.opts.ProgressInterval)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(monitorCtx)
	}()

	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("pattern", pattern),
		logging.Int("renderers", s.opts.Pool.Size()),
		logging.Bool("optimizer", s.opts.Optimizer != nil),
		logging.String("failure_policy", s.opts.FailurePolicy),
	)

	state := &runState{}
	err := s.execute(ctx, pattern, state)

	stopMonitor()
	<-monitorDone
	monitor.Poll()

	result.Duration = time.Since(result.StartedAt)
	result.Snapshot = s.tracker.Snapshot()
	result.BytesWritten = state.bytes.Load()
	result.SkippedScenes = state.skipped
	_, result.PeakLeases = s.opts.Pool.Stats()

	if s.opts.Recorder != nil {
		status := manifest.StatusCompleted
		if err != nil {
			status = manifest.StatusFailed
		}
		// The run context may already be cancelled; the ledger still needs
		// its final status.
		if recErr := s.opts.Recorder.FinishRun(context.WithoutCancel(ctx), status, time.Now()); recErr != nil {
			err = errors.Join(err, recErr)
		}
	}

	if err != nil {
		logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failure",
			logging.Duration("duration", result.Duration),
			logging.String(logging.FieldErrorHint, "inspect the scene and stage named in the error"),
			logging.Error(err),
		)
		return result, err
	}
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Duration("duration", result.Duration),
		logging.Int64("tiles_output", result.Snapshot.Get(progress.TilesOutput).Count),
		logging.Int64("tiles_empty", result.Snapshot.Get(progress.TilesEmpty).Count),
		logging.Int64("bytes_written", result.BytesWritten),
		logging.Int("skipped_scenes", len(result.SkippedScenes)),
	)
	return result, nil
}

func (s *Scheduler) totalWorkers() int {
	n := 1 + 2*s.opts.Pool.Size() + s.opts.Encoder.Parallelism + s.opts.Output.Parallelism
	if s.opts.Optimizer != nil {
		n += s.opts.OptimizerStage.Parallelism
	}
	return n
}

// skippable reports whether err may be absorbed under the configured policy.
func (s *Scheduler) skippable(err error) bool {
	return s.opts.FailurePolicy == config.FailurePolicySkipScene && faults.Recoverable(err)
}

func (s *Scheduler) skipScene(ctx context.Context, state *runState, name, stage string, err error) {
	state.skip(name, stage, err)
	logging.WarnWithContext(logging.WithContext(ctx, s.logger), "scene skipped", "scene_skipped",
		logging.String(logging.FieldImpact, "scene produces no further tiles"),
		logging.Error(err),
	)
}
