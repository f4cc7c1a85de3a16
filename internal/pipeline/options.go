package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"time"

	"tessera/internal/codec"
	"tessera/internal/config"
	"tessera/internal/faults"
	"tessera/internal/optimizer"
	"tessera/internal/render"
	"tessera/internal/scene"
	"tessera/internal/sink"
	"tessera/internal/tilegeom"
)

// StageLimits bounds one stage: Parallelism workers reading from a channel
// of Capacity items.
type StageLimits struct {
	Parallelism int
	Capacity    int
}

// Recorder is notified when a run starts and finishes. The manifest store
// implements it.
type Recorder interface {
	BeginRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, status string, finishedAt time.Time) error
}

// Options wires a Scheduler to its collaborators.
type Options struct {
	// FS is the scene namespace; Pattern selects files within it.
	FS      fs.FS
	Pattern string
	Layer   string
	Parser  scene.Parser
	Params  tilegeom.Params

	Pool *render.Pool

	Format  codec.Format
	Quality int
	// Optimizer, when set, receives tiles encoded as IntermediateFormat and
	// returns them in Format.
	Optimizer          *optimizer.Runner
	IntermediateFormat codec.Format

	Sink     sink.Sink
	Recorder Recorder

	Encoder        StageLimits
	OptimizerStage StageLimits
	Output         StageLimits

	FailurePolicy string
	// MaxProcs caps how far GOMAXPROCS is widened for the run; 0 means no cap.
	MaxProcs int
	// GCPercent is applied with debug.SetGCPercent for the run; 0 leaves the
	// collector alone.
	GCPercent        int
	ProgressInterval time.Duration

	// RunID is generated when empty.
	RunID  string
	Logger *slog.Logger
}

func (o *Options) validate() error {
	switch {
	case o.FS == nil:
		return invalid("scene namespace is required")
	case o.Pool == nil || o.Pool.Size() == 0:
		return invalid("renderer pool is empty")
	case o.Sink == nil:
		return invalid("output sink is required")
	}
	if err := o.Params.Validate(); err != nil {
		return err
	}
	if _, err := codec.ParseFormat(string(o.Format)); err != nil {
		return invalid(err.Error())
	}
	if o.Optimizer != nil {
		if _, err := codec.ParseFormat(string(o.IntermediateFormat)); err != nil {
			return invalid("intermediate format: " + err.Error())
		}
	}
	for name, limits := range map[string]StageLimits{
		"encoder":   o.Encoder,
		"optimizer": o.OptimizerStage,
		"output":    o.Output,
	} {
		if name == "optimizer" && o.Optimizer == nil {
			continue
		}
		if limits.Parallelism <= 0 || limits.Capacity <= 0 {
			return invalid(name + " parallelism and capacity must be positive")
		}
	}
	switch o.FailurePolicy {
	case "":
		o.FailurePolicy = config.FailurePolicyAbort
	case config.FailurePolicyAbort, config.FailurePolicySkipScene:
	default:
		return invalid("unknown failure policy " + o.FailurePolicy)
	}
	if o.Layer == "" {
		o.Layer = "base"
	}
	if o.Pattern == "" {
		o.Pattern = "*"
	}
	return nil
}

func invalid(message string) error {
	return faults.Wrap(faults.ErrConfiguration, "pipeline", "validate", message, nil)
}
