package progress

import (
	"context"
	"log/slog"
	"time"

	"tessera/internal/logging"
)

// Monitor periodically logs a tracker's counters. Polls that add no new
// information are suppressed, except for a heartbeat once a minute.
type Monitor struct {
	tracker  *Tracker
	logger   *slog.Logger
	interval time.Duration
	sampler  *logging.ProgressSampler
}

// NewMonitor returns a monitor that polls every interval.
func NewMonitor(tracker *Tracker, logger *slog.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{
		tracker:  tracker,
		logger:   logging.NewComponentLogger(logger, "progress"),
		interval: interval,
		sampler:  logging.NewProgressSampler(10, time.Minute),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll reads the tracker once and logs when the sampler allows it.
func (m *Monitor) Poll() {
	snap := m.tracker.Snapshot()
	percent := snap.Percent()
	if !m.sampler.ShouldLog(time.Now(), percent, Phase(snap)) {
		return
	}
	attrs := []logging.Attr{
		logging.String("phase", Phase(snap)),
		logging.Int64("planned_tiles", snap.PlannedTiles),
	}
	if percent >= 0 {
		attrs = append(attrs, logging.Float64("percent", float64(int(percent*10))/10))
	}
	for _, step := range snap.Steps {
		attrs = append(attrs, logging.Int64(step.Name, step.Count))
	}
	m.logger.Info("pipeline progress", logging.Args(attrs...)...)
}

// Phase names the earliest pipeline step still in flight.
func Phase(s Snapshot) string {
	found := s.Get(ScenesFound)
	if !found.TotalKnown {
		return "discovering"
	}
	if s.Get(ScenesLoaded).Count+s.SkippedScenes < found.Total {
		return "loading"
	}
	rendered := s.Get(TilesRendered)
	if rendered.Count+s.Get(TilesEmpty).Count < s.PlannedTiles {
		return "rendering"
	}
	if s.Settled() < s.PlannedTiles {
		return "writing"
	}
	return "done"
}
