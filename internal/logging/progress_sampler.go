package logging

import "time"

// ProgressSampler decides which progress polls are worth a log line: the
// first one, a phase change, a new percent bucket, or a heartbeat after a
// quiet stretch.
type ProgressSampler struct {
	bucket    float64
	heartbeat time.Duration

	phase    string
	level    int
	lastEmit time.Time
}

// NewProgressSampler emits on every bucket-percent step (5 when bucket <= 0)
// and at least once per heartbeat while polled. A zero heartbeat disables it.
func NewProgressSampler(bucket float64, heartbeat time.Duration) *ProgressSampler {
	if bucket <= 0 {
		bucket = 5
	}
	return &ProgressSampler{bucket: bucket, heartbeat: heartbeat, level: -1}
}

// ShouldLog reports whether the poll at now should be logged. A negative
// percent means the total is not known yet. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(now time.Time, percent float64, phase string) bool {
	if s == nil {
		return true
	}
	emit := s.lastEmit.IsZero()
	if phase != s.phase {
		s.phase, s.level = phase, -1
		emit = true
	}
	if percent >= 0 {
		if lvl := int(min(percent, 100) / s.bucket); lvl > s.level {
			s.level = lvl
			emit = true
		}
	}
	if s.heartbeat > 0 && !s.lastEmit.IsZero() && now.Sub(s.lastEmit) >= s.heartbeat {
		emit = true
	}
	if emit {
		s.lastEmit = now
	}
	return emit
}
