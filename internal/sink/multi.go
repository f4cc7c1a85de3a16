package sink

import (
	"context"
	"errors"

	"tessera/internal/tile"
)

// Multi broadcasts each tile to every member. A tile counts as consumed once
// every member has either stored it or returned ErrDeclined.
type Multi struct {
	sinks []Sink
}

// NewMulti fans out to sinks in order. Nil entries are ignored.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Persist returns ErrDeclined only when every member declined.
func (m *Multi) Persist(ctx context.Context, t tile.Encoded) error {
	declined := 0
	for _, s := range m.sinks {
		err := s.Persist(ctx, t)
		switch {
		case err == nil:
		case errors.Is(err, ErrDeclined):
			declined++
		default:
			return err
		}
	}
	if len(m.sinks) > 0 && declined == len(m.sinks) {
		return ErrDeclined
	}
	return nil
}

// Close closes every member and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
