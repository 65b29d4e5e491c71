package sink

import (
	"context"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
)

// Multi fans one record out to several sinks. Every sink receives the
// record even when an earlier one fails; failures are joined.
type Multi struct {
	sinks []health.Sink
}

func NewMulti(sinks ...health.Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Add appends a sink. It is not safe to call concurrently with Write.
func (m *Multi) Add(s health.Sink) {
	m.sinks = append(m.sinks, s)
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Write(ctx context.Context, rec health.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close closes every member that has a Close method.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		c, ok := s.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
