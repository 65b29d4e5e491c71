package sink

import (
	"context"
	"sort"
	"sync"

	"codeberg.org/mutker/rfhealth/internal/health"
)

// Latest keeps the newest record per device.
type Latest struct {
	mu      sync.RWMutex
	records map[string]health.Record
}

func NewLatest() *Latest {
	return &Latest{records: make(map[string]health.Record)}
}

// Write stores rec unless a newer record for the device is already held.
func (l *Latest) Write(_ context.Context, rec health.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.records[rec.DeviceID()]; ok && cur.CollectedAt().After(rec.CollectedAt()) {
		return nil
	}
	l.records[rec.DeviceID()] = rec

	return nil
}

func (l *Latest) Get(deviceID string) (health.Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[deviceID]

	return rec, ok
}

// Records returns the held records ordered by device id.
func (l *Latest) Records() []health.Record {
	l.mu.RLock()
	out := make([]health.Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DeviceID() < out[j].DeviceID()
	})

	return out
}

func (l *Latest) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.records)
}
