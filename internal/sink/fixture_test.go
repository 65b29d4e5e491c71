package sink

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/rfhealth/internal/health"
)

var collected = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// criticalRecord has a critical fan, an OK temperature, a warning power supply
// without a reading and a timed-out network category.
func criticalRecord(deviceID string, at time.Time) health.Record {
	return health.NewBuilder(deviceID).
		SetPollID("poll-"+deviceID).
		SetIdentity("Dell Inc.", "PowerEdge R750", "SN123").
		SetSystem(health.System{
			Health:          health.Warning,
			RawHealth:       "Warning",
			HealthRollup:    health.Critical,
			PowerState:      "On",
			ProcessorCount:  2,
			MemoryGiB:       512,
			BIOSVersion:     "1.13.2",
			FirmwareVersion: "7.00.00.171",
			RedfishVersion:  "1.17.0",
		}).
		SetVariant("dell").
		AddReadings(health.Thermal, []health.Reading{
			{Name: "CPU1 Temp", Value: health.Float(45), Unit: "Cel", Severity: health.OK, RawHealth: "OK"},
			{Name: "Fan1", Value: health.Float(1200.5), Unit: "RPM", Severity: health.Critical, VendorKey: "Fans/0", RawHealth: "Critical"},
		}).
		AddReadings(health.Power, []health.Reading{
			{Name: "PSU1", Unit: "W", Severity: health.Warning, RawHealth: "Warning"},
		}).
		AddReadings(health.Storage, []health.Reading{
			{Name: "Disk 0", Value: health.Float(480e9), Unit: "By", Severity: health.OK, RawHealth: "OK"},
		}).
		MarkFailed(health.Network, health.NoteCategoryTimeout, "deadline exceeded").
		Finalize(at)
}

func okRecord(deviceID string, at time.Time) health.Record {
	b := health.NewBuilder(deviceID).
		SetPollID("poll-"+deviceID).
		SetIdentity("HPE", "ProLiant DL380 Gen10", "").
		SetVariant("hpe")
	for _, c := range health.Categories() {
		b.AddReadings(c, []health.Reading{{Name: c.String() + "-1", Value: health.Float(1), Severity: health.OK}})
	}

	return b.Finalize(at)
}

type recordingSink struct {
	mu      sync.Mutex
	records []health.Record
	err     error
	closed  int
}

func (r *recordingSink) Write(_ context.Context, rec health.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)

	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++

	return r.err
}

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu      sync.Mutex
	msgs    []published
	flushed int
	err     error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: append([]byte(nil), data...)})

	return nil
}

func (p *fakePublisher) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushed++

	return nil
}
