package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/redfish"
	"github.com/stretchr/testify/require"
)

type obj = map[string]any

func link(p string) obj { return obj{"@odata.id": p} }

func collection(paths ...string) obj {
	members := make([]any, len(paths))
	for i, p := range paths {
		members[i] = link(p)
	}

	return obj{"Members": members}
}

func status(h string) obj { return obj{"State": "Enabled", "Health": h} }

// criticalFanDevice reports CPU=45C OK, Fan1=0rpm Critical and PSU1 OK and
// exposes neither storage nor network resources.
func criticalFanDevice() map[string]any {
	return map[string]any{
		redfish.ServiceRoot: obj{
			"RedfishVersion": "1.6.0",
			"Systems":        link("/redfish/v1/Systems"),
			"Chassis":        link("/redfish/v1/Chassis"),
			"Managers":       link("/redfish/v1/Managers"),
			"Oem":            obj{"Dell": obj{}},
		},
		"/redfish/v1/Systems": collection("/redfish/v1/Systems/System.Embedded.1"),
		"/redfish/v1/Systems/System.Embedded.1": obj{
			"Manufacturer": "Dell Inc.",
			"Model":        "PowerEdge R640",
			"SerialNumber": "7XK9Q2",
			"BiosVersion":  "2.19.1",
			"PowerState":   "On",
			"Status":       obj{"State": "Enabled", "Health": "OK", "HealthRollup": "Critical"},
		},
		"/redfish/v1/Managers":                  collection("/redfish/v1/Managers/iDRAC.Embedded.1"),
		"/redfish/v1/Managers/iDRAC.Embedded.1": obj{"FirmwareVersion": "6.10.30.00"},
		"/redfish/v1/Chassis":                   collection("/redfish/v1/Chassis/System.Embedded.1"),
		"/redfish/v1/Chassis/System.Embedded.1": obj{
			"Thermal": link("/redfish/v1/Chassis/System.Embedded.1/Thermal"),
			"Power":   link("/redfish/v1/Chassis/System.Embedded.1/Power"),
		},
		"/redfish/v1/Chassis/System.Embedded.1/Thermal": obj{
			"Temperatures": []any{obj{"Name": "CPU", "ReadingCelsius": 45, "Status": status("OK")}},
			"Fans":         []any{obj{"Name": "Fan1", "Reading": 0, "ReadingUnits": "RPM", "Status": status("Critical")}},
		},
		"/redfish/v1/Chassis/System.Embedded.1/Power": obj{
			"PowerSupplies": []any{obj{"Name": "PSU1", "LastPowerOutputWatts": 180, "Status": status("OK")}},
		},
	}
}

const thermalPath = "/redfish/v1/Chassis/System.Embedded.1/Thermal"

type fakeSession struct {
	t      *testing.T
	docs   map[string]any
	errs   map[string]error
	block  map[string]bool
	closed atomic.Int32
}

func newSession(t *testing.T, docs map[string]any) *fakeSession {
	return &fakeSession{t: t, docs: docs, errs: map[string]error{}, block: map[string]bool{}}
}

func (s *fakeSession) Fetch(ctx context.Context, path string) (*redfish.Payload, error) {
	if s.block[path] {
		<-ctx.Done()
		return nil, errors.New().Wrap(redfish.ErrCanceled, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New().Wrap(redfish.ErrCanceled, err)
	}
	if err, ok := s.errs[path]; ok {
		return nil, err
	}
	doc, ok := s.docs[path]
	if !ok {
		return nil, redfish.NotFound(path)
	}
	raw, err := json.Marshal(doc)
	require.NoError(s.t, err)

	return redfish.Decode(path, raw)
}

func (s *fakeSession) Close(context.Context) error {
	s.closed.Add(1)
	return nil
}

func transient(path string) error {
	return errors.New().WithMessage(redfish.ErrTransient, "GET "+path+": HTTP 503")
}

// fakeDialer hands out sessions per device id and tracks concurrency.
type fakeDialer struct {
	mu       sync.Mutex
	sessions map[string]func(ctx context.Context) (Session, error)
	opened   []*fakeSession
	connects atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
}

func newDialer() *fakeDialer {
	return &fakeDialer{sessions: map[string]func(ctx context.Context) (Session, error){}}
}

func (d *fakeDialer) add(id string, fn func(ctx context.Context) (Session, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[id] = fn
}

func (d *fakeDialer) Connect(ctx context.Context, desc redfish.Descriptor) (Session, error) {
	d.connects.Add(1)
	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	d.mu.Lock()
	fn, ok := d.sessions[desc.Name()]
	d.mu.Unlock()
	if !ok {
		return nil, errors.New().WithMessage(redfish.ErrUnreachable, "no route to "+desc.Name())
	}

	s, err := fn(ctx)
	if fs, ok := s.(*fakeSession); ok {
		d.mu.Lock()
		d.opened = append(d.opened, fs)
		d.mu.Unlock()
	}

	return s, err
}

func desc(id string) redfish.Descriptor {
	return redfish.Descriptor{ID: id, Host: id + ".example", Username: "root", Secret: "calvin"}
}

func healthy(t *testing.T) func(ctx context.Context) (Session, error) {
	return func(context.Context) (Session, error) {
		return newSession(t, criticalFanDevice()), nil
	}
}
