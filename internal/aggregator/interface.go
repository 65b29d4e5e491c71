package aggregator

import (
	"context"

	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/redfish"
	"codeberg.org/mutker/rfhealth/internal/vendor"
)

// Session is the per-device connection a poll owns.
type Session interface {
	vendor.Fetcher
	Close(ctx context.Context) error
}

// Dialer opens a fresh Session for every poll.
type Dialer interface {
	Connect(ctx context.Context, d redfish.Descriptor) (Session, error)
}

// ClientDialer adapts *redfish.Client to Dialer.
type ClientDialer struct {
	Client *redfish.Client
}

func (c ClientDialer) Connect(ctx context.Context, d redfish.Descriptor) (Session, error) {
	s, err := c.Client.Connect(ctx, d)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// State is a step of one device poll.
type State int

const (
	Connecting State = iota
	Identifying
	Collecting
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Identifying:
		return "identifying"
	case Collecting:
		return "collecting"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	}

	return "unknown"
}

// Outcome is the per-device result of a multi-device poll. Exactly one of
// Record and Err is set; SinkErr reports a failed write of Record.
type Outcome struct {
	DeviceID string
	Record   health.Record
	Err      error
	SinkErr  error
}

// Failed reports a connectivity, auth or cancellation failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
