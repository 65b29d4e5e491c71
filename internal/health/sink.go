package health

import "context"

//go:generate mockgen -destination=mock_sink.go -package=health codeberg.org/mutker/rfhealth/internal/health Sink

// Sink receives finalized records. Implementations must be safe for
// concurrent use; Write is called once per completed poll.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
