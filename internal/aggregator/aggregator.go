package aggregator

import (
	"context"
	"time"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
	"codeberg.org/mutker/rfhealth/internal/redfish"
	"codeberg.org/mutker/rfhealth/internal/vendor"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPoolSize    = 8
	defaultPollTimeout = 60 * time.Second
	closeTimeout       = 5 * time.Second
)

// Options configures an Aggregator.
type Options struct {
	// PoolSize bounds how many devices are polled at once.
	PoolSize int
	// PollTimeout bounds the Collecting phase of one device poll.
	PollTimeout time.Duration
	Now         func() time.Time
	NewPollID   func() string
}

// Aggregator runs device polls and hands finished records to a sink.
type Aggregator struct {
	dialer   Dialer
	registry *vendor.Registry
	sink     health.Sink
	opts     Options
	logger   logger.Logger
}

func New(dialer Dialer, registry *vendor.Registry, sink health.Sink, opts Options, log logger.Logger) *Aggregator {
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewPollID == nil {
		opts.NewPollID = func() string { return uuid.NewString() }
	}
	if log == nil {
		log = logger.Nop()
	}
	if registry == nil {
		registry = vendor.DefaultRegistry(log)
	}

	return &Aggregator{
		dialer:   dialer,
		registry: registry,
		sink:     sink,
		opts:     opts,
		logger:   log,
	}
}

// Poll polls every descriptor with at most PoolSize in flight. Outcomes
// are returned in input order; one device's failure never affects another.
func (a *Aggregator) Poll(ctx context.Context, descriptors []redfish.Descriptor) []Outcome {
	outcomes := make([]Outcome, len(descriptors))

	var g errgroup.Group
	g.SetLimit(a.opts.PoolSize)

	for i, d := range descriptors {
		g.Go(func() error {
			outcomes[i] = a.poll(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// PollDevice runs one device poll. A connectivity failure or cancellation
// returns an error and no record. A sink failure returns the record along
// with an ErrSinkFailed error.
func (a *Aggregator) PollDevice(ctx context.Context, d redfish.Descriptor) (health.Record, error) {
	o := a.poll(ctx, d)
	if o.Err != nil {
		return health.Record{}, o.Err
	}

	return o.Record, o.SinkErr
}

func (a *Aggregator) poll(ctx context.Context, d redfish.Descriptor) Outcome {
	errFactory := errors.New()
	pollID := a.opts.NewPollID()
	log := a.logger.With("device", d.Name()).With("poll_id", pollID)
	started := time.Now()
	out := Outcome{DeviceID: d.Name()}

	a.enter(log, Connecting)
	sess, err := a.dialer.Connect(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			out.Err = errFactory.Wrap(ErrCanceled, err).WithData(d.Name())
			return out
		}
		log.Warn().Err(err).Msg("device unreachable")
		out.Err = errFactory.Wrap(ErrConnectFailed, err).WithData(d.Name())
		return out
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Debug().Err(err).Msg("session logout failed")
		}
	}()

	a.enter(log, Identifying)
	b := health.NewBuilder(d.Name()).SetPollID(pollID)
	sel, err := a.registry.Identify(ctx, sess)
	if ctx.Err() != nil {
		out.Err = errFactory.Wrap(ErrCanceled, ctx.Err()).WithData(d.Name())
		return out
	}
	if err != nil {
		log.Warn().Err(err).Msg("identity unresolved, using generic provider")
		b.Note(health.NoteIdentityUnresolved, "", err.Error())
	}
	if !sel.Matched {
		b.Note(health.NoteGenericFallback, "", sel.Identity.Vendor)
	} else if sel.Identity.Model != "" && !sel.Provider.SupportsModel(sel.Identity.Model) {
		b.Note(health.NoteModelUnlisted, "", sel.Identity.Model)
	}
	mapper, _ := sel.Provider.(vendor.HealthMapper)
	b.SetIdentity(sel.Identity.Vendor, sel.Identity.Model, sel.Identity.Serial).
		SetSystem(sel.Identity.System(mapper)).
		SetVariant(sel.Provider.Name())

	a.enter(log, Collecting)
	results := a.collect(ctx, sess, sel)
	if ctx.Err() != nil {
		out.Err = errFactory.Wrap(ErrCanceled, ctx.Err()).WithData(d.Name())
		return out
	}

	// Rejected credentials end the poll like a failed connect.
	for _, r := range results {
		if errors.HasCode(r.err, redfish.ErrAuthFailed) {
			log.Warn().Err(r.err).Str("category", string(r.category)).Msg("authentication rejected during collection")
			out.Err = errFactory.Wrap(ErrAuthFailed, r.err).WithData(d.Name())
			return out
		}
	}

	for _, r := range results {
		clog := log.With("category", string(r.category))
		switch {
		case r.err == nil:
			b.AddReadings(r.category, r.readings)
		case redfish.IsNotFound(r.err):
			clog.Debug().Msg("category not implemented by device")
			b.MarkAbsent(r.category, r.err.Error())
		case r.timedOut:
			clog.Warn().Dur("timeout", a.opts.PollTimeout).Msg("category collection timed out")
			b.MarkFailed(r.category, health.NoteCategoryTimeout, r.err.Error())
		default:
			clog.Warn().Err(r.err).Msg("category unavailable")
			b.MarkFailed(r.category, health.NoteCategoryUnavailable, r.err.Error())
		}
	}

	a.enter(log, Finalizing)
	rec := b.Finalize(a.opts.Now())

	out.Record = rec
	if a.sink != nil {
		if err := a.sink.Write(ctx, rec); err != nil {
			log.Error().Err(err).Msg("failed to write health record")
			out.SinkErr = errFactory.Wrap(ErrSinkFailed, err).WithData(d.Name())
		}
	}

	a.enter(log, Done)
	log.Info().
		Str("vendor", rec.Vendor()).
		Str("variant", rec.Variant()).
		Str("overall", rec.Overall().String()).
		Int("readings", len(rec.Readings())).
		Dur("elapsed", time.Since(started)).
		Msg("device polled")

	return out
}

func (a *Aggregator) enter(log logger.Logger, s State) {
	log.Debug().Str("state", s.String()).Msg("poll state")
}
