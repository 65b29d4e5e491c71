package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/rfhealth/internal/aggregator"
	"codeberg.org/mutker/rfhealth/internal/config"
	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
	"codeberg.org/mutker/rfhealth/internal/pid"
	"codeberg.org/mutker/rfhealth/internal/redfish"
	"codeberg.org/mutker/rfhealth/internal/sink"
	"codeberg.org/mutker/rfhealth/internal/vendor"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	cfg     *config.Config
	log     logger.Logger
	out     io.Writer
	devices []redfish.Descriptor
	agg     *aggregator.Aggregator
	sinks   *sink.Multi
	latest  *sink.Latest
}

func newApp(cfg *config.Config, log logger.Logger, out io.Writer) (*app, error) {
	sinks, err := buildSinks(cfg, log, out)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrBuildSinks, err)
	}

	return newAppWithDialer(cfg, log, out, sinks, nil), nil
}

// newAppWithDialer wires the aggregator. A nil dialer uses a Redfish
// client built from cfg.
func newAppWithDialer(cfg *config.Config, log logger.Logger, out io.Writer, sinks *sink.Multi, dialer aggregator.Dialer) *app {
	if dialer == nil {
		opts := cfg.ClientOptions()
		opts.UserAgent = "rfhealth/" + version
		dialer = aggregator.ClientDialer{Client: redfish.NewClient(opts, log)}
	}

	latest := sink.NewLatest()
	sinks.Add(latest)

	return &app{
		cfg:     cfg,
		log:     log,
		out:     out,
		devices: cfg.Descriptors(),
		agg:     aggregator.New(dialer, vendor.DefaultRegistry(log), sinks, cfg.AggregatorOptions(), log),
		sinks:   sinks,
		latest:  latest,
	}
}

// buildSinks opens every enabled sink. On failure the sinks opened so far
// are closed.
func buildSinks(cfg *config.Config, log logger.Logger, stdout io.Writer) (*sink.Multi, error) {
	m := sink.NewMulti()
	fail := func(err error) (*sink.Multi, error) {
		if cerr := m.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close sinks")
		}
		return nil, err
	}

	s := cfg.Sinks
	if s.Stdout {
		m.Add(sink.NewJSONLines(stdout))
	}
	if s.JSONLines.Enabled {
		j, err := sink.OpenJSONLines(s.JSONLines.Path)
		if err != nil {
			return fail(err)
		}
		m.Add(j)
	}
	if s.CSV.Enabled {
		c, err := sink.OpenCSV(s.CSV.Path)
		if err != nil {
			return fail(err)
		}
		m.Add(c)
	}
	if s.SQLite.Enabled {
		db, err := sink.OpenSQLite(s.SQLiteConfig(), log)
		if err != nil {
			return fail(err)
		}
		m.Add(db)
	}
	if s.NATS.Enabled {
		n, err := sink.ConnectNATS(s.NATSConfig(), log)
		if err != nil {
			return fail(err)
		}
		m.Add(n)
	}

	return m, nil
}

// round polls every device once.
func (a *app) round(ctx context.Context) []aggregator.Outcome {
	started := time.Now()
	outcomes := a.agg.Poll(ctx, a.devices)

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
		if o.SinkErr != nil {
			a.log.Error().Err(o.SinkErr).Str("device", o.DeviceID).Msg("Failed to write record")
		}
	}

	a.log.Info().
		Int("devices", len(outcomes)).
		Int("failed", failed).
		Dur("duration", time.Since(started)).
		Msg("Polling round complete")

	return outcomes
}

func (a *app) pollOnce(ctx context.Context) error {
	defer a.close()

	outcomes := a.round(ctx)
	printSummary(a.out, outcomes)

	for _, o := range outcomes {
		if o.Failed() {
			return errors.New().WithMessage(errors.ErrPollFailed, "one or more devices could not be polled")
		}
	}

	return nil
}

func (a *app) watch(ctx context.Context) error {
	defer a.close()

	pidPath := a.cfg.PIDFile
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			a.log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	if a.cfg.Listen != "" {
		stop, err := a.serve(a.cfg.Listen)
		if err != nil {
			return err
		}
		defer stop()
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.log.Info().
		Dur("interval", a.cfg.Interval).
		Int("devices", len(a.devices)).
		Msg("Watching devices")

	for {
		a.round(ctx)

		select {
		case <-ctx.Done():
			a.log.Info().Msg("Exiting...")
			return nil
		case <-ticker.C:
		}
	}
}

// serve starts the latest-state API and returns a function that shuts it
// down.
func (a *app) serve(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrServeAPI, err)
	}

	srv := &http.Server{
		Handler:           sink.NewRouter(a.latest, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("API server stopped")
		}
	}()

	a.log.Info().Str("addr", ln.Addr().String()).Msg("Serving latest-state API")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("API server shutdown failed")
		}
	}, nil
}

func (a *app) close() {
	if err := a.sinks.Close(); err != nil {
		a.log.ErrorWithCode(errors.New().Wrap(errors.ErrCloseSinks, err)).Msg("Failed to close sinks")
	}
}

func printSummary(w io.Writer, outcomes []aggregator.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tVENDOR\tMODEL\tOVERALL\tTHERMAL\tPOWER\tSTORAGE\tNETWORK\tNOTE")

	for _, o := range outcomes {
		if o.Failed() {
			fmt.Fprintf(tw, "%s\t-\t-\tFAILED\t-\t-\t-\t-\t%s\n", o.DeviceID, errors.CodeOf(o.Err))
			continue
		}

		r := o.Record
		note := ""
		if r.Partial() {
			note = "partial"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.DeviceID(), orDash(r.Vendor()), orDash(r.Model()), r.Overall(),
			r.Status(health.Thermal), r.Status(health.Power),
			r.Status(health.Storage), r.Status(health.Network), note)
	}

	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrInvalidConfig, errors.ErrMissingConfig, errors.ErrReadConfig,
		errors.ErrInvalidLogLevel, errors.ErrInvalidInterval, errors.ErrBindFlags:
		return 2
	}

	return 1
}
