package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
)

const DefaultSubjectPrefix = "rfhealth.alerts"

// NATSConfig configures the alert feed.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	// Threshold is the lowest overall status that raises an alert.
	Threshold health.Severity
	Name      string
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		Threshold:     health.Warning,
		Name:          "rfhealth",
	}
}

// NATSAlerts publishes an Alert for every record at or above the threshold.
type NATSAlerts struct {
	pub       Publisher
	prefix    string
	threshold health.Severity
	log       logger.Logger
	closer    func()
}

// NewNATSAlerts publishes through pub, which Close does not close.
func NewNATSAlerts(pub Publisher, cfg NATSConfig, log logger.Logger) *NATSAlerts {
	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return &NATSAlerts{
		pub:       pub,
		prefix:    prefix,
		threshold: cfg.Threshold,
		log:       log,
	}
}

// ConnectNATS dials cfg.URL and returns a sink owning the connection.
func ConnectNATS(cfg NATSConfig, log logger.Logger) (*NATSAlerts, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, errors.New().WithData(ErrStorageInit, struct {
			Phase string
			URL   string
			Error string
		}{
			Phase: "connect_nats",
			URL:   cfg.URL,
			Error: err.Error(),
		})
	}

	s := NewNATSAlerts(nc, cfg, log)
	s.closer = nc.Close

	log.Info().
		Str("url", cfg.URL).
		Str("subject_prefix", s.prefix).
		Str("threshold", cfg.Threshold.String()).
		Msg("NATS alert sink connected")

	return s, nil
}

// Subject returns the subject alerts for deviceID are published on.
func (s *NATSAlerts) Subject(deviceID string) string {
	return s.prefix + "." + subjectToken(deviceID)
}

func (s *NATSAlerts) Write(_ context.Context, rec health.Record) error {
	if !rec.Overall().AtLeast(s.threshold) {
		return nil
	}

	data, err := json.Marshal(BuildAlert(rec))
	if err != nil {
		return errors.New().Wrap(ErrPublishFailed, err)
	}

	subject := s.Subject(rec.DeviceID())
	if err := s.pub.Publish(subject, data); err != nil {
		return errors.New().WithData(ErrPublishFailed, struct {
			Subject string
			Error   string
		}{
			Subject: subject,
			Error:   err.Error(),
		})
	}

	s.log.Debug().
		Str("subject", subject).
		Str("overall", rec.Overall().String()).
		Msg("Alert published")

	return nil
}

func (s *NATSAlerts) Close() error {
	if err := s.pub.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to flush alerts")
	}
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}

	return nil
}

// BuildAlert lists every non-OK reading of rec.
func BuildAlert(rec health.Record) Alert {
	a := Alert{
		PollID:      rec.PollID(),
		DeviceID:    rec.DeviceID(),
		Vendor:      rec.Vendor(),
		Model:       rec.Model(),
		Overall:     rec.Overall(),
		Partial:     rec.Partial(),
		CollectedAt: rec.CollectedAt().UTC().Format(time.RFC3339),
		Items:       []AlertItem{},
	}

	for _, rd := range rec.Readings() {
		if rd.Severity == health.OK {
			continue
		}
		a.Items = append(a.Items, AlertItem{
			Severity:  rd.Severity,
			Component: rd.Category,
			Message:   alertMessage(rd),
		})
	}

	return a
}

func alertMessage(rd health.Reading) string {
	var b strings.Builder
	b.WriteString(rd.Name)
	if rd.Value != nil {
		b.WriteString(": ")
		b.WriteString(strconv.FormatFloat(*rd.Value, 'f', -1, 64))
		if rd.Unit != "" {
			b.WriteString(" " + rd.Unit)
		}
	}
	raw := rd.RawHealth
	if raw == "" {
		raw = "none"
	}
	fmt.Fprintf(&b, " (Status: %s)", raw)

	return b.String()
}

// subjectToken makes a device id safe for use as one subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
}
