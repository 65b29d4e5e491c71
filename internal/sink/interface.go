package sink

import (
	"codeberg.org/mutker/rfhealth/internal/health"
)

// Sink is a health.Sink that owns resources released by Close.
type Sink interface {
	health.Sink
	Close() error
}

// Publisher is the part of *nats.Conn the alert sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// Alert is the document NATSAlerts publishes.
type Alert struct {
	PollID      string          `json:"poll_id"`
	DeviceID    string          `json:"device_id"`
	Vendor      string          `json:"vendor"`
	Model       string          `json:"model"`
	Overall     health.Severity `json:"overall_status"`
	Partial     bool            `json:"partial"`
	CollectedAt string          `json:"collected_at"`
	Items       []AlertItem     `json:"alerts"`
}

// AlertItem describes one non-OK reading.
type AlertItem struct {
	Severity  health.Severity `json:"severity"`
	Component health.Category `json:"component"`
	Message   string          `json:"message"`
}
