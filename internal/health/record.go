package health

import (
	"encoding/json"
	"time"
)

// NoteKind classifies a device-level diagnostic.
type NoteKind string

const (
	NoteGenericFallback     NoteKind = "generic_fallback"
	NoteIdentityUnresolved  NoteKind = "identity_unresolved"
	NoteCategoryAbsent      NoteKind = "category_absent"
	NoteCategoryUnavailable NoteKind = "category_unavailable"
	NoteCategoryTimeout     NoteKind = "category_timeout"
	NoteModelUnlisted       NoteKind = "model_unlisted"
)

// Note is a diagnostic attached to a record. It is never a Reading.
type Note struct {
	Kind     NoteKind `json:"kind"`
	Category Category `json:"category,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Record is the immutable result of one device poll. Build it with a
// Builder; accessors return copies.
type Record struct {
	pollID      string
	deviceID    string
	vendor      string
	model       string
	serial      string
	variant     string
	system      System
	readings    []Reading
	status      map[Category]Severity
	overall     Severity
	collectedAt time.Time
	partial     bool
	notes       []Note
}

func (r Record) PollID() string   { return r.pollID }
func (r Record) DeviceID() string { return r.deviceID }
func (r Record) Vendor() string   { return r.vendor }
func (r Record) Model() string    { return r.model }
func (r Record) Serial() string   { return r.serial }

// Variant names the capability provider that produced the readings.
func (r Record) Variant() string { return r.variant }

func (r Record) System() System { return r.system }

func (r Record) Overall() Severity      { return r.overall }
func (r Record) CollectedAt() time.Time { return r.collectedAt }

// Partial reports that at least one category failed; the record is not
// authoritative for those categories.
func (r Record) Partial() bool { return r.partial }

// IsZero reports whether r was never finalized.
func (r Record) IsZero() bool { return r.collectedAt.IsZero() && r.deviceID == "" }

// Readings returns the readings in category order, then extraction order.
func (r Record) Readings() []Reading {
	out := make([]Reading, len(r.readings))
	for i, rd := range r.readings {
		out[i] = rd.clone()
	}

	return out
}

// ReadingsFor returns the readings of one category.
func (r Record) ReadingsFor(c Category) []Reading {
	var out []Reading
	for _, rd := range r.readings {
		if rd.Category == c {
			out = append(out, rd.clone())
		}
	}

	return out
}

// CategoryStatus returns a copy of the per-category severities. Every
// category is present.
func (r Record) CategoryStatus() map[Category]Severity {
	out := make(map[Category]Severity, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}

	return out
}

// Status returns one category's severity.
func (r Record) Status(c Category) Severity {
	if s, ok := r.status[c]; ok {
		return s
	}

	return Unknown
}

func (r Record) Notes() []Note {
	return append([]Note(nil), r.notes...)
}

// HasNote reports whether a note of kind exists, optionally for a category.
func (r Record) HasNote(kind NoteKind, c Category) bool {
	for _, n := range r.notes {
		if n.Kind == kind && (c == "" || n.Category == c) {
			return true
		}
	}

	return false
}

type recordJSON struct {
	PollID            string                `json:"poll_id"`
	DeviceID          string                `json:"device_id"`
	Vendor            string                `json:"vendor"`
	Model             string                `json:"model"`
	Serial            string                `json:"serial,omitempty"`
	Variant           string                `json:"variant"`
	System            *System               `json:"system,omitempty"`
	Readings          []Reading             `json:"readings"`
	PerCategoryStatus map[Category]Severity `json:"per_category_status"`
	OverallStatus     Severity              `json:"overall_status"`
	CollectedAt       time.Time             `json:"collected_at"`
	Partial           bool                  `json:"partial"`
	Notes             []Note                `json:"notes,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	readings := r.Readings()
	if readings == nil {
		readings = []Reading{}
	}

	return json.Marshal(recordJSON{
		PollID:            r.pollID,
		DeviceID:          r.deviceID,
		Vendor:            r.vendor,
		Model:             r.model,
		Serial:            r.serial,
		Variant:           r.variant,
		System:            &r.system,
		Readings:          readings,
		PerCategoryStatus: r.CategoryStatus(),
		OverallStatus:     r.overall,
		CollectedAt:       r.collectedAt,
		Partial:           r.partial,
		Notes:             r.notes,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var v recordJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*r = Record{
		pollID:      v.PollID,
		deviceID:    v.DeviceID,
		vendor:      v.Vendor,
		model:       v.Model,
		serial:      v.Serial,
		variant:     v.Variant,
		system:      UnknownSystem(),
		readings:    v.Readings,
		status:      v.PerCategoryStatus,
		overall:     v.OverallStatus,
		collectedAt: v.CollectedAt,
		partial:     v.Partial,
		notes:       v.Notes,
	}
	if v.System != nil {
		r.system = v.System.normalized()
	}
	if r.status == nil {
		r.status = map[Category]Severity{}
	}
	for _, c := range Categories() {
		if _, ok := r.status[c]; !ok {
			r.status[c] = Unknown
		}
	}

	return nil
}
