package sink

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
)

// CSVHeader lists the columns CSV writes.
var CSVHeader = []string{
	"timestamp", "device_id", "vendor", "model",
	"category", "metric_name", "value", "unit", "status",
}

// OverallMetric is the metric_name of the per-record summary row.
const OverallMetric = "overall_status"

// CSV writes one row per reading plus a summary row per record.
type CSV struct {
	mu          sync.Mutex
	w           *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

// NewCSV writes to w, starting with the header row.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(w)}
}

// OpenCSV appends to the file at path. The header is written only when the
// file is empty.
func OpenCSV(path string) (*CSV, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.New().Wrap(ErrStorageInit, err)
	}

	s := NewCSV(f)
	s.closer = f
	s.wroteHeader = st.Size() > 0

	return s, nil
}

func (s *CSV) Write(_ context.Context, rec health.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return errors.New().New(ErrSinkClosed)
	}

	if !s.wroteHeader {
		if err := s.w.Write(CSVHeader); err != nil {
			return errors.New().Wrap(ErrWriteFailed, err)
		}
		s.wroteHeader = true
	}

	for _, r := range csvRows(rec) {
		if err := s.w.Write(r); err != nil {
			return errors.New().Wrap(ErrWriteFailed, err)
		}
	}

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	return nil
}

func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w != nil {
		s.w.Flush()
		s.w = nil
	}
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	if err := c.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}

func csvRows(rec health.Record) [][]string {
	ts := rec.CollectedAt().UTC().Format(time.RFC3339)
	prefix := []string{ts, rec.DeviceID(), rec.Vendor(), rec.Model()}

	readings := rec.Readings()
	rows := make([][]string, 0, len(readings)+1)
	rows = append(rows, row(prefix, "", OverallMetric, "", "status", rec.Overall().String()))

	for _, rd := range readings {
		value := ""
		if rd.Value != nil {
			value = strconv.FormatFloat(*rd.Value, 'f', -1, 64)
		}
		rows = append(rows, row(prefix, rd.Category.String(), rd.Name, value, rd.Unit, rd.Severity.String()))
	}

	return rows
}

func row(prefix []string, fields ...string) []string {
	out := make([]string, 0, len(prefix)+len(fields))
	out = append(out, prefix...)

	return append(out, fields...)
}
