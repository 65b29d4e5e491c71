package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// JSONLines writes one JSON object per record.
type JSONLines struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLines writes to w. Close does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// OpenJSONLines appends to the file at path, creating it if needed.
func OpenJSONLines(path string) (*JSONLines, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	s := NewJSONLines(f)
	s.closer = f

	return s, nil
}

func (s *JSONLines) Write(_ context.Context, rec health.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return errors.New().New(ErrSinkClosed)
	}
	if err := s.enc.Encode(rec); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	return nil
}

func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enc = nil
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

func openAppend(path string) (*os.File, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "open_file",
			Path:  path,
			Error: err.Error(),
		})
	}

	return f, nil
}
