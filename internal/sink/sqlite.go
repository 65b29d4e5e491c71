package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig configures the SQLite sink.
type SQLiteConfig struct {
	Path string
	// BatchSize is the number of records buffered before a flush. Values
	// below 1 flush on every write.
	BatchSize int
	// BatchTimeout flushes a partial batch periodically. Zero disables the
	// background flusher.
	BatchTimeout time.Duration
	// BackupDir receives a copy of a database with an outdated schema.
	// Defaults to a "backups" directory next to Path.
	BackupDir string
}

func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errors.New().WithMessage(ErrInvalidConfig, "batch size and timeout must not be negative")
	}

	return nil
}

func (c SQLiteConfig) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.Path), "backups")
}

// SQLite stores records and their readings as time-series rows.
type SQLite struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           SQLiteConfig
	mu            sync.Mutex
	buffer        []health.Record
	closed        bool
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func OpenSQLite(cfg SQLiteConfig, log logger.Logger) (*SQLite, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	dsn := cfg.Path + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("SQLite sink initialized")

	s := &SQLite{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]health.Record, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		s.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go s.flusher()
	} else {
		close(s.flushDoneChan)
	}

	return s, nil
}

func (s *SQLite) Write(ctx context.Context, rec health.Record) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(errors.ErrCanceled, ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFactory.New(ErrSinkClosed)
	}

	s.buffer = append(s.buffer, rec)
	if len(s.buffer) >= s.cfg.BatchSize {
		return s.flush()
	}

	return nil
}

// Flush writes any buffered records.
func (s *SQLite) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flush()
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdownChan)
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}
	<-s.flushDoneChan

	// Without a flusher, the remainder is written here.
	if err := s.Flush(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to flush buffered records")
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := s.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("SQLite sink closed gracefully")

	return nil
}

func (s *SQLite) flusher() {
	defer close(s.flushDoneChan)

	for {
		select {
		case <-s.flushTicker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error().Err(err).Msg("Periodic flush failed")
			}
		case <-s.shutdownChan:
			if err := s.Flush(); err != nil {
				s.logger.Error().Err(err).Msg("Final flush failed")
			}
			return
		}
	}
}

// flush must be called with mu held. On failure the buffer is kept so the
// next flush retries it.
func (s *SQLite) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := s.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	rollback := func(cause error) error {
		if err := tx.Rollback(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, cause)
	}

	recStmt, err := tx.Prepare(insertRecordSQL)
	if err != nil {
		return rollback(err)
	}
	defer recStmt.Close()

	rdStmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		return rollback(err)
	}
	defer rdStmt.Close()

	for _, rec := range s.buffer {
		if err := insertRecord(recStmt, rdStmt, rec); err != nil {
			return rollback(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	s.logger.Debug().Int("records", len(s.buffer)).Msg("Flushed records to database")
	s.buffer = s.buffer[:0]

	return nil
}

func insertRecord(recStmt, rdStmt *sql.Stmt, rec health.Record) error {
	notes, err := json.Marshal(rec.Notes())
	if err != nil {
		return err
	}

	sys := rec.System()
	res, err := recStmt.Exec(
		rec.PollID(), rec.DeviceID(), rec.Vendor(), rec.Model(), rec.Serial(), rec.Variant(),
		sys.Health.String(), sys.HealthRollup.String(), sys.PowerState, sys.ProcessorCount,
		sys.MemoryGiB, sys.BIOSVersion, sys.FirmwareVersion, sys.RedfishVersion,
		rec.CollectedAt().Unix(), rec.Overall().String(),
		rec.Status(health.Thermal).String(),
		rec.Status(health.Power).String(),
		rec.Status(health.Storage).String(),
		rec.Status(health.Network).String(),
		boolToInt(rec.Partial()), string(notes),
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for i, rd := range rec.Readings() {
		var value any
		if rd.Value != nil {
			value = *rd.Value
		}
		if _, err := rdStmt.Exec(
			id, i, rd.Category.String(), rd.Name, value, rd.Unit,
			rd.Severity.String(), rd.VendorKey, rd.RawHealth,
		); err != nil {
			return err
		}
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
