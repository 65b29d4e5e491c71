package sink

import (
	"database/sql"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/logger"
)

const (
	SchemaVersion = 2

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS records (
	       id              INTEGER PRIMARY KEY AUTOINCREMENT,
	       poll_id         TEXT NOT NULL,
	       device_id       TEXT NOT NULL,
	       vendor          TEXT NOT NULL,
	       model           TEXT NOT NULL,
	       serial          TEXT NOT NULL,
	       variant         TEXT NOT NULL,
	       system_health   TEXT NOT NULL,
	       system_rollup   TEXT NOT NULL,
	       power_state     TEXT NOT NULL,
	       processor_count INTEGER NOT NULL,
	       memory_gib      REAL NOT NULL,
	       bios_version    TEXT NOT NULL,
	       firmware        TEXT NOT NULL,
	       redfish_version TEXT NOT NULL,
	       collected_at    INTEGER NOT NULL CHECK (typeof(collected_at) = 'integer'),
	       overall_status  TEXT NOT NULL,
	       thermal_status  TEXT NOT NULL,
	       power_status    TEXT NOT NULL,
	       storage_status  TEXT NOT NULL,
	       network_status  TEXT NOT NULL,
	       partial         INTEGER NOT NULL CHECK (partial IN (0, 1)),
	       notes           TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS records_device_time ON records (device_id, collected_at);
	   CREATE TABLE IF NOT EXISTS readings (
	       record_id   INTEGER NOT NULL REFERENCES records (id) ON DELETE CASCADE,
	       seq         INTEGER NOT NULL,
	       category    TEXT NOT NULL,
	       name        TEXT NOT NULL,
	       value       REAL,
	       unit        TEXT NOT NULL,
	       severity    TEXT NOT NULL,
	       vendor_key  TEXT NOT NULL,
	       raw_health  TEXT NOT NULL,
	       PRIMARY KEY (record_id, seq)
	   );`

	insertRecordSQL = `
    INSERT INTO records (
        poll_id, device_id, vendor, model, serial, variant,
        system_health, system_rollup, power_state, processor_count,
        memory_gib, bios_version, firmware, redfish_version,
        collected_at, overall_status,
        thermal_status, power_status, storage_status, network_status,
        partial, notes
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertReadingSQL = `
    INSERT INTO readings (
        record_id, seq, category, name, value, unit,
        severity, vendor_key, raw_health
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

var schemaTables = []string{"readings", "records", "schema_versions"}

// InitSchema creates the tables and records the current schema version.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the newest recorded schema version, or 0 for an
// empty database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
