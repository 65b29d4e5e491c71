package sink

import "codeberg.org/mutker/rfhealth/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("sink_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("sink_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("sink_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("sink_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("sink_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Write Errors
	ErrWriteFailed   = errors.ErrorCode("sink_write_failed")
	ErrPublishFailed = errors.ErrorCode("sink_publish_failed")
	ErrSinkClosed    = errors.ErrInvalidOperation
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidDBPath:          "Invalid database path",
		ErrSchemaInitFailed:       "Failed to initialize schema",
		ErrSchemaValidationFailed: "Failed to validate schema",
		ErrSchemaMigrationFailed:  "Failed to migrate schema",
		ErrTransactionFailed:      "Database transaction failed",
		ErrWriteFailed:            "Failed to write record",
		ErrPublishFailed:          "Failed to publish alert",
	})
}
