package journal

import "codeberg.org/mutker/bwcheck/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDSN    = errors.ErrorCode("journal_invalid_dsn")
	ErrInvalidDriver = errors.ErrorCode("journal_invalid_driver")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("journal_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("journal_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("journal_schema_migration_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitJournal
	ErrStorageClose = errors.ErrCloseJournal

	// Record Errors
	ErrRecord       = errors.ErrRecordJournal
	ErrInvalidEntry = errors.ErrorCode("journal_invalid_entry")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.RegisterKind(ErrInvalidDSN, errors.KindConfig)
	errors.RegisterKind(ErrInvalidDriver, errors.KindConfig)
}
