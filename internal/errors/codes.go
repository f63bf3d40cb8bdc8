package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig     ErrorCode = "invalid_configuration"
	ErrMissingConfig     ErrorCode = "missing_configuration"
	ErrBindFlags         ErrorCode = "bind_flags_failed"
	ErrReadConfig        ErrorCode = "read_config_failed"
	ErrInvalidThresholds ErrorCode = "invalid_thresholds"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Transport errors
	ErrTransport   ErrorCode = "transport_failed"
	ErrTimeout     ErrorCode = "operation_timeout"
	ErrInterrupted ErrorCode = "interrupted"

	// Log line errors
	ErrLogFormat        ErrorCode = "log_format_invalid"
	ErrUnknownMonth     ErrorCode = "unknown_month"
	ErrInvalidTimestamp ErrorCode = "invalid_timestamp"

	// Data errors
	ErrZeroLicensed ErrorCode = "zero_licensed_bandwidth"
	ErrClockSkew    ErrorCode = "clock_skew"
	ErrLogTooOld    ErrorCode = "log_too_old"

	// Journal errors
	ErrInitJournal   ErrorCode = "init_journal_failed"
	ErrRecordJournal ErrorCode = "record_journal_failed"
	ErrCloseJournal  ErrorCode = "close_journal_failed"

	// Export errors
	ErrExportMetrics ErrorCode = "export_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrAlreadyRunning:    "Another check is already running for this host",
	ErrInvalidConfig:     "Invalid configuration",
	ErrMissingConfig:     "Missing configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read config file",
	ErrInvalidThresholds: "Invalid thresholds",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrTransport:         "Remote command failed",
	ErrTimeout:           "Operation timed out",
	ErrInterrupted:       "Check interrupted",
	ErrLogFormat:         "Unexpected log line format",
	ErrUnknownMonth:      "Unknown month in log timestamp",
	ErrInvalidTimestamp:  "Invalid log timestamp",
	ErrZeroLicensed:      "Licensed bandwidth is zero",
	ErrClockSkew:         "Log entry is in the future, system clock problem",
	ErrLogTooOld:         "Log entry is more than a year old",
	ErrInitJournal:       "Failed to initialize journal",
	ErrRecordJournal:     "Failed to record check in journal",
	ErrCloseJournal:      "Failed to close journal",
	ErrExportMetrics:     "Failed to export metrics",
}

var errorKinds = map[ErrorCode]Kind{
	ErrTransport:         KindTransport,
	ErrTimeout:           KindTransport,
	ErrInterrupted:       KindTransport,
	ErrLogFormat:         KindFormat,
	ErrUnknownMonth:      KindFormat,
	ErrInvalidTimestamp:  KindFormat,
	ErrZeroLicensed:      KindData,
	ErrClockSkew:         KindData,
	ErrLogTooOld:         KindData,
	ErrInvalidConfig:     KindConfig,
	ErrMissingConfig:     KindConfig,
	ErrBindFlags:         KindConfig,
	ErrReadConfig:        KindConfig,
	ErrInvalidThresholds: KindConfig,
	ErrInvalidLogLevel:   KindConfig,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
