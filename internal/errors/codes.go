package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrBindFlags     ErrorCode = "bind_flags_failed"
	ErrReadConfig    ErrorCode = "read_config_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Protocol errors
	ErrInvalidRequest    ErrorCode = "invalid_request"
	ErrUnsupportedMethod ErrorCode = "unsupported_method"

	// Capture errors
	ErrPermissionDenied  ErrorCode = "permission_denied"
	ErrNoSourceAvailable ErrorCode = "no_source_available"
	ErrNotRunning        ErrorCode = "not_running"
	ErrInvalidParameter  ErrorCode = "invalid_parameter"

	// Writer errors
	ErrWriterConfigurationFailed ErrorCode = "writer_configuration_failed"
	ErrWriterFailed              ErrorCode = "writer_failed"
	ErrWriterCancelled           ErrorCode = "writer_cancelled"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:                  "Internal error occurred",
	ErrInvalidArgument:           "Invalid argument provided",
	ErrNotImplemented:            "Operation not implemented",
	ErrInvalidConfig:             "Invalid configuration",
	ErrBindFlags:                 "Failed to bind flags",
	ErrReadConfig:                "Failed to read configuration",
	ErrInvalidLogLevel:           "Invalid log level",
	ErrInvalidRequest:            "Invalid JSON request",
	ErrUnsupportedMethod:         "Unsupported method",
	ErrPermissionDenied:          "Capture permission denied",
	ErrNoSourceAvailable:         "No capturable source available",
	ErrNotRunning:                "Start capture before recording",
	ErrInvalidParameter:          "Invalid parameter",
	ErrWriterConfigurationFailed: "Failed to configure media writer",
	ErrWriterFailed:              "Media writer failed",
	ErrWriterCancelled:           "Media writer cancelled",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
