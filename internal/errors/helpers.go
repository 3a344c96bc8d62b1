package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewQueryError creates a Secondary store query error
func NewQueryError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeSecondaryQuery, fmt.Sprintf("secondary %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Store operation failed")
}

// NewAPIError creates an error for an external HTTP service call. Status
// codes that indicate the service itself is down map to SOURCE_UNAVAILABLE
// so fallback chains can react; 404 maps to NOT_FOUND.
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch {
	case statusCode == 404:
		code = ErrCodeNotFound
	case statusCode >= 500 || statusCode == 429 || statusCode == 408 || statusCode == 0:
		code = ErrCodeSourceUnavailable
	default:
		switch service {
		case "primary":
			code = ErrCodePrimaryAPI
		case "storage":
			code = ErrCodeStorageAPI
		default:
			code = ErrCodeInternalError
		}
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if code == ErrCodeSourceUnavailable {
		appErr.Retryable = true
	}

	return appErr
}
