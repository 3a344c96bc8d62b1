package errors

import (
	stderrors "errors"

	"github.com/sirupsen/logrus"
)

// LogFields returns the structured fields an AppError carries, for attaching
// to a logrus entry at the call site.
func LogFields(err error) logrus.Fields {
	fields := logrus.Fields{}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// LogError logs an error with its structured context.
func LogError(logger *logrus.Logger, err error, message string) {
	logger.WithError(err).WithFields(LogFields(err)).Error(message)
}

// LogWarn logs an absorbed error (a failure with a remaining fallback) with
// its structured context.
func LogWarn(logger *logrus.Logger, err error, message string) {
	logger.WithError(err).WithFields(LogFields(err)).Warn(message)
}
