package errors

import (
	stderrors "errors"
	"time"
)

// Action describes what the caller should do with a failed operation.
type Action struct {
	Retry     bool
	Retries   int
	Backoff   time.Duration
	Code      ErrorCode
	Permanent bool
}

// Classify inspects an error and returns the recommended action.
// Unknown errors are treated as retryable external failures.
func Classify(err error) Action {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		retries := GetRetryCount(stdErr.Code)
		return Action{
			Retry:     stdErr.Retryable && retries > 0,
			Retries:   retries,
			Backoff:   backoffFor(stdErr.Code),
			Code:      stdErr.Code,
			Permanent: !stdErr.Retryable,
		}
	}
	return Action{
		Retry:   true,
		Retries: 1,
		Backoff: 2 * time.Second,
		Code:    "EXTERNAL_SERVICE_ERROR",
	}
}

func backoffFor(code ErrorCode) time.Duration {
	switch code {
	case ErrCodeDatabaseConnectionFailed, ErrCodeWorkerRegisterFailed:
		return 5 * time.Second
	case ErrCodeMemoryIngestFailed, ErrCodeCallLogWriteFailed:
		return 3 * time.Second
	default:
		return time.Second
	}
}

// AsStandard extracts a StandardError from err, or wraps err as a generic
// external-service error when it is not one.
func AsStandard(err error, service string) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewExternalServiceError(service, err)
}
