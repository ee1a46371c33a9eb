// Package errors provides standardized error handling for the agent worker.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUserLookupFailed   ErrorCode = "USER_LOOKUP_FAILED"
	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeMemoryFetchFailed  ErrorCode = "MEMORY_FETCH_FAILED"
	ErrCodeMemoryIngestFailed ErrorCode = "MEMORY_INGEST_FAILED"
	ErrCodeSessionCreate      ErrorCode = "MEMORY_SESSION_CREATE_FAILED"

	ErrCodeWorkflowCreateFailed ErrorCode = "WORKFLOW_CREATE_FAILED"
	ErrCodeWorkflowListFailed   ErrorCode = "WORKFLOW_LIST_FAILED"
	ErrCodeWorkflowDeleteFailed ErrorCode = "WORKFLOW_DELETE_FAILED"
	ErrCodeWorkflowNotOwned     ErrorCode = "WORKFLOW_NOT_OWNED"
	ErrCodeTemplateNotFound     ErrorCode = "WORKFLOW_TEMPLATE_NOT_FOUND"
	ErrCodeTemplateInvalid      ErrorCode = "WORKFLOW_TEMPLATE_INVALID"

	ErrCodeWebSearchFailed   ErrorCode = "WEB_SEARCH_FAILED"
	ErrCodeWebSearchTimeout  ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeMediaLookupFailed ErrorCode = "MEDIA_LOOKUP_FAILED"

	ErrCodeDeviceRPCFailed  ErrorCode = "DEVICE_RPC_FAILED"
	ErrCodeDeviceRPCTimeout ErrorCode = "DEVICE_RPC_TIMEOUT"

	ErrCodeRealtimeSessionFailed ErrorCode = "REALTIME_SESSION_FAILED"
	ErrCodeWorkerRegisterFailed  ErrorCode = "WORKER_REGISTER_FAILED"
	ErrCodeNoParticipant         ErrorCode = "NO_REMOTE_PARTICIPANT"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeCallLogWriteFailed       ErrorCode = "CALL_LOG_WRITE_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// --- Constructors ---

// NewUserLookupFailedError creates a retryable directory error.
func NewUserLookupFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUserLookupFailed,
		Message:   "Platform user lookup error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserNotFoundError creates a non-retryable directory error.
func NewUserNotFoundError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUserNotFound,
		Message:   "User not found in platform directory",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMemoryFetchFailedError creates a retryable memory store error.
func NewMemoryFetchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMemoryFetchFailed,
		Message:   "Memory store fetch error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMemoryIngestFailedError creates a retryable memory ingestion error.
func NewMemoryIngestFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMemoryIngestFailed,
		Message:   "Memory ingestion error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionCreateError creates a retryable memory session error.
func NewSessionCreateError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionCreate,
		Message:   "Memory session creation error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowCreateFailedError creates a retryable workflow error.
func NewWorkflowCreateFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowCreateFailed,
		Message:   "Scheduled workflow creation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowListFailedError creates a retryable workflow error.
func NewWorkflowListFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowListFailed,
		Message:   "Scheduled workflow listing failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowDeleteFailedError creates a retryable workflow error.
func NewWorkflowDeleteFailedError(workflowID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowDeleteFailed,
		Message:   "Scheduled workflow deletion failed",
		Details:   fmt.Sprintf("workflowId: %s, error: %s", workflowID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowNotOwnedError creates a non-retryable ownership error.
func NewWorkflowNotOwnedError(workflowID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowNotOwned,
		Message:   "Workflow does not belong to the caller",
		Details:   fmt.Sprintf("workflowId: %s", workflowID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Workflow template not found",
		Details:   fmt.Sprintf("template: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateInvalidError creates a non-retryable template validation error.
func NewTemplateInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateInvalid,
		Message:   "Rendered workflow template failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebSearchFailedError creates a retryable search error.
func NewWebSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWebSearchFailed,
		Message:   "Web search API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebSearchTimeoutError creates a non-retryable (degrade, don't retry)
// web search timeout error.
func NewWebSearchTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeWebSearchTimeout,
		Message:   "Web search API timeout",
		Details:   "search call exceeded its budget",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMediaLookupFailedError creates a retryable media catalogue error.
func NewMediaLookupFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMediaLookupFailed,
		Message:   "Media catalogue lookup error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeviceRPCFailedError creates a retryable device RPC error.
func NewDeviceRPCFailedError(method string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeviceRPCFailed,
		Message:   "Device RPC error",
		Details:   fmt.Sprintf("method: %s, error: %s", method, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeviceRPCTimeoutError creates a retryable device RPC timeout error.
func NewDeviceRPCTimeoutError(method string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeviceRPCTimeout,
		Message:   "Device RPC timeout",
		Details:   fmt.Sprintf("method: %s", method),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRealtimeSessionFailedError creates a retryable realtime model error.
func NewRealtimeSessionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRealtimeSessionFailed,
		Message:   "Realtime model session error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkerRegisterFailedError creates a retryable worker registration error.
func NewWorkerRegisterFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkerRegisterFailed,
		Message:   "Agent worker registration failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoParticipantError creates a non-retryable room error.
func NewNoParticipantError(room string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoParticipant,
		Message:   "No remote participant joined the room",
		Details:   fmt.Sprintf("room: %s", room),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCallLogWriteFailedError creates a retryable call-log error.
func NewCallLogWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCallLogWriteFailed,
		Message:   "Call log write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUserLookupFailed,
		ErrCodeMemoryFetchFailed,
		ErrCodeMemoryIngestFailed,
		ErrCodeSessionCreate,
		ErrCodeWorkflowCreateFailed,
		ErrCodeWorkflowListFailed,
		ErrCodeWorkflowDeleteFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeCallLogWriteFailed:
		return 3 // retryable technical errors

	case ErrCodeDeviceRPCTimeout,
		ErrCodeRealtimeSessionFailed,
		ErrCodeWorkerRegisterFailed:
		return 2

	case ErrCodeWebSearchFailed,
		ErrCodeMediaLookupFailed,
		ErrCodeDeviceRPCFailed:
		return 1

	default:
		return 0 // business errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "USER"):
		return "DIRECTORY"
	case strings.Contains(codeStr, "MEMORY"):
		return "MEMORY"
	case strings.Contains(codeStr, "WORKFLOW") || strings.Contains(codeStr, "TEMPLATE"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "MEDIA"):
		return "SEARCH"
	case strings.Contains(codeStr, "RPC"):
		return "DEVICE"
	case strings.Contains(codeStr, "REALTIME") || strings.Contains(codeStr, "WORKER") || strings.Contains(codeStr, "PARTICIPANT"):
		return "SESSION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CALL_LOG"):
		return "STORAGE"
	default:
		return "OTHER"
	}
}
