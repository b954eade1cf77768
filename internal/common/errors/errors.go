// Package errors provides standardized error handling for the intake
// orchestration boundary. Collaborator failures are normalized here and
// converted into state flags rather than propagated across components.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeSuggestionTimeout ErrorCode = "SUGGESTION_TIMEOUT"
	ErrCodeSuggestionFailed  ErrorCode = "SUGGESTION_FAILED"
	ErrCodeSuggestionStale   ErrorCode = "SUGGESTION_STALE"

	ErrCodeGeocodeAuthFailed   ErrorCode = "GEOCODE_AUTH_FAILED"
	ErrCodeGeocodeInitFailed   ErrorCode = "GEOCODE_INIT_FAILED"
	ErrCodeGeocodeSearchFailed ErrorCode = "GEOCODE_SEARCH_FAILED"
	ErrCodeGeocodeCancelled    ErrorCode = "GEOCODE_CANCELLED"
	ErrCodeGeocodeNoMatches    ErrorCode = "GEOCODE_NO_MATCHES"

	ErrCodeAnalysisTimeout        ErrorCode = "ANALYSIS_TIMEOUT"
	ErrCodeAnalysisFailed         ErrorCode = "ANALYSIS_FAILED"
	ErrCodeAnalysisPartialFailure ErrorCode = "ANALYSIS_PARTIAL_FAILURE"

	ErrCodeDraftValidationFailed ErrorCode = "DRAFT_VALIDATION_FAILED"
	ErrCodeSaveFailed            ErrorCode = "SAVE_FAILED"
	ErrCodeCacheUnavailable      ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeIndexFailed           ErrorCode = "INDEX_FAILED"

	ErrCodeRegistryNotFound       ErrorCode = "REGISTRY_NOT_FOUND"
	ErrCodeRegistryInvalid        ErrorCode = "REGISTRY_INVALID"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
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

// Is lets errors.Is match two StandardErrors by code.
func (e *StandardError) Is(target error) bool {
	var std *StandardError
	if errors.As(target, &std) {
		return e.Code == std.Code
	}
	return false
}

// ==========================
// 2. Error Construction
// ==========================

// newStandardError builds the normalized form for a classified code. The
// component packages themselves return plain sentinels; this is only reached
// through Handler.Normalize. Retry policy comes from the classification
// table.
func newStandardError(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: GetRetryCount(code) > 0,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Tables
// ==========================

// GetRetryCount returns how many times an operation carrying this code should
// be retried before the fallback tier takes over.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSuggestionTimeout, ErrCodeSuggestionFailed:
		return 1
	case ErrCodeGeocodeSearchFailed:
		return 1
	case ErrCodeSaveFailed:
		return 2
	case ErrCodeAnalysisFailed:
		return 1
	default:
		return 0
	}
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeSuggestionTimeout, ErrCodeSuggestionFailed, ErrCodeSuggestionStale:
		return "suggestion"
	case ErrCodeGeocodeAuthFailed, ErrCodeGeocodeInitFailed, ErrCodeGeocodeSearchFailed,
		ErrCodeGeocodeCancelled, ErrCodeGeocodeNoMatches:
		return "geocode"
	case ErrCodeAnalysisTimeout, ErrCodeAnalysisFailed, ErrCodeAnalysisPartialFailure:
		return "analysis"
	case ErrCodeDraftValidationFailed, ErrCodeSaveFailed, ErrCodeCacheUnavailable, ErrCodeIndexFailed:
		return "persistence"
	case ErrCodeRegistryNotFound, ErrCodeRegistryInvalid:
		return "registry"
	case ErrCodeNotificationSendFailed:
		return "notification"
	default:
		return "internal"
	}
}

// IsTimeout reports whether the code represents a budget expiry rather than a
// hard failure; callers decide whether a timeout counts as failure.
func IsTimeout(code ErrorCode) bool {
	return code == ErrCodeSuggestionTimeout || code == ErrCodeAnalysisTimeout
}
