// internal/common/errors/handler.go
package errors

import (
	goerrors "errors"
	"strings"
)

// Handler converts collaborator failures into loggable, state-flag friendly
// form at the orchestration boundary. Nothing here ever re-throws: the flow
// must remain completable without any external service.
type Handler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

// Normalize ensures we always have a StandardError. Component packages use
// plain sentinels carrying their code as the message; those are classified
// by code token so the taxonomy holds across package boundaries.
func (h *Handler) Normalize(err error) *StandardError {
	var std *StandardError
	if goerrors.As(err, &std) {
		return std
	}
	if code, ok := codeFromError(err); ok {
		return newStandardError(code, "Operation failed", err.Error())
	}
	return newStandardError(ErrCodeInternal, "Unexpected error", err.Error())
}

var knownCodes = []ErrorCode{
	ErrCodeSuggestionTimeout, ErrCodeSuggestionFailed, ErrCodeSuggestionStale,
	ErrCodeGeocodeAuthFailed, ErrCodeGeocodeInitFailed, ErrCodeGeocodeSearchFailed,
	ErrCodeGeocodeCancelled, ErrCodeGeocodeNoMatches,
	ErrCodeAnalysisTimeout, ErrCodeAnalysisFailed, ErrCodeAnalysisPartialFailure,
	ErrCodeDraftValidationFailed, ErrCodeSaveFailed, ErrCodeCacheUnavailable, ErrCodeIndexFailed,
	ErrCodeRegistryNotFound, ErrCodeRegistryInvalid, ErrCodeNotificationSendFailed,
}

func codeFromError(err error) (ErrorCode, bool) {
	msg := err.Error()
	for _, code := range knownCodes {
		if strings.Contains(msg, string(code)) {
			return code, true
		}
	}
	return "", false
}

// Record logs the failure with its classification and returns the normalized
// error so call sites can fold it into their state flags.
func (h *Handler) Record(op string, err error) *StandardError {
	std := h.Normalize(err)

	fields := map[string]interface{}{
		"operation": op,
		"errorCode": string(std.Code),
		"category":  GetErrorCategory(std.Code),
		"retryable": std.Retryable,
		"details":   std.Details,
	}
	for k, v := range std.Metadata {
		fields[k] = v
	}

	if IsTimeout(std.Code) {
		// Timeouts are recoverable fallback triggers, not hard errors.
		h.logger.Warn("operation timed out, taking fallback", fields)
	} else {
		h.logger.Error("operation failed", fields)
	}
	return std
}
