// internal/common/errors/handler_test.go
package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	warns  []string
	errors []string
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.errors = append(l.errors, msg)
}

func TestNormalize_PassesThroughStandardError(t *testing.T) {
	h := NewHandler(&recordingLogger{})
	original := newStandardError(ErrCodeSaveFailed, "Cohort record save failed", "connection refused")

	std := h.Normalize(fmt.Errorf("saving: %w", original))
	assert.Equal(t, ErrCodeSaveFailed, std.Code)
	assert.Equal(t, "connection refused", std.Details)
}

func TestNormalize_ClassifiesSentinelByCodeToken(t *testing.T) {
	h := NewHandler(&recordingLogger{})

	std := h.Normalize(fmt.Errorf("%w: status 502", goerrors.New("ANALYSIS_FAILED")))
	assert.Equal(t, ErrCodeAnalysisFailed, std.Code)
	assert.True(t, std.Retryable)

	std = h.Normalize(goerrors.New("something else entirely"))
	assert.Equal(t, ErrCodeInternal, std.Code)
}

func TestRecord_TimeoutsLogAsWarnings(t *testing.T) {
	log := &recordingLogger{}
	h := NewHandler(log)

	h.Record("branch-analysis", newStandardError(ErrCodeAnalysisTimeout, "Analysis fan-out exceeded its hard budget", "budget exceeded"))
	require.Len(t, log.warns, 1)
	assert.Empty(t, log.errors)

	h.Record("save-cohort", newStandardError(ErrCodeSaveFailed, "Cohort record save failed", "down"))
	assert.Len(t, log.errors, 1)
}

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newStandardError(ErrCodeGeocodeAuthFailed, "Geocode provider rejected credentials", "401"))
	assert.True(t, goerrors.Is(err, newStandardError(ErrCodeGeocodeAuthFailed, "same code", "details differ")))
	assert.False(t, goerrors.Is(err, newStandardError(ErrCodeSaveFailed, "other code", "x")))
}

func TestClassificationTables(t *testing.T) {
	assert.Equal(t, "persistence", GetErrorCategory(ErrCodeSaveFailed))
	assert.Equal(t, "geocode", GetErrorCategory(ErrCodeGeocodeNoMatches))
	assert.Equal(t, 2, GetRetryCount(ErrCodeSaveFailed))
	assert.Equal(t, 0, GetRetryCount(ErrCodeGeocodeAuthFailed))
	assert.True(t, IsTimeout(ErrCodeAnalysisTimeout))
	assert.False(t, IsTimeout(ErrCodeAnalysisFailed))
}
