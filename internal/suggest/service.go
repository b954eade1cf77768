// internal/suggest/service.go
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cohort-intake/internal/common/httpclient"
	"cohort-intake/internal/common/logger"
)

var (
	ErrSuggestionTimeout = errors.New("SUGGESTION_TIMEOUT")
	ErrSuggestionFailed  = errors.New("SUGGESTION_FAILED")
)

// Service is the HTTP client for the generation backend's suggestion
// endpoint. Retries with exponential backoff, raced against the context
// deadline.
type Service struct {
	config *Config
	client *httpclient.Client
	logger logger.Logger
}

func NewService(config *Config, log logger.Logger) *Service {
	return &Service{
		config: config,
		// No client-level timeout: the per-request context owns the budget.
		client: httpclient.New(),
		logger: log.With(map[string]interface{}{
			"component": "suggestion-service",
		}),
	}
}

type suggestPayload struct {
	QuestionID    string      `json:"question_id"`
	PartialAnswer string      `json:"partial_answer"`
	PriorAnswers  interface{} `json:"prior_answers,omitempty"`
}

// GenerateSuggestions issues one suggestion fetch. An empty slice with a nil
// error is a valid outcome.
func (s *Service) GenerateSuggestions(ctx context.Context, req *Request) ([]string, error) {
	body, _ := json.Marshal(suggestPayload{
		QuestionID:    req.QuestionID,
		PartialAnswer: req.PartialAnswer,
		PriorAnswers:  req.PriorAnswers,
	})

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrSuggestionTimeout
			}
		}

		// Fresh request per attempt: the previous attempt consumed the body.
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/ai/suggest", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSuggestionFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if s.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
		}

		resp, lastErr = s.client.Do(httpReq)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return nil, ErrSuggestionTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrSuggestionTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSuggestionFailed, lastErr)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrSuggestionFailed)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrSuggestionFailed, err)
	}

	s.logger.Debug("suggestions fetched", map[string]interface{}{
		"questionId": req.QuestionID,
		"count":      len(apiResponse.Suggestions),
	})

	return apiResponse.Suggestions, nil
}
