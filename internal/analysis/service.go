// internal/analysis/service.go
package analysis

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
	"cohort-intake/internal/models"
)

var (
	ErrAnalysisTimeout = errors.New("ANALYSIS_TIMEOUT")
	ErrAnalysisFailed  = errors.New("ANALYSIS_FAILED")
)

// Service is the HTTP client for the generation backend's three analysis
// endpoints. The three calls are independent: the flow controller fans them
// out together and each one succeeds or fails on its own.
type Service struct {
	config *Config
	client *httpclient.Client
	logger logger.Logger
}

func NewService(config *Config, log logger.Logger) *Service {
	return &Service{
		config: config,
		client: httpclient.New(),
		logger: log.With(map[string]interface{}{
			"component": "analysis-service",
		}),
	}
}

// GenerateFollowups asks for targeted follow-up questions based on the
// answers so far. Zero questions with a nil error is a valid outcome: the
// flow skips the follow-up segment entirely.
func (s *Service) GenerateFollowups(ctx context.Context, req *Request) ([]models.Question, error) {
	var body followupsResponse
	if err := s.post(ctx, "/api/ai/followups", req, &body); err != nil {
		return nil, err
	}
	for i := range body.Questions {
		body.Questions[i].Generated = true
	}
	s.logger.Debug("follow-up questions generated", map[string]interface{}{
		"sessionId": req.SessionID,
		"count":     len(body.Questions),
	})
	return body.Questions, nil
}

// GenerateDraft asks for a first-cut cohort profile built from the answers
// so far.
func (s *Service) GenerateDraft(ctx context.Context, req *Request) (*models.CohortDraft, error) {
	var body draftResponse
	if err := s.post(ctx, "/api/ai/draft", req, &body); err != nil {
		return nil, err
	}
	s.logger.Debug("draft profile generated", map[string]interface{}{
		"sessionId": req.SessionID,
	})
	return &body.Draft, nil
}

// GenerateInsights asks for positioning insights derived from the answers so
// far.
func (s *Service) GenerateInsights(ctx context.Context, req *Request) ([]string, error) {
	var body insightsResponse
	if err := s.post(ctx, "/api/ai/insights", req, &body); err != nil {
		return nil, err
	}
	s.logger.Debug("positioning insights generated", map[string]interface{}{
		"sessionId": req.SessionID,
		"count":     len(body.Insights),
	})
	return body.Insights, nil
}

// post issues one analysis call with retry and exponential backoff, raced
// against the context deadline.
func (s *Service) post(ctx context.Context, path string, req *Request, out interface{}) error {
	payload, _ := json.Marshal(req)

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ErrAnalysisTimeout
			}
		}

		lastErr = s.attempt(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ErrAnalysisTimeout
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrAnalysisFailed, path, lastErr)
}

// attempt runs a single request. A per-attempt deadline keeps one hung call
// from consuming the remaining retry budget.
func (s *Service) attempt(ctx context.Context, path string, payload []byte, out interface{}) error {
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode error: %v", err)
	}
	return nil
}
