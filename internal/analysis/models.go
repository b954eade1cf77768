// internal/analysis/models.go
package analysis

import "cohort-intake/internal/models"

// Request carries the answers collected so far to one of the analysis
// endpoints.
type Request struct {
	SessionID string                 `json:"session_id"`
	Answers   map[string]interface{} `json:"answers"`
}

type followupsResponse struct {
	Questions []models.Question `json:"questions"`
}

type draftResponse struct {
	Draft models.CohortDraft `json:"draft"`
}

type insightsResponse struct {
	Insights []string `json:"insights"`
}

// BranchOutcome is the merged result of the three analysis calls. Any member
// may be absent when its call failed or timed out; the flow continues with
// what arrived.
type BranchOutcome struct {
	Followups []models.Question
	Draft     *models.CohortDraft
	Insights  []string
}
