// internal/suggest/models.go
package suggest

import "cohort-intake/internal/models"

// Request is one suggestion fetch, tagged with the monotonic token used to
// discard stale results.
type Request struct {
	QuestionID    string                        `json:"question_id"`
	PartialAnswer string                        `json:"partial_answer"`
	PriorAnswers  map[string]models.AnswerValue `json:"prior_answers,omitempty"`
	Token         uint64                        `json:"-"`
}

// Response carries the suggestions for a request. An empty list is a valid,
// non-error response.
type Response struct {
	QuestionID  string   `json:"question_id"`
	Suggestions []string `json:"suggestions"`
	Token       uint64   `json:"-"`
}
