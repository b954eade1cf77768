// internal/models/wizard.go
package models

// Phase is the step-flow controller's coarse state.
type Phase string

const (
	PhaseCollecting     Phase = "collecting"
	PhaseAwaitingAsync  Phase = "awaiting_async"
	PhaseBranchResolved Phase = "branch_resolved"
	PhaseTerminal       Phase = "terminal"
)

// AnswerValue holds one raw answer: a free-text string, a selected option, or
// a resolved location. Exactly one member is set.
type AnswerValue struct {
	Text     string         `json:"text,omitempty"`
	Option   string         `json:"option,omitempty"`
	Location *GeocodeResult `json:"location,omitempty"`
}

// WizardState is the full state of one intake session. Exactly one is live
// per session and only the flow controller mutates it; everyone else sees
// snapshots.
type WizardState struct {
	SessionID string                 `json:"session_id"`
	Questions []Question             `json:"questions"`
	Index     int                    `json:"index"`
	Answers   map[string]AnswerValue `json:"answers"`
	Phase     Phase                  `json:"phase"`

	// Branch outcome, populated when the analysis fan-out settles.
	Draft     *CohortDraft `json:"draft,omitempty"`
	Insights  []string     `json:"insights,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

// Clone returns a deep copy so snapshots handed to subscribers can never
// alias the live state.
func (s *WizardState) Clone() *WizardState {
	out := *s
	out.Questions = make([]Question, len(s.Questions))
	copy(out.Questions, s.Questions)
	out.Answers = make(map[string]AnswerValue, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	if s.Draft != nil {
		d := s.Draft.Clone()
		out.Draft = &d
	}
	if s.Insights != nil {
		out.Insights = append([]string(nil), s.Insights...)
	}
	return &out
}

// Current returns the question at the current index, or nil past the end.
func (s *WizardState) Current() *Question {
	if s.Index < 0 || s.Index >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.Index]
}
