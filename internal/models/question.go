// internal/models/question.go
package models

// InputKind describes how a question collects its answer.
type InputKind string

const (
	InputFreeText     InputKind = "free_text"
	InputSingleSelect InputKind = "single_select"
	InputComposite    InputKind = "composite"
	InputGeolocation  InputKind = "geolocation"
)

// Field is a sub-field of a composite question.
type Field struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Question is a single intake step. Immutable once created; the set of
// questions in a session grows when AI-generated follow-ups are appended.
type Question struct {
	ID          string    `json:"id"`
	Section     string    `json:"section"`
	Kind        InputKind `json:"kind"`
	Prompt      string    `json:"prompt"`
	Placeholder string    `json:"placeholder,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Fields      []Field   `json:"fields,omitempty"`
	Generated   bool      `json:"generated,omitempty"`
}

// AnswerKey returns the answer-map key for a question, or for one of its
// composite sub-fields when fieldID is non-empty.
func AnswerKey(questionID, fieldID string) string {
	if fieldID == "" {
		return questionID
	}
	return questionID + "." + fieldID
}
