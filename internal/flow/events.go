// internal/flow/events.go
package flow

// Event names a state transition the controller announces to subscribers.
type Event string

const (
	EventAnswerRecorded Event = "answer_recorded"
	EventAdvanced       Event = "advanced"
	EventBack           Event = "back"
	EventBranchStarted  Event = "branch_started"
	EventBranchResolved Event = "branch_resolved"
	EventCompleted      Event = "completed"
	EventCancelled      Event = "cancelled"
)
