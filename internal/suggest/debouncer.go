// internal/suggest/debouncer.go
package suggest

import (
	"context"
	"strings"
	"sync"
	"time"

	"cohort-intake/internal/async"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/common/metrics"
	"cohort-intake/internal/models"
)

// Fetcher is the narrow contract the debouncer needs from the suggestion
// backend.
type Fetcher interface {
	GenerateSuggestions(ctx context.Context, req *Request) ([]string, error)
}

// ApplyFunc receives the suggestions for the question they were requested
// for. It is only ever invoked with the latest non-stale response; a failed
// or timed-out fetch applies an empty list.
type ApplyFunc func(questionID string, suggestions []string)

// AnswersFunc supplies the answers collected so far, read at fire time so
// each request carries the prior context the backend conditions on. May be
// nil.
type AnswersFunc func() map[string]models.AnswerValue

// Debouncer implements trailing-edge debounce over input changes: the fetch
// fires once input has been stable for the configured window, and every
// superseded request is either cancelled before it starts or its response is
// discarded by token comparison when it lands.
type Debouncer struct {
	config  *Config
	fetcher Fetcher
	answers AnswersFunc
	apply   ApplyFunc
	logger  logger.Logger

	mu             sync.Mutex
	timer          *time.Timer
	timerGen       uint64
	timerQuestion  string
	pendingValue   string
	nextToken      uint64
	latestByQID    map[string]uint64
	activeQuestion string
	closed         bool
}

func NewDebouncer(config *Config, fetcher Fetcher, answers AnswersFunc, apply ApplyFunc, log logger.Logger) *Debouncer {
	return &Debouncer{
		config:      config,
		fetcher:     fetcher,
		answers:     answers,
		apply:       apply,
		latestByQID: make(map[string]uint64),
		logger: log.With(map[string]interface{}{
			"component": "suggestion-debouncer",
		}),
	}
}

// OnInputChanged registers a keystroke-level change for a question. Inputs
// below the minimum length never arm the timer; a qualifying input restarts
// it. A change for a different question cancels the pending timer and
// invalidates any in-flight request for the question being left.
func (d *Debouncer) OnInputChanged(questionID, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if d.activeQuestion != "" && d.activeQuestion != questionID {
		d.stopTimerLocked()
		// Bump the token so a response in flight for the previous question can
		// never render against this one.
		d.nextToken++
		d.latestByQID[d.activeQuestion] = d.nextToken
	}
	d.activeQuestion = questionID

	if len(strings.TrimSpace(value)) < d.config.MinInputLength {
		d.stopTimerLocked()
		return
	}

	d.pendingValue = value
	d.timerQuestion = questionID

	if d.timer != nil {
		d.timer.Stop()
	}
	// The generation gates out a previous timer callback that lost the Stop
	// race: only the newest armed timer may fire.
	d.timerGen++
	gen := d.timerGen
	d.timer = time.AfterFunc(d.config.DebounceWindow, func() {
		d.fire(questionID, gen)
	})
}

// OnQuestionClosed cancels any pending timer and invalidates in-flight
// requests for the question, without arming a new timer.
func (d *Debouncer) OnQuestionClosed(questionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timerQuestion == questionID {
		d.stopTimerLocked()
	}
	d.nextToken++
	d.latestByQID[questionID] = d.nextToken
	if d.activeQuestion == questionID {
		d.activeQuestion = ""
	}
}

// Close stops the debouncer for good; late timers and responses become no-ops.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.stopTimerLocked()
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerGen++
	d.timerQuestion = ""
}

// fire runs when the debounce window elapses with no further input. Exactly
// one request is issued, tagged with a fresh token; any previous in-flight
// request for the question is stale from this point on.
func (d *Debouncer) fire(questionID string, gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.timerGen || d.timerQuestion != questionID {
		d.mu.Unlock()
		return
	}
	value := d.pendingValue
	d.timerQuestion = ""
	d.timer = nil

	d.nextToken++
	token := d.nextToken
	d.latestByQID[questionID] = token
	answers := d.answers
	d.mu.Unlock()

	metrics.SuggestionRequests.WithLabelValues(questionID).Inc()

	req := &Request{
		QuestionID:    questionID,
		PartialAnswer: value,
		Token:         token,
	}
	if answers != nil {
		req.PriorAnswers = answers()
	}

	go func() {
		outcome := async.RaceWithTimeout(context.Background(), d.config.RequestTimeout, func(ctx context.Context) ([]string, error) {
			return d.fetcher.GenerateSuggestions(ctx, req)
		})

		// Collaborator failure or timeout degrades to "no suggestions", never
		// an error surfaced to the flow.
		var suggestions []string
		switch outcome.Kind {
		case async.Success:
			suggestions = outcome.Value
		case async.TimedOut:
			d.logger.Warn("suggestion fetch timed out", map[string]interface{}{
				"questionId": questionID,
			})
		case async.Failed:
			d.logger.Warn("suggestion fetch failed", map[string]interface{}{
				"questionId": questionID,
				"error":      outcome.Err.Error(),
			})
		}
		d.deliver(questionID, token, suggestions)
	}()
}

// deliver applies a response only if its token is still the latest for the
// question and the user has not moved on; stale responses are dropped
// silently.
func (d *Debouncer) deliver(questionID string, token uint64, suggestions []string) {
	d.mu.Lock()
	if d.closed || d.latestByQID[questionID] != token || d.activeQuestion != questionID {
		d.mu.Unlock()
		metrics.SuggestionStaleDrops.WithLabelValues(questionID).Inc()
		return
	}
	apply := d.apply
	d.mu.Unlock()

	if apply != nil {
		apply(questionID, suggestions)
	}
}
