// internal/flow/controller.go
package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cohort-intake/internal/analysis"
	"cohort-intake/internal/async"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/common/metrics"
	"cohort-intake/internal/models"

	"github.com/google/uuid"
)

// Analyzer is the slice of the analysis service the controller fans out to
// at the branch step.
type Analyzer interface {
	GenerateFollowups(ctx context.Context, req *analysis.Request) ([]models.Question, error)
	GenerateDraft(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error)
	GenerateInsights(ctx context.Context, req *analysis.Request) ([]string, error)
}

// Config holds the controller's flow settings.
type Config struct {
	// BranchQuestionID marks the question whose answer triggers the
	// analysis fan-out.
	BranchQuestionID string
	// AnalysisTimeout is the total budget for the fan-out; on expiry the
	// flow proceeds with whatever settled in time.
	AnalysisTimeout time.Duration
}

// ChangeFunc receives a state snapshot after every transition. The snapshot
// is a deep copy; holding onto it is safe. It runs under the controller's
// lock, so it must not call back into the controller.
type ChangeFunc func(state *models.WizardState, event Event)

// Controller owns the live wizard state for one session. All mutation goes
// through its methods under a single lock; the analysis fan-out runs off the
// lock and re-enters through an epoch gate so a superseded or abandoned
// fan-out can never touch current state.
type Controller struct {
	config   *Config
	analyzer Analyzer
	onChange ChangeFunc
	logger   logger.Logger

	mu          sync.Mutex
	state       *models.WizardState
	branchEpoch uint64
}

func NewController(config *Config, questions []models.Question, analyzer Analyzer, onChange ChangeFunc, log logger.Logger) *Controller {
	sessionID := uuid.New().String()
	c := &Controller{
		config:   config,
		analyzer: analyzer,
		onChange: onChange,
		logger: log.With(map[string]interface{}{
			"component": "flow-controller",
			"sessionId": sessionID,
		}),
		state: &models.WizardState{
			SessionID: sessionID,
			Questions: append([]models.Question(nil), questions...),
			Answers:   make(map[string]models.AnswerValue),
			Phase:     models.PhaseCollecting,
		},
	}
	return c
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() *models.WizardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SetAnswer records an answer for the current question without advancing.
// fieldID is empty for simple kinds and names the sub-field for composite
// questions, so one composite question accumulates several keyed answers.
func (c *Controller) SetAnswer(fieldID string, value models.AnswerValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != models.PhaseCollecting {
		return fmt.Errorf("cannot record an answer in phase %s", c.state.Phase)
	}
	current := c.state.Current()
	if current == nil {
		return fmt.Errorf("no current question at index %d", c.state.Index)
	}

	c.state.Answers[models.AnswerKey(current.ID, fieldID)] = value
	c.emitLocked(EventAnswerRecorded)
	return nil
}

// Next advances past the current question. On the branch question it starts
// the analysis fan-out instead; past the last question it completes the
// session.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != models.PhaseCollecting {
		return fmt.Errorf("cannot advance in phase %s", c.state.Phase)
	}

	current := c.state.Current()
	if current != nil && current.ID == c.config.BranchQuestionID {
		c.startBranchLocked()
		return nil
	}

	c.state.Index++
	if c.state.Index >= len(c.state.Questions) {
		c.state.Phase = models.PhaseTerminal
		c.emitLocked(EventCompleted)
		return nil
	}
	c.emitLocked(EventAdvanced)
	return nil
}

// Back steps to the previous question. At the first question it is a no-op,
// not an error.
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != models.PhaseCollecting || c.state.Index == 0 {
		return
	}
	c.state.Index--
	c.emitLocked(EventBack)
}

// Cancel ends the session from any non-terminal phase. A fan-out still in
// flight is abandoned; its completion will find the phase changed and drop.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == models.PhaseTerminal {
		return
	}
	c.state.Phase = models.PhaseTerminal
	c.state.Cancelled = true
	c.emitLocked(EventCancelled)
}

func (c *Controller) startBranchLocked() {
	c.state.Phase = models.PhaseAwaitingAsync
	c.branchEpoch++
	epoch := c.branchEpoch
	req := &analysis.Request{
		SessionID: c.state.SessionID,
		Answers:   flattenAnswers(c.state.Answers),
	}
	c.emitLocked(EventBranchStarted)

	go c.runBranch(epoch, req)
}

// runBranch fans the three analysis calls out together under one total
// budget. Each call succeeds or fails on its own; a timeout abandons the
// whole batch and the flow proceeds with nothing.
func (c *Controller) runBranch(epoch uint64, req *analysis.Request) {
	start := time.Now()

	outcome := async.RaceWithTimeout(context.Background(), c.config.AnalysisTimeout,
		func(ctx context.Context) (*analysis.BranchOutcome, error) {
			results := async.RunAllTolerant(ctx,
				func(ctx context.Context) (interface{}, error) {
					return c.analyzer.GenerateFollowups(ctx, req)
				},
				func(ctx context.Context) (interface{}, error) {
					return c.analyzer.GenerateDraft(ctx, req)
				},
				func(ctx context.Context) (interface{}, error) {
					return c.analyzer.GenerateInsights(ctx, req)
				},
			)

			merged := &analysis.BranchOutcome{}
			if results[0].Kind == async.Success {
				merged.Followups, _ = results[0].Value.([]models.Question)
			}
			if results[1].Kind == async.Success {
				merged.Draft, _ = results[1].Value.(*models.CohortDraft)
			}
			if results[2].Kind == async.Success {
				merged.Insights, _ = results[2].Value.([]string)
			}
			for i, r := range results {
				if r.Kind == async.Failed {
					c.logger.Warn("analysis call failed, continuing without it", map[string]interface{}{
						"call":  [3]string{"followups", "draft", "insights"}[i],
						"error": r.Err.Error(),
					})
				}
			}
			return merged, nil
		})

	metrics.AnalysisFanoutDuration.WithLabelValues(outcome.Kind.String()).Observe(time.Since(start).Seconds())

	if outcome.Kind == async.TimedOut {
		c.logger.Warn("analysis fan-out exceeded its budget, proceeding without results", map[string]interface{}{
			"budget": c.config.AnalysisTimeout.String(),
		})
		c.applyBranch(epoch, &analysis.BranchOutcome{})
		return
	}
	c.applyBranch(epoch, outcome.Value)
}

// applyBranch folds a fan-out's outcome into the state. Gated on the epoch
// and the phase: a completion arriving after cancellation, or after its
// budget already expired and the empty outcome was applied, is dropped.
func (c *Controller) applyBranch(epoch uint64, out *analysis.BranchOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.branchEpoch || c.state.Phase != models.PhaseAwaitingAsync {
		c.logger.Debug("stale branch outcome dropped", map[string]interface{}{
			"epoch": epoch,
		})
		return
	}

	if out.Draft != nil {
		if c.state.Draft == nil {
			d := out.Draft.Clone()
			c.state.Draft = &d
		} else {
			c.state.Draft.Merge(*out.Draft)
		}
	}
	if len(out.Insights) > 0 {
		c.state.Insights = append(c.state.Insights, out.Insights...)
	}

	c.state.Phase = models.PhaseBranchResolved
	c.emitLocked(EventBranchResolved)

	if len(out.Followups) == 0 {
		// Nothing to ask: skip the follow-up segment entirely.
		c.state.Index = len(c.state.Questions)
		c.state.Phase = models.PhaseTerminal
		c.emitLocked(EventCompleted)
		return
	}

	firstAppended := len(c.state.Questions)
	for _, q := range out.Followups {
		q.ID = c.uniqueIDLocked(q.ID)
		c.state.Questions = append(c.state.Questions, q)
	}
	c.state.Index = firstAppended
	c.state.Phase = models.PhaseCollecting
	c.emitLocked(EventAdvanced)
}

// uniqueIDLocked re-keys a generated question id that collides with an
// existing one by appending a numeric suffix.
func (c *Controller) uniqueIDLocked(id string) string {
	taken := make(map[string]bool, len(c.state.Questions))
	for _, q := range c.state.Questions {
		taken[q.ID] = true
	}
	if !taken[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func (c *Controller) emitLocked(event Event) {
	metrics.FlowTransitions.WithLabelValues(string(event), string(c.state.Phase)).Inc()
	c.logger.Debug("flow transition", map[string]interface{}{
		"event": string(event),
		"phase": string(c.state.Phase),
		"index": c.state.Index,
	})
	if c.onChange != nil {
		c.onChange(c.state.Clone(), event)
	}
}

// flattenAnswers reduces keyed answers to plain values for the analysis
// payload.
func flattenAnswers(answers map[string]models.AnswerValue) map[string]interface{} {
	out := make(map[string]interface{}, len(answers))
	for key, v := range answers {
		switch {
		case v.Location != nil:
			out[key] = v.Location.Label
		case v.Option != "":
			out[key] = v.Option
		default:
			out[key] = v.Text
		}
	}
	return out
}
