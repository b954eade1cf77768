// internal/flow/controller_test.go
package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cohort-intake/internal/analysis"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalyzer scripts the three analysis calls independently.
type fakeAnalyzer struct {
	followups func(ctx context.Context, req *analysis.Request) ([]models.Question, error)
	draft     func(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error)
	insights  func(ctx context.Context, req *analysis.Request) ([]string, error)
}

func (a *fakeAnalyzer) GenerateFollowups(ctx context.Context, req *analysis.Request) ([]models.Question, error) {
	if a.followups != nil {
		return a.followups(ctx, req)
	}
	return nil, nil
}

func (a *fakeAnalyzer) GenerateDraft(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error) {
	if a.draft != nil {
		return a.draft(ctx, req)
	}
	return nil, nil
}

func (a *fakeAnalyzer) GenerateInsights(ctx context.Context, req *analysis.Request) ([]string, error) {
	if a.insights != nil {
		return a.insights(ctx, req)
	}
	return nil, nil
}

// eventLog records every transition snapshot for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	phases []models.Phase
}

func (l *eventLog) record(state *models.WizardState, event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.phases = append(l.phases, state.Phase)
}

func (l *eventLog) has(event Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func coreQuestions(n int) []models.Question {
	questions := make([]models.Question, 0, n)
	ids := []string{"business-kind", "audience", "budget", "channels", "region", "team-size", "positioning"}
	for i := 0; i < n; i++ {
		questions = append(questions, models.Question{
			ID:     ids[i],
			Kind:   models.InputFreeText,
			Prompt: "core question " + ids[i],
		})
	}
	return questions
}

func testConfig() *Config {
	return &Config{
		BranchQuestionID: "positioning",
		AnalysisTimeout:  time.Second,
	}
}

func waitForPhase(t *testing.T, c *Controller, phase models.Phase) *models.WizardState {
	t.Helper()
	var snap *models.WizardState
	require.Eventually(t, func() bool {
		snap = c.Snapshot()
		return snap.Phase == phase
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestController_LinearAdvance(t *testing.T) {
	log := &eventLog{}
	c := NewController(testConfig(), coreQuestions(3), &fakeAnalyzer{}, log.record, logger.NewTestLogger(t))

	require.NoError(t, c.SetAnswer("", models.AnswerValue{Text: "local bakery"}))
	require.NoError(t, c.Next())

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, models.PhaseCollecting, snap.Phase)
	assert.Equal(t, "local bakery", snap.Answers["business-kind"].Text)
	assert.True(t, log.has(EventAdvanced))
}

func TestController_CompositeAnswerKeys(t *testing.T) {
	questions := []models.Question{{
		ID:   "contact",
		Kind: models.InputComposite,
		Fields: []models.Field{
			{ID: "name", Label: "Name"},
			{ID: "email", Label: "Email"},
		},
	}}
	c := NewController(testConfig(), questions, &fakeAnalyzer{}, nil, logger.NewTestLogger(t))

	require.NoError(t, c.SetAnswer("name", models.AnswerValue{Text: "Ada"}))
	require.NoError(t, c.SetAnswer("email", models.AnswerValue{Text: "ada@example.com"}))

	snap := c.Snapshot()
	assert.Equal(t, "Ada", snap.Answers["contact.name"].Text)
	assert.Equal(t, "ada@example.com", snap.Answers["contact.email"].Text)
}

func TestController_BackIsNoOpAtFirstQuestion(t *testing.T) {
	c := NewController(testConfig(), coreQuestions(3), &fakeAnalyzer{}, nil, logger.NewTestLogger(t))

	c.Back()
	assert.Equal(t, 0, c.Snapshot().Index)

	require.NoError(t, c.Next())
	require.Equal(t, 1, c.Snapshot().Index)
	c.Back()
	assert.Equal(t, 0, c.Snapshot().Index)
	c.Back()
	assert.Equal(t, 0, c.Snapshot().Index)
}

func TestController_CompletesPastLastQuestion(t *testing.T) {
	log := &eventLog{}
	c := NewController(testConfig(), coreQuestions(2), &fakeAnalyzer{}, log.record, logger.NewTestLogger(t))

	require.NoError(t, c.Next())
	require.NoError(t, c.Next())

	snap := c.Snapshot()
	assert.Equal(t, models.PhaseTerminal, snap.Phase)
	assert.False(t, snap.Cancelled)
	assert.True(t, log.has(EventCompleted))

	assert.Error(t, c.Next(), "terminal state accepts no further advance")
}

func TestController_BranchAppendsFollowupsAndAdvancesIntoThem(t *testing.T) {
	analyzer := &fakeAnalyzer{
		followups: func(ctx context.Context, req *analysis.Request) ([]models.Question, error) {
			assert.Equal(t, "corner cafe", req.Answers["business-kind"])
			return []models.Question{
				{ID: "price-range", Kind: models.InputFreeText, Prompt: "Target price range?", Generated: true},
				{ID: "peak-hours", Kind: models.InputFreeText, Prompt: "Peak hours?", Generated: true},
			}, nil
		},
		draft: func(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error) {
			return &models.CohortDraft{Name: "Morning regulars", PainPoints: []string{"queues"}}, nil
		},
		insights: func(ctx context.Context, req *analysis.Request) ([]string, error) {
			return []string{"Sell speed, not coffee."}, nil
		},
	}
	log := &eventLog{}
	c := NewController(testConfig(), coreQuestions(7), analyzer, log.record, logger.NewTestLogger(t))

	require.NoError(t, c.SetAnswer("", models.AnswerValue{Text: "corner cafe"}))
	for i := 0; i < 6; i++ {
		require.NoError(t, c.Next())
	}
	// Advancing past the branch question suspends collection for the fan-out.
	require.Equal(t, "positioning", c.Snapshot().Current().ID)
	require.NoError(t, c.Next())

	snap := waitForPhase(t, c, models.PhaseCollecting)
	assert.Len(t, snap.Questions, 9, "two follow-ups appended to the seven core questions")
	assert.Equal(t, 7, snap.Index, "advanced into the first appended question")
	assert.Equal(t, "price-range", snap.Current().ID)
	assert.Equal(t, "Morning regulars", snap.Draft.Name)
	assert.Equal(t, []string{"Sell speed, not coffee."}, snap.Insights)
	assert.True(t, log.has(EventBranchStarted))
	assert.True(t, log.has(EventBranchResolved))

	// The appended segment plays out like any other questions.
	require.NoError(t, c.SetAnswer("", models.AnswerValue{Text: "under ten dollars"}))
	require.NoError(t, c.Next())
	require.NoError(t, c.Next())
	assert.Equal(t, models.PhaseTerminal, c.Snapshot().Phase)
}

func TestController_BranchSkipsSegmentWhenAllCallsFail(t *testing.T) {
	callErr := errors.New("model overloaded")
	analyzer := &fakeAnalyzer{
		followups: func(ctx context.Context, req *analysis.Request) ([]models.Question, error) {
			return nil, callErr
		},
		draft: func(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error) {
			return nil, callErr
		},
		insights: func(ctx context.Context, req *analysis.Request) ([]string, error) {
			return nil, callErr
		},
	}
	log := &eventLog{}
	c := NewController(testConfig(), coreQuestions(7), analyzer, log.record, logger.NewTestLogger(t))

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Next())
	}

	snap := waitForPhase(t, c, models.PhaseTerminal)
	assert.Len(t, snap.Questions, 7, "no follow-ups appended")
	assert.Nil(t, snap.Draft)
	assert.Empty(t, snap.Insights)
	assert.False(t, snap.Cancelled)
	assert.True(t, log.has(EventBranchResolved))
	assert.True(t, log.has(EventCompleted))
}

func TestController_BranchPartialFailureKeepsWhatArrived(t *testing.T) {
	analyzer := &fakeAnalyzer{
		followups: func(ctx context.Context, req *analysis.Request) ([]models.Question, error) {
			return nil, errors.New("followups unavailable")
		},
		draft: func(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error) {
			return &models.CohortDraft{Name: "Weekend browsers"}, nil
		},
	}
	c := NewController(testConfig(), coreQuestions(7), analyzer, nil, logger.NewTestLogger(t))

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Next())
	}

	// No follow-ups means the segment is skipped, but the draft that did
	// arrive is kept.
	snap := waitForPhase(t, c, models.PhaseTerminal)
	require.NotNil(t, snap.Draft)
	assert.Equal(t, "Weekend browsers", snap.Draft.Name)
	assert.Len(t, snap.Questions, 7)
}

func TestController_BranchTimeoutProceedsAndDropsLateOutcome(t *testing.T) {
	released := make(chan struct{})
	analyzer := &fakeAnalyzer{
		followups: func(ctx context.Context, req *analysis.Request) ([]models.Question, error) {
			select {
			case <-released:
				return []models.Question{{ID: "late-question", Kind: models.InputFreeText}}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	config := &Config{BranchQuestionID: "positioning", AnalysisTimeout: 40 * time.Millisecond}
	c := NewController(config, coreQuestions(7), analyzer, nil, logger.NewTestLogger(t))

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Next())
	}

	snap := waitForPhase(t, c, models.PhaseTerminal)
	assert.Len(t, snap.Questions, 7, "timed-out fan-out contributes nothing")

	// Release the straggler; its settlement must not resurrect the session.
	close(released)
	time.Sleep(50 * time.Millisecond)
	snap = c.Snapshot()
	assert.Equal(t, models.PhaseTerminal, snap.Phase)
	assert.Len(t, snap.Questions, 7)
}

func TestController_CancelDuringFanout(t *testing.T) {
	started := make(chan struct{})
	analyzer := &fakeAnalyzer{
		draft: func(ctx context.Context, req *analysis.Request) (*models.CohortDraft, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	log := &eventLog{}
	config := &Config{BranchQuestionID: "positioning", AnalysisTimeout: 40 * time.Millisecond}
	c := NewController(config, coreQuestions(7), analyzer, log.record, logger.NewTestLogger(t))

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Next())
	}
	<-started
	c.Cancel()

	snap := c.Snapshot()
	assert.Equal(t, models.PhaseTerminal, snap.Phase)
	assert.True(t, snap.Cancelled)
	assert.True(t, log.has(EventCancelled))

	// The abandoned fan-out settles eventually; state must not change.
	time.Sleep(100 * time.Millisecond)
	snap = c.Snapshot()
	assert.Equal(t, models.PhaseTerminal, snap.Phase)
	assert.True(t, snap.Cancelled)
}

func TestController_CancelFromCollecting(t *testing.T) {
	c := NewController(testConfig(), coreQuestions(3), &fakeAnalyzer{}, nil, logger.NewTestLogger(t))

	c.Cancel()
	snap := c.Snapshot()
	assert.Equal(t, models.PhaseTerminal, snap.Phase)
	assert.True(t, snap.Cancelled)

	// Terminal is absorbing.
	c.Cancel()
	assert.Error(t, c.Next())
	assert.Error(t, c.SetAnswer("", models.AnswerValue{Text: "late"}))
}

func TestController_CollidingGeneratedIDsAreReKeyed(t *testing.T) {
	analyzer := &fakeAnalyzer{
		followups: func(ctx context.Context, req *analysis.Request) ([]models.Question, error) {
			return []models.Question{
				{ID: "audience", Kind: models.InputFreeText, Generated: true},
				{ID: "audience", Kind: models.InputFreeText, Generated: true},
			}, nil
		},
	}
	c := NewController(testConfig(), coreQuestions(7), analyzer, nil, logger.NewTestLogger(t))

	for i := 0; i < 7; i++ {
		require.NoError(t, c.Next())
	}

	snap := waitForPhase(t, c, models.PhaseCollecting)
	require.Len(t, snap.Questions, 9)
	assert.Equal(t, "audience-2", snap.Questions[7].ID)
	assert.Equal(t, "audience-3", snap.Questions[8].ID)
}

func TestController_SnapshotDoesNotAliasLiveState(t *testing.T) {
	c := NewController(testConfig(), coreQuestions(3), &fakeAnalyzer{}, nil, logger.NewTestLogger(t))
	require.NoError(t, c.SetAnswer("", models.AnswerValue{Text: "original"}))

	snap := c.Snapshot()
	snap.Answers["business-kind"] = models.AnswerValue{Text: "mutated"}
	snap.Questions[0].Prompt = "mutated"

	fresh := c.Snapshot()
	assert.Equal(t, "original", fresh.Answers["business-kind"].Text)
	assert.NotEqual(t, "mutated", fresh.Questions[0].Prompt)
}
