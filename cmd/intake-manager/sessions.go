// cmd/intake-manager/sessions.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"cohort-intake/internal/analysis"
	stderrors "cohort-intake/internal/common/errors"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/common/observability"
	"cohort-intake/internal/flow"
	"cohort-intake/internal/geocode"
	"cohort-intake/internal/models"
	"cohort-intake/internal/notify"
	"cohort-intake/internal/prefs"
	"cohort-intake/internal/registry"
	"cohort-intake/internal/store"
	"cohort-intake/internal/suggest"

	"github.com/google/uuid"
)

// session bundles the per-session engine pieces with the latest pushed
// results so a polling client can read them back.
type session struct {
	userID     string
	startedAt  time.Time
	controller *flow.Controller
	resolver   *geocode.Resolver
	debouncer  *suggest.Debouncer

	mu             sync.Mutex
	state          *models.WizardState
	lastEvent      flow.Event
	suggestions    []string
	geocodeResults []models.GeocodeResult
	geocodeTier    models.ProviderTier
}

// terminalLinger is how long a finished session stays readable for final
// polls before its entry is dropped.
const terminalLinger = 30 * time.Second

// SessionManager owns all live sessions and the shared backends behind them.
type SessionManager struct {
	registry    *registry.QuestionRegistry
	flowConfig  *flow.Config
	suggestCfg  *suggest.Config
	geocodeCfg  *geocode.Config
	suggestions suggest.Fetcher
	secondary   geocode.SecondaryProvider
	analyzer    flow.Analyzer
	gateway     *store.Gateway
	prefs       *prefs.Store
	notifier    *notify.Notifier
	obs         *observability.Observability
	logger      logger.Logger
	errs        *stderrors.Handler
	linger      time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionManager(
	reg *registry.QuestionRegistry,
	flowConfig *flow.Config,
	suggestCfg *suggest.Config,
	geocodeCfg *geocode.Config,
	suggestions suggest.Fetcher,
	secondary geocode.SecondaryProvider,
	analyzer flow.Analyzer,
	gateway *store.Gateway,
	prefsStore *prefs.Store,
	notifier *notify.Notifier,
	obs *observability.Observability,
	log logger.Logger,
) *SessionManager {
	return &SessionManager{
		registry:    reg,
		flowConfig:  flowConfig,
		suggestCfg:  suggestCfg,
		geocodeCfg:  geocodeCfg,
		suggestions: suggestions,
		secondary:   secondary,
		analyzer:    analyzer,
		gateway:     gateway,
		prefs:       prefsStore,
		notifier:    notifier,
		obs:         obs,
		logger:      log.With(map[string]interface{}{"component": "session-manager"}),
		errs:        stderrors.NewHandler(log),
		linger:      terminalLinger,
		sessions:    make(map[string]*session),
	}
}

// Create starts a new session for a user and returns its id.
func (m *SessionManager) Create(userID string) (string, *models.WizardState) {
	s := &session{userID: userID, startedAt: time.Now()}

	s.controller = flow.NewController(m.flowConfig, m.registry.Questions, m.analyzer, func(state *models.WizardState, event flow.Event) {
		s.mu.Lock()
		s.state = state
		s.lastEvent = event
		s.mu.Unlock()

		if event == flow.EventCompleted && !state.Cancelled {
			// Off the controller's goroutine: persistence and
			// notification must not block a transition.
			go m.finalize(s, state)
		}
		if event == flow.EventCancelled && m.obs != nil {
			m.obs.RecordSessionCompleted(context.Background(), "cancelled")
			m.obs.RecordSessionDuration(context.Background(), time.Since(s.startedAt), "cancelled")
		}
	}, m.logger)

	// The primary map SDK lives in the presentation layer; the service side
	// starts on the secondary tier.
	s.resolver = geocode.NewResolver(m.geocodeCfg, nil, m.secondary, func(results []models.GeocodeResult, tier models.ProviderTier) {
		s.mu.Lock()
		s.geocodeResults = results
		s.geocodeTier = tier
		s.mu.Unlock()
	}, m.logger)

	s.debouncer = suggest.NewDebouncer(m.suggestCfg, m.suggestions, func() map[string]models.AnswerValue {
		return s.controller.Snapshot().Answers
	}, func(questionID string, suggestions []string) {
		s.mu.Lock()
		s.suggestions = suggestions
		s.mu.Unlock()
	}, m.logger)

	snap := s.controller.Snapshot()
	s.mu.Lock()
	s.state = snap
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[snap.SessionID] = s
	m.mu.Unlock()

	m.logger.Info("session created", map[string]interface{}{
		"sessionId": snap.SessionID,
		"userId":    userID,
	})
	return snap.SessionID, snap
}

func (m *SessionManager) get(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// evictAfter drops a terminal session's entry once clients have had a chance
// to read its final state.
func (m *SessionManager) evictAfter(id string) {
	time.AfterFunc(m.linger, func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	})
}

// finalize persists the completed session and fans out the completion
// notice. Failures are logged; the session itself has already completed.
func (m *SessionManager) finalize(s *session, state *models.WizardState) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var location *models.GeocodeResult
	geoSnap := s.resolver.Snapshot()
	if geoSnap.Authoritative != nil {
		loc := *geoSnap.Authoritative
		location = &loc
	}

	record := &models.CohortRecord{
		ID:        uuid.New().String(),
		SessionID: state.SessionID,
		Draft:     draftOrEmpty(state.Draft),
		Answers:   state.Answers,
		Location:  location,
		Insights:  state.Insights,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.gateway.SaveCohort(ctx, record); err != nil {
		m.errs.Record("save-cohort", err)
	}

	if m.prefs != nil && s.userID != "" {
		userPrefs := m.prefs.Load(ctx, s.userID)
		userPrefs.LastSessionID = state.SessionID
		if location != nil {
			userPrefs.PreferredRegion = location.Label
		}
		if err := m.prefs.Save(ctx, s.userID, userPrefs); err != nil {
			m.logger.Warn("failed to save preferences", map[string]interface{}{
				"userId": s.userID,
				"error":  err.Error(),
			})
		}
	}

	if m.notifier != nil {
		recipient := notify.Recipient{
			Email: state.Answers["contact.email"].Text,
			Phone: state.Answers["contact.phone"].Text,
		}
		if err := m.notifier.NotifyCompletion(ctx, recipient, record); err != nil {
			m.errs.Record("notify-completion", err)
		}
	}

	if m.obs != nil {
		m.obs.RecordSessionCompleted(ctx, "completed")
		m.obs.RecordSessionDuration(ctx, time.Since(s.startedAt), "completed")
	}

	s.debouncer.Close()
	s.resolver.Close()
	m.evictAfter(state.SessionID)
}

func draftOrEmpty(d *models.CohortDraft) models.CohortDraft {
	if d == nil {
		return models.CohortDraft{}
	}
	return *d
}

// Routes registers the session API on a mux.
func (m *SessionManager) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", m.handleCreate)
	mux.HandleFunc("GET /sessions/{id}", m.withSession(m.handleGet))
	mux.HandleFunc("POST /sessions/{id}/answer", m.withSession(m.handleAnswer))
	mux.HandleFunc("POST /sessions/{id}/next", m.withSession(m.handleNext))
	mux.HandleFunc("POST /sessions/{id}/back", m.withSession(m.handleBack))
	mux.HandleFunc("POST /sessions/{id}/cancel", m.withSession(m.handleCancel))
	mux.HandleFunc("POST /sessions/{id}/input", m.withSession(m.handleInput))
	mux.HandleFunc("GET /sessions/{id}/suggestions", m.withSession(m.handleSuggestions))
	mux.HandleFunc("POST /sessions/{id}/geocode/query", m.withSession(m.handleGeocodeQuery))
	mux.HandleFunc("GET /sessions/{id}/geocode/results", m.withSession(m.handleGeocodeResults))
	mux.HandleFunc("POST /sessions/{id}/geocode/select", m.withSession(m.handleGeocodeSelect))
	mux.HandleFunc("POST /sessions/{id}/geocode/map-click", m.withSession(m.handleGeocodeMapClick))
	mux.HandleFunc("POST /sessions/{id}/geocode/manual", m.withSession(m.handleGeocodeManual))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session)

func (m *SessionManager) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := m.get(r.PathValue("id"))
		if s == nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h(w, r, s)
	}
}

func (m *SessionManager) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	id, state := m.Create(body.UserID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": id,
		"state":      state,
	})
}

func (m *SessionManager) handleGet(w http.ResponseWriter, r *http.Request, s *session) {
	s.mu.Lock()
	state := s.state
	event := s.lastEvent
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":      state,
		"last_event": event,
	})
}

func (m *SessionManager) handleAnswer(w http.ResponseWriter, r *http.Request, s *session) {
	var body struct {
		FieldID string `json:"field_id"`
		Text    string `json:"text"`
		Option  string `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	value := models.AnswerValue{Text: body.Text, Option: body.Option}
	if current := s.controller.Snapshot().Current(); current != nil && current.Kind == models.InputGeolocation {
		if auth := s.resolver.Snapshot().Authoritative; auth != nil {
			loc := *auth
			value = models.AnswerValue{Location: &loc}
		}
	}

	if err := s.controller.SetAnswer(body.FieldID, value); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.controller.Snapshot()})
}

func (m *SessionManager) handleNext(w http.ResponseWriter, r *http.Request, s *session) {
	if err := s.controller.Next(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.controller.Snapshot()})
}

func (m *SessionManager) handleBack(w http.ResponseWriter, r *http.Request, s *session) {
	s.controller.Back()
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.controller.Snapshot()})
}

func (m *SessionManager) handleCancel(w http.ResponseWriter, r *http.Request, s *session) {
	s.controller.Cancel()
	s.debouncer.Close()
	s.resolver.Close()
	m.evictAfter(s.controller.Snapshot().SessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": s.controller.Snapshot()})
}

func (m *SessionManager) handleInput(w http.ResponseWriter, r *http.Request, s *session) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	current := s.controller.Snapshot().Current()
	if current == nil {
		writeError(w, http.StatusConflict, "no current question")
		return
	}
	s.debouncer.OnInputChanged(current.ID, body.Text)
	w.WriteHeader(http.StatusAccepted)
}

func (m *SessionManager) handleSuggestions(w http.ResponseWriter, r *http.Request, s *session) {
	s.mu.Lock()
	suggestions := s.suggestions
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

func (m *SessionManager) handleGeocodeQuery(w http.ResponseWriter, r *http.Request, s *session) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.resolver.OnQueryChanged(body.Text)
	w.WriteHeader(http.StatusAccepted)
}

func (m *SessionManager) handleGeocodeResults(w http.ResponseWriter, r *http.Request, s *session) {
	s.mu.Lock()
	results := s.geocodeResults
	tier := s.geocodeTier
	s.mu.Unlock()
	snap := s.resolver.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":                 results,
		"provider":                tier,
		"using_fallback_provider": snap.UsingFallbackProvider,
		"authoritative":           snap.Authoritative,
	})
}

func (m *SessionManager) handleGeocodeSelect(w http.ResponseWriter, r *http.Request, s *session) {
	var result models.GeocodeResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.resolver.SelectSuggestion(result)
	writeJSON(w, http.StatusOK, map[string]interface{}{"authoritative": result})
}

func (m *SessionManager) handleGeocodeMapClick(w http.ResponseWriter, r *http.Request, s *session) {
	var body struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	result := s.resolver.MapClick(body.Latitude, body.Longitude)
	writeJSON(w, http.StatusOK, map[string]interface{}{"authoritative": result})
}

func (m *SessionManager) handleGeocodeManual(w http.ResponseWriter, r *http.Request, s *session) {
	var body struct {
		Address   string   `json:"address"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	result, err := s.resolver.SubmitManual(body.Address, body.Latitude, body.Longitude)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"authoritative": result})
}

var _ flow.Analyzer = (*analysis.Service)(nil)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
