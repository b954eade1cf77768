// internal/store/gateway.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/common/metrics"
	"cohort-intake/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrRecordInvalid = errors.New("DRAFT_VALIDATION_FAILED")
	ErrSaveFailed    = errors.New("SAVE_FAILED")
)

const pendingKeyPrefix = "cohort:pending:"

// Cache retains records that could not be persisted so a later sweep can
// replay them.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// Indexer feeds the search read model. Indexing is best effort: the primary
// store is the source of truth.
type Indexer interface {
	Index(ctx context.Context, id string, body []byte) error
}

// recordSchema is the structural gate a record must pass before it is
// persisted.
const recordSchema = `{
	"type": "object",
	"required": ["id", "session_id", "draft", "created_at"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"session_id": {"type": "string", "minLength": 1},
		"draft": {"type": "object"},
		"answers": {"type": "object"},
		"insights": {"type": "array", "items": {"type": "string"}},
		"created_at": {"type": "string"}
	}
}`

// Gateway persists finalized cohort records: postgres is the system of
// record, elasticsearch the search read model, and redis the holding pen
// for records a failed insert would otherwise lose.
type Gateway struct {
	config  *Config
	db      *sql.DB
	cache   Cache
	indexer Indexer
	logger  logger.Logger
}

func NewGateway(config *Config, db *sql.DB, cache Cache, indexer Indexer, log logger.Logger) *Gateway {
	return &Gateway{
		config:  config,
		db:      db,
		cache:   cache,
		indexer: indexer,
		logger: log.With(map[string]interface{}{
			"component": "cohort-store",
		}),
	}
}

// SaveCohort validates and persists one record. On insert failure the
// record is retained in the cache under its pending key and the error is
// returned; the caller decides whether that is fatal for the session.
func (g *Gateway) SaveCohort(ctx context.Context, record *models.CohortRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordInvalid, err)
	}
	if err := validateRecord(payload); err != nil {
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, session_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		g.config.table(),
	)
	if _, err := g.db.ExecContext(ctx, query, record.ID, record.SessionID, payload, record.CreatedAt); err != nil {
		metrics.CohortSaves.WithLabelValues("failed").Inc()
		g.retain(ctx, record.ID, payload)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	metrics.CohortSaves.WithLabelValues("saved").Inc()

	g.index(ctx, record.ID, payload)

	g.logger.Info("cohort record saved", map[string]interface{}{
		"recordId":  record.ID,
		"sessionId": record.SessionID,
	})
	return nil
}

// PendingRecord returns a retained record's payload by id.
func (g *Gateway) PendingRecord(ctx context.Context, recordID string) (string, error) {
	if g.cache == nil {
		return "", nil
	}
	return g.cache.Get(ctx, pendingKeyPrefix+recordID)
}

func (g *Gateway) retain(ctx context.Context, recordID string, payload []byte) {
	if g.cache == nil {
		return
	}
	key := pendingKeyPrefix + recordID
	if err := g.cache.Set(ctx, key, string(payload), g.config.RetentionTTL); err != nil {
		g.logger.Error("failed to retain unsaved record", map[string]interface{}{
			"recordId": recordID,
			"error":    err.Error(),
		})
		return
	}
	metrics.CohortSaves.WithLabelValues("retained").Inc()
	g.logger.Warn("record retained for replay after failed save", map[string]interface{}{
		"recordId": recordID,
		"key":      key,
	})
}

func (g *Gateway) index(ctx context.Context, recordID string, payload []byte) {
	if g.indexer == nil {
		return
	}
	if err := g.indexer.Index(ctx, recordID, payload); err != nil {
		g.logger.Warn("search indexing failed, record remains queryable from postgres", map[string]interface{}{
			"recordId": recordID,
			"error":    err.Error(),
		})
	}
}

func validateRecord(payload []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(recordSchema),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordInvalid, err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrRecordInvalid, strings.Join(issues, "; "))
	}
	return nil
}
