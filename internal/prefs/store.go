// internal/prefs/store.go
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"cohort-intake/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

var ErrCacheUnavailable = errors.New("CACHE_UNAVAILABLE")

// Preferences are the sticky per-user intake settings that outlive a single
// session.
type Preferences struct {
	PreferredRegion string `json:"preferred_region,omitempty"`
	SkipIntro       bool   `json:"skip_intro,omitempty"`
	LastSessionID   string `json:"last_session_id,omitempty"`
}

// Config holds the preference store settings.
type Config struct {
	Namespace string
	TTL       time.Duration
}

// Store keeps preferences in redis, falling back to process memory when the
// cache is unreachable. The fallback means a flaky cache degrades stickiness
// across restarts, never the intake itself.
type Store struct {
	config *Config
	client *redis.Client
	logger logger.Logger

	mu     sync.RWMutex
	memory map[string]Preferences
}

func NewStore(config *Config, client *redis.Client, log logger.Logger) *Store {
	return &Store{
		config: config,
		client: client,
		logger: log.With(map[string]interface{}{
			"component": "preference-store",
		}),
		memory: make(map[string]Preferences),
	}
}

func (s *Store) key(userID string) string {
	return s.config.Namespace + ":" + userID
}

// Load returns the stored preferences for a user, or zero preferences when
// none exist.
func (s *Store) Load(ctx context.Context, userID string) Preferences {
	if s.client != nil {
		raw, err := s.client.Get(ctx, s.key(userID)).Result()
		switch {
		case err == nil:
			var prefs Preferences
			if jsonErr := json.Unmarshal([]byte(raw), &prefs); jsonErr == nil {
				return prefs
			}
			s.logger.Warn("corrupt preference payload, starting fresh", map[string]interface{}{
				"userId": userID,
			})
			return Preferences{}
		case errors.Is(err, redis.Nil):
			return Preferences{}
		default:
			s.logger.Warn("preference cache unreachable, using in-memory copy", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory[userID]
}

// Save persists preferences for a user. The in-memory copy is always
// updated; the redis write is best effort and its failure is reported but
// not fatal.
func (s *Store) Save(ctx context.Context, userID string, prefs Preferences) error {
	s.mu.Lock()
	s.memory[userID] = prefs
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	payload, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(userID), payload, s.config.TTL).Err(); err != nil {
		s.logger.Warn("preference write failed, in-memory copy retained", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return ErrCacheUnavailable
	}
	return nil
}
