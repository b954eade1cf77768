// internal/prefs/store_test.go
package prefs

import (
	"context"
	"testing"
	"time"

	"cohort-intake/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(&Config{Namespace: "intake:prefs", TTL: time.Hour}, client, logger.NewTestLogger(t)), mr
}

func TestStore_RoundTrip(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	prefs := Preferences{PreferredRegion: "Berlin, Germany", SkipIntro: true, LastSessionID: "session-1"}
	require.NoError(t, s.Save(ctx, "user-1", prefs))

	loaded := s.Load(ctx, "user-1")
	assert.Equal(t, prefs, loaded)
	assert.True(t, mr.Exists("intake:prefs:user-1"))
}

func TestStore_MissingUserYieldsZeroPrefs(t *testing.T) {
	s, _ := testStore(t)
	assert.Equal(t, Preferences{}, s.Load(context.Background(), "unknown"))
}

func TestStore_CacheOutageFallsBackToMemory(t *testing.T) {
	s, mr := testStore(t)
	ctx := context.Background()

	prefs := Preferences{PreferredRegion: "Toronto, ON, Canada"}
	require.NoError(t, s.Save(ctx, "user-1", prefs))

	mr.SetError("cache down")

	// Writes report the outage but keep the in-memory copy.
	err := s.Save(ctx, "user-1", Preferences{PreferredRegion: "Sydney, NSW, Australia"})
	assert.ErrorIs(t, err, ErrCacheUnavailable)

	loaded := s.Load(ctx, "user-1")
	assert.Equal(t, "Sydney, NSW, Australia", loaded.PreferredRegion)
}

func TestStore_CorruptPayloadStartsFresh(t *testing.T) {
	s, mr := testStore(t)
	mr.Set("intake:prefs:user-1", "{not json")

	assert.Equal(t, Preferences{}, s.Load(context.Background(), "user-1"))
}

func TestStore_NilClientIsMemoryOnly(t *testing.T) {
	s := NewStore(&Config{Namespace: "intake:prefs"}, nil, logger.NewTestLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "user-1", Preferences{SkipIntro: true}))
	assert.True(t, s.Load(ctx, "user-1").SkipIntro)
}
