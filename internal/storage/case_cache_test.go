package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peer-digital/medla-projects/internal/models"
)

func newTestCaseCache(t *testing.T) (*CaseCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close() // nolint:errcheck
	})
	return NewCaseCache(NewRedisCacheFromClient(client), time.Minute), mr
}

func TestCaseCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCaseCache(t)
	ctx := context.Background()

	filed := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	stored := &models.Case{
		CaseNumber:      "13649-2014",
		SourcePartition: "Västerbotten",
		Title:           "Vindkraftpark Norrberget",
		FiledAt:         &filed,
	}

	_, hit := cache.Get(ctx, stored.CaseNumber)
	assert.False(t, hit)

	cache.Set(ctx, stored)

	cached, hit := cache.Get(ctx, stored.CaseNumber)
	require.True(t, hit)
	assert.Equal(t, stored.CaseNumber, cached.CaseNumber)
	assert.Equal(t, stored.Title, cached.Title)
	require.NotNil(t, cached.FiledAt)
	assert.True(t, filed.Equal(*cached.FiledAt))
}

func TestCaseCacheInvalidate(t *testing.T) {
	cache, _ := newTestCaseCache(t)
	ctx := context.Background()

	cache.Set(ctx, &models.Case{CaseNumber: "13649-2014", Title: "Titel"})
	cache.Invalidate(ctx, "13649-2014")

	_, hit := cache.Get(ctx, "13649-2014")
	assert.False(t, hit)
}

func TestCaseCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCaseCache(t)
	ctx := context.Background()

	cache.Set(ctx, &models.Case{CaseNumber: "13649-2014", Title: "Titel"})

	mr.FastForward(2 * time.Minute)

	_, hit := cache.Get(ctx, "13649-2014")
	assert.False(t, hit)
}

func TestCaseCacheEvictsCorruptEntry(t *testing.T) {
	cache, mr := newTestCaseCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("case:13649-2014", "not json"))

	_, hit := cache.Get(ctx, "13649-2014")
	assert.False(t, hit)
	// The corrupt entry is dropped rather than failing every future read
	assert.False(t, mr.Exists("case:13649-2014"))
}

func TestCaseCacheSurvivesCacheOutage(t *testing.T) {
	cache, mr := newTestCaseCache(t)
	ctx := context.Background()

	mr.Close()

	// All operations degrade to misses instead of propagating errors
	cache.Set(ctx, &models.Case{CaseNumber: "13649-2014"})
	_, hit := cache.Get(ctx, "13649-2014")
	assert.False(t, hit)
	cache.Invalidate(ctx, "13649-2014")
}
