package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/config"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/redis/go-redis/v9"
)

// CacheService provides short-lived caching for test run lookups and API key
// validation. A cache miss or any Redis failure falls through to the store;
// the cache is never authoritative.
type CacheService struct {
	cache     *RedisCache
	resultTTL time.Duration
	apiKeyTTL time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(cache *RedisCache, cfg *config.CacheConfig) *CacheService {
	return &CacheService{
		cache:     cache,
		resultTTL: cfg.ResultTTL,
		apiKeyTTL: cfg.APIKeyTTL,
	}
}

// testRunKey generates the cache key for a test run
func testRunKey(testID string) string {
	return fmt.Sprintf("test_run:%s", testID)
}

// apiKeyKey generates the cache key for a validated API key hash
func apiKeyKey(keyHash string) string {
	return fmt.Sprintf("api_key:%s", keyHash)
}

// GetTestRun retrieves a cached test run. Returns (nil, nil) on a miss.
func (s *CacheService) GetTestRun(ctx context.Context, testID string) (*models.TestRun, error) {
	data, err := s.cache.Get(ctx, testRunKey(testID))
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached test run: %w", err)
	}

	var run models.TestRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached test run: %w", err)
	}

	return &run, nil
}

// SetTestRun caches a test run. Only terminal runs are worth caching; the
// caller decides.
func (s *CacheService) SetTestRun(ctx context.Context, run *models.TestRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal test run: %w", err)
	}

	return s.cache.Set(ctx, testRunKey(run.ID), data, s.resultTTL)
}

// InvalidateTestRun removes a test run from the cache
func (s *CacheService) InvalidateTestRun(ctx context.Context, testID string) error {
	return s.cache.Del(ctx, testRunKey(testID))
}

// GetAPIKeyUser returns the cached user ID for a validated key hash.
// Returns ("", nil) on a miss.
func (s *CacheService) GetAPIKeyUser(ctx context.Context, keyHash string) (string, error) {
	userID, err := s.cache.Get(ctx, apiKeyKey(keyHash))
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get cached api key: %w", err)
	}

	return userID, nil
}

// SetAPIKeyUser caches a validated key hash to user ID mapping. The TTL is
// deliberately short so revocation takes effect promptly.
func (s *CacheService) SetAPIKeyUser(ctx context.Context, keyHash, userID string) error {
	return s.cache.Set(ctx, apiKeyKey(keyHash), userID, s.apiKeyTTL)
}

// InvalidateAPIKey removes a key hash from the validation cache
func (s *CacheService) InvalidateAPIKey(ctx context.Context, keyHash string) error {
	return s.cache.Del(ctx, apiKeyKey(keyHash))
}
