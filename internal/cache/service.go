// Package cache provides Redis-backed caching for market data with
// graceful degradation. When Redis is unavailable callers fall through to
// the upstream source; a failure counter trips the cache into a degraded
// state and background pings recover it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/logging"
)

// Cache TTLs per keyspace.
const (
	CandleTTL    = 30 * time.Second
	SentimentTTL = 5 * time.Minute
	AdvisorTTL   = 60 * time.Second
)

// Config holds Redis connection settings.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Service wraps the Redis client with health tracking.
type Service struct {
	client *redis.Client
	logger *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService connects to Redis. A failed initial connection returns the
// service in degraded mode rather than an error.
func NewService(cfg Config) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		logger:        logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Initial Redis connection failed, running degraded", "error", err)
		return s, nil
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.logger.Info("Redis connected", "address", cfg.Address)
	return s, nil
}

// IsHealthy reports whether Redis is currently usable.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures {
		if s.healthy {
			s.logger.Warn("Redis marked unhealthy", "failures", s.failureCount)
		}
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.logger.Info("Redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

// checkHealth pings Redis in the background when the cache is degraded.
func (s *Service) checkHealth() {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.recordSuccess()
		} else {
			s.mu.Lock()
			s.lastCheck = time.Now()
			s.mu.Unlock()
		}
	}()
}

// get reads and unmarshals one key into dst. Returns false on miss or
// degraded cache.
func (s *Service) get(ctx context.Context, key string, dst interface{}) bool {
	s.checkHealth()
	if !s.IsHealthy() {
		return false
	}

	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		s.recordSuccess()
		return false
	}
	if err != nil {
		s.recordFailure()
		return false
	}
	s.recordSuccess()

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("Corrupt cache entry dropped", "key", key, "error", err)
		s.client.Del(ctx, key)
		return false
	}
	return true
}

// set marshals and stores one key. Failures are recorded, not returned;
// the cache is best effort.
func (s *Service) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	s.checkHealth()
	if !s.IsHealthy() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("Cache marshal failed", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.recordFailure()
		return
	}
	s.recordSuccess()
}

// GetCandles implements exchange.CandleCache.
func (s *Service) GetCandles(ctx context.Context, key string) ([]exchange.Candle, bool) {
	var candles []exchange.Candle
	if !s.get(ctx, key, &candles) {
		return nil, false
	}
	return candles, true
}

// SetCandles implements exchange.CandleCache.
func (s *Service) SetCandles(ctx context.Context, key string, candles []exchange.Candle) {
	s.set(ctx, key, candles, CandleTTL)
}

// GetSentiment reads a cached sentiment payload for a symbol.
func (s *Service) GetSentiment(ctx context.Context, symbol string, dst interface{}) bool {
	return s.get(ctx, "sentiment:"+symbol, dst)
}

// SetSentiment caches a sentiment payload for a symbol.
func (s *Service) SetSentiment(ctx context.Context, symbol string, value interface{}) {
	s.set(ctx, "sentiment:"+symbol, value, SentimentTTL)
}

// GetAdvisor reads a cached advisor verdict for a symbol.
func (s *Service) GetAdvisor(ctx context.Context, symbol string, dst interface{}) bool {
	return s.get(ctx, "advisor:"+symbol, dst)
}

// SetAdvisor caches an advisor verdict for a symbol.
func (s *Service) SetAdvisor(ctx context.Context, symbol string, value interface{}) {
	s.set(ctx, "advisor:"+symbol, value, AdvisorTTL)
}

// Close shuts down the Redis client.
func (s *Service) Close() error {
	return s.client.Close()
}
