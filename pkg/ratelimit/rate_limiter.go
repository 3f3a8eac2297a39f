package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimitType string

const (
	RateLimitTypeDefault         RateLimitType = "default"
	RateLimitTypePublic          RateLimitType = "public"
	RateLimitTypeBooking         RateLimitType = "booking"
	RateLimitTypeBookingCritical RateLimitType = "booking_critical"
	RateLimitTypeAdmin           RateLimitType = "admin"
	RateLimitTypeHealth          RateLimitType = "health"
)

const keyPrefix = "cinereserve:ratelimit"

type Config struct {
	Enabled                 bool          `json:"enabled"`
	WindowDuration          time.Duration `json:"window_duration"`
	DefaultRequests         int           `json:"default_requests"`
	PublicRequests          int           `json:"public_requests"`
	BookingRequests         int           `json:"booking_requests"`
	BookingCriticalRequests int           `json:"booking_critical_requests"`
	AdminRequests           int           `json:"admin_requests"`
	HealthRequests          int           `json:"health_requests"`
	WhitelistedIPs          []string      `json:"whitelisted_ips"`
}

// Result represents rate limit check result
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}

// RateLimiter applies a sliding window per client and route class. With a
// nil Redis client the window is kept in process memory, which only holds
// for a single API instance.
type RateLimiter struct {
	client    *redis.Client
	config    *Config
	whitelist map[string]struct{}
	now       func() time.Time

	mu     sync.Mutex
	memory map[string][]time.Time
}

func NewRateLimiter(client *redis.Client, config *Config) *RateLimiter {
	whitelist := make(map[string]struct{}, len(config.WhitelistedIPs))
	for _, ip := range config.WhitelistedIPs {
		whitelist[ip] = struct{}{}
	}
	return &RateLimiter{
		client:    client,
		config:    config,
		whitelist: whitelist,
		now:       time.Now,
		memory:    make(map[string][]time.Time),
	}
}

// IsAllowed checks if the request is allowed
func (r *RateLimiter) IsAllowed(ctx context.Context, clientIP string, limitType RateLimitType) (*Result, error) {
	limit := r.getLimit(limitType)
	if !r.config.Enabled || r.isWhitelisted(clientIP) || limit <= 0 {
		return &Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetTime: r.now().Add(r.config.WindowDuration).Unix(),
		}, nil
	}

	key := fmt.Sprintf("%s:%s:%s", keyPrefix, clientIP, limitType)
	if r.client == nil {
		return r.checkMemory(key, limit), nil
	}
	return r.checkLimit(ctx, key, limit)
}

// Atomic sliding window: drop expired entries, count, then admit.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current_count = redis.call('ZCARD', key)
	if current_count >= limit then
		redis.call('PEXPIRE', key, window_ms)
		return {current_count + 1, 0}
	end

	redis.call('ZADD', key, now, ARGV[5])
	redis.call('PEXPIRE', key, window_ms)

	return {current_count + 1, limit - current_count - 1}
`)

// checkLimit performs the sliding window check in Redis
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int) (*Result, error) {
	now := r.now()
	windowStart := now.Add(-r.config.WindowDuration)
	member := strconv.FormatInt(now.UnixNano(), 10)

	result, err := slidingWindow.Run(ctx, r.client, []string{key},
		windowStart.UnixMilli(),
		now.UnixMilli(),
		limit,
		r.config.WindowDuration.Milliseconds(),
		member,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("redis eval failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	currentCount, _ := values[0].(int64)
	remaining, _ := values[1].(int64)

	return &Result{
		Allowed:   int(currentCount) <= limit,
		Limit:     limit,
		Remaining: int(remaining),
		ResetTime: now.Add(r.config.WindowDuration).Unix(),
	}, nil
}

func (r *RateLimiter) checkMemory(key string, limit int) *Result {
	now := r.now()
	windowStart := now.Add(-r.config.WindowDuration)

	r.mu.Lock()
	defer r.mu.Unlock()

	hits := r.memory[key]
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			kept = append(kept, hit)
		}
	}

	result := &Result{Limit: limit, ResetTime: now.Add(r.config.WindowDuration).Unix()}
	if len(kept) >= limit {
		r.memory[key] = kept
		return result
	}

	kept = append(kept, now)
	r.memory[key] = kept
	result.Allowed = true
	result.Remaining = limit - len(kept)
	return result
}

func (r *RateLimiter) getLimit(limitType RateLimitType) int {
	switch limitType {
	case RateLimitTypePublic:
		return r.config.PublicRequests
	case RateLimitTypeBooking:
		return r.config.BookingRequests
	case RateLimitTypeBookingCritical:
		return r.config.BookingCriticalRequests
	case RateLimitTypeAdmin:
		return r.config.AdminRequests
	case RateLimitTypeHealth:
		return r.config.HealthRequests
	default:
		return r.config.DefaultRequests
	}
}

func (r *RateLimiter) isWhitelisted(ip string) bool {
	_, ok := r.whitelist[ip]
	return ok
}
