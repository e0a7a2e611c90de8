package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"iot-measurement-backend/internal/config"
	"iot-measurement-backend/internal/metrics"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills a per-key bucket and takes one token.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local interval_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + intervals)
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = interval_ms - (now_ms - last_refill)
		if retry_after_ms < 0 then retry_after_ms = 0 end
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RateLimiter gates sensitive endpoints with a Redis token bucket per client IP and policy.
// Without a Redis client, or when disabled, every policy passes requests through.
type RateLimiter struct {
	rdb     redis.Scripter
	cfg     config.RateLimitConfig
	metrics *metrics.Metrics
	logger  pkglog.Logger
	now     func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig, rdb redis.Scripter, m *metrics.Metrics, logger pkglog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Policy allows max requests per window for each client IP, refilling evenly across the window.
func (l *RateLimiter) Policy(name string, max int) gin.HandlerFunc {
	if l == nil || !l.cfg.Enabled || l.rdb == nil || max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	window := l.cfg.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	interval := window / time.Duration(max)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ttl := int64(math.Ceil(window.Seconds()))

	return func(c *gin.Context) {
		key := l.key(name, c.ClientIP())

		vals, err := tokenBucketScript.Run(c.Request.Context(), l.rdb, []string{key},
			l.now().UnixMilli(), max, interval.Milliseconds(), ttl).Result()
		if err != nil {
			l.logger.Warn().Err(err).Str("policy", name).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		arr, ok := vals.([]interface{})
		if !ok || len(arr) != 3 {
			l.logger.Warn().Str("policy", name).Str("result", fmt.Sprintf("%#v", vals)).Msg("unexpected rate limiter result")
			c.Next()
			return
		}
		allowed := asInt64(arr[0]) == 1
		remaining := asInt64(arr[1])
		retryMs := asInt64(arr[2])

		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := int64(math.Ceil(float64(retryMs) / 1000.0))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
			if l.metrics != nil {
				l.metrics.RateLimited.WithLabelValues(name).Inc()
			}
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Too many requests, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}

func (l *RateLimiter) key(policy, ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{l.cfg.Prefix, policy, "ip", ip}, ":")
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
