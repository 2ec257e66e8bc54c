package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
)

// tokenBucket refills KEYS[1] by ARGV[3] tokens every ARGV[4] ms up to
// ARGV[2], then takes one token if it can.  It replies
// {allowed, tokens left, ms until the next refill}.
var tokenBucket = redis.NewScript(`
local now, cap, step, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local tokens = tonumber(redis.call('HGET', KEYS[1], 't'))
local last = tonumber(redis.call('HGET', KEYS[1], 'r'))
if tokens == nil or last == nil then
	tokens, last = cap, now
end
local n = math.floor(math.max(0, now - last) / every)
if n > 0 then
	tokens = math.min(cap, tokens + n * step)
	last = last + n * every
end
local ok, wait = 0, 0
if tokens > 0 then
	ok, tokens = 1, tokens - 1
else
	wait = math.max(0, every - (now - last))
end
redis.call('HSET', KEYS[1], 't', tokens, 'r', last)
redis.call('PEXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// bucketReply is the decoded result of one tokenBucket call.
type bucketReply struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

// parseBucketReply decodes the script's three integers.  go-redis returns
// Lua numbers as int64.
func parseBucketReply(v any) (bucketReply, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		return bucketReply{}, false
	}
	var n [3]int64
	for i, x := range arr {
		if n[i], ok = x.(int64); !ok {
			return bucketReply{}, false
		}
	}
	return bucketReply{allowed: n[0] == 1, remaining: n[1], retry: time.Duration(n[2]) * time.Millisecond}, true
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewTokenBucket limits requests per key with a bucket shared by every
// instance through Redis.  A nil client or a Redis error lets the request
// through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			raw, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				cfg.TTL.Milliseconds(),
			).Result()
			if err != nil {
				log.Warn("rate limit: redis unavailable, allowing request", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			r, ok := parseBucketReply(raw)
			if !ok {
				log.Warn("rate limit: malformed script reply", zap.String("key", key), zap.Any("reply", raw))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(r.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if r.allowed {
				return next(c)
			}

			secs := int(math.Ceil(r.retry.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Info("rate limit: blocked", zap.String("key", key), zap.Duration("retry", r.retry))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// buildRateKey joins the prefix with the parts named by the key strategy,
// e.g. "user" or "ip_route".  Unknown strategies key on ip, user and route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := strings.Split(strings.ToLower(cfg.KeyStrategy), "_")
	out := []string{cfg.Prefix}
	for _, p := range parts {
		switch p {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			out = append(out, "ip", ip)
		case "user":
			out = append(out, "user", userKey(c))
		case "route":
			out = append(out, "route", c.Request().Method+" "+c.Path())
		default:
			return buildRateKey(config.RateLimitConfig{Prefix: cfg.Prefix, KeyStrategy: "ip_user_route"}, c)
		}
	}
	return strings.Join(out, ":")
}
