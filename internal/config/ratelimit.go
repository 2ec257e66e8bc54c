package config

import (
	"time"
)

// RateLimitConfig configures one Redis token bucket limiter.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// APIRateLimitDefaults allows 100 requests per client per 15 minutes.
var APIRateLimitDefaults = RateLimitConfig{
	Enabled:        true,
	Capacity:       100,
	RefillTokens:   1,
	RefillInterval: 9 * time.Second,
	TTL:            30 * time.Minute,
	KeyStrategy:    "ip",
	Prefix:         "rl:api",
}

// BookingRateLimitDefaults allows 10 booking or cancellation requests per
// client per minute.
var BookingRateLimitDefaults = RateLimitConfig{
	Enabled:        true,
	Capacity:       10,
	RefillTokens:   1,
	RefillInterval: 6 * time.Second,
	TTL:            10 * time.Minute,
	KeyStrategy:    "user",
	Prefix:         "rl:booking",
}

// LoadRateLimitConfig reads <envPrefix>_ENABLED, _CAPACITY, _REFILL_TOKENS,
// _REFILL_INTERVAL, _TTL, _KEY_STRATEGY, _PREFIX and _DEBUG on top of def.
// <envPrefix>_BURST overrides the capacity and <envPrefix>_REFILL_EVERY
// sets a one-token-per-interval refill.
func LoadRateLimitConfig(envPrefix string, def RateLimitConfig) RateLimitConfig {
	v := newEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetDefault("ENABLED", def.Enabled)
	v.SetDefault("CAPACITY", def.Capacity)
	v.SetDefault("REFILL_TOKENS", def.RefillTokens)
	v.SetDefault("REFILL_INTERVAL", def.RefillInterval)
	v.SetDefault("TTL", def.TTL)
	v.SetDefault("KEY_STRATEGY", def.KeyStrategy)
	v.SetDefault("PREFIX", def.Prefix)
	v.SetDefault("DEBUG", def.Debug)
	v.SetDefault("BURST", 0)
	v.SetDefault("REFILL_EVERY", time.Duration(0))

	c := RateLimitConfig{
		Enabled:        v.GetBool("ENABLED"),
		Capacity:       v.GetInt("CAPACITY"),
		RefillTokens:   v.GetInt("REFILL_TOKENS"),
		RefillInterval: v.GetDuration("REFILL_INTERVAL"),
		TTL:            v.GetDuration("TTL"),
		KeyStrategy:    v.GetString("KEY_STRATEGY"),
		Prefix:         v.GetString("PREFIX"),
		Debug:          v.GetBool("DEBUG"),
	}
	if b := v.GetInt("BURST"); b > 0 {
		c.Capacity = b
	}
	if every := v.GetDuration("REFILL_EVERY"); every > 0 {
		c.RefillTokens = 1
		c.RefillInterval = every
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
