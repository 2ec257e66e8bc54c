package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the HTTP response cache middleware.
// When Enabled is false or no Redis client is configured, caching is
// disabled.  Only public read endpoints are wrapped; availability answers
// come from the in-process availability cache instead.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* variables.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	v := newEnv()
	v.SetEnvPrefix("CACHE")
	v.SetDefault("ENABLED", true)
	v.SetDefault("METHODS", "GET")
	v.SetDefault("TTL", 5*time.Second)
	v.SetDefault("KEY_STRATEGY", "route_query")
	v.SetDefault("PREFIX", "cache")
	v.SetDefault("MAX_BODY_BYTES", 1<<20)

	ttl := v.GetDuration("TTL")
	if ttl <= 0 {
		ttl = time.Second
	}
	return CacheConfig{
		Enabled:      v.GetBool("ENABLED"),
		Methods:      parseMethods(v.GetString("METHODS")),
		TTL:          ttl,
		KeyStrategy:  v.GetString("KEY_STRATEGY"),
		Prefix:       v.GetString("PREFIX"),
		MaxBodyBytes: v.GetInt("MAX_BODY_BYTES"),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
