package config

// Redis backs distributed rate limiting and HTTP response caching.  If the
// server is unreachable at startup NewRedisClient returns nil and callers
// degrade gracefully by disabling both.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client using environment variables.
// Supported variables are:
//
//	REDIS_HOST and REDIS_PORT - hostname and port of the Redis server
//	REDIS_ADDR - host:port shorthand, used when host/port are not both set
//	REDIS_PASSWORD - optional password
//	REDIS_DB - database number (default 0)
//	REDIS_TLS - enable TLS when true
//	REDIS_ENABLED - set to false to skip Redis entirely
func NewRedisClient() *redis.Client {
	v := newEnv()
	v.SetEnvPrefix("REDIS")
	v.SetDefault("ENABLED", true)
	v.SetDefault("ADDR", "localhost:6379")
	v.SetDefault("DB", 0)
	v.SetDefault("TLS", false)
	if !v.GetBool("ENABLED") {
		return nil
	}

	addr := v.GetString("ADDR")
	if host, port := v.GetString("HOST"), v.GetString("PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	var tlsConf *tls.Config
	if v.GetBool("TLS") {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  v.GetString("PASSWORD"),
		DB:        v.GetInt("DB"),
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
