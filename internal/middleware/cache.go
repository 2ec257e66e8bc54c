package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
)

// cachedResponse is what the response cache stores per key.  Body is
// base64 in JSON.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

// recorder tees the response to the client and keeps a copy of the body
// until it grows past limit (0 means unbounded).
type recorder struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	limit    int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.limit > 0 && r.body.Len()+len(b) > r.limit {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// cacheKeyFrom hashes the request parts named by the key strategy
// ("route", "method_route", "route_query", "method_route_query").
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy == "" {
		strategy = "route_query"
	}
	var parts []string
	for _, p := range strings.Split(strategy, "_") {
		switch p {
		case "method":
			parts = append(parts, c.Request().Method)
		case "route":
			parts = append(parts, c.Path())
		case "query":
			parts = append(parts, c.Request().URL.RawQuery)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:16])
}

func encodeResponse(status int, header http.Header, body []byte) ([]byte, error) {
	return json.Marshal(cachedResponse{Status: status, Header: header, Body: body})
}

func decodeResponse(bs []byte) (cachedResponse, bool) {
	var cr cachedResponse
	if err := json.Unmarshal(bs, &cr); err != nil || cr.Status == 0 {
		return cachedResponse{}, false
	}
	return cr, true
}

// NewRedisCache serves repeated reads of listing endpoints from Redis for
// cfg.TTL.  Only 200 responses no larger than cfg.MaxBodyBytes are stored.
// X-Cache tells the client whether the response was a HIT or a MISS.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)
			res := c.Response()

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if cr, ok := decodeResponse(bs); ok {
					for k, vals := range cr.Header {
						if k == echo.HeaderContentLength {
							continue
						}
						res.Header()[k] = vals
					}
					res.Header().Set("X-Cache", "HIT")
					res.WriteHeader(cr.Status)
					_, err := res.Write(cr.Body)
					return err
				}
			} else if !errors.Is(err, redis.Nil) {
				log.Warn("response cache: read failed", zap.String("key", key), zap.Error(err))
			}

			rec := &recorder{ResponseWriter: res.Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			res.Writer = rec
			res.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow {
				return nil
			}

			hdr := res.Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodeResponse(rec.status, hdr, rec.body.Bytes())
			if err == nil {
				err = rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err()
			}
			if err != nil {
				log.Warn("response cache: write failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}
