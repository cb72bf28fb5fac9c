package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/measureme/pkg/middleware/requestid"
)

const (
	metaKey      = "response_meta"
	metaStartKey = "response_meta_start"
	cacheHitKey  = "cache_hit"
)

// WithResponseMeta stamps the request start and opens the meta map that
// handlers fill before writing the envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Set(metaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the roster came from redis.
func SetCacheHit(c *gin.Context, hit bool) {
	if c == nil {
		return
	}
	meta, ok := storedMeta(c)
	if !ok {
		meta = map[string]interface{}{}
		c.Set(metaKey, meta)
	}
	meta[cacheHitKey] = hit
}

// ExtractMeta snapshots the meta for the envelope. processing_time_ms and
// request_id are computed at call time. Nil when no meta was opened.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, ok := storedMeta(c)
	if !ok {
		return nil
	}
	out := make(map[string]interface{}, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	if raw, exists := c.Get(metaStartKey); exists {
		if start, ok := raw.(time.Time); ok {
			out["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func storedMeta(c *gin.Context) (map[string]interface{}, bool) {
	raw, exists := c.Get(metaKey)
	if !exists {
		return nil, false
	}
	meta, ok := raw.(map[string]interface{})
	return meta, ok
}
