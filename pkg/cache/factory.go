package cache

import (
	"fmt"
	"strings"
)

const (
	KindLocal   = "local"   // golang-lru
	KindGoCache = "gocache" // patrickmn/go-cache
	KindRedis   = "redis"   // go-redis
)

// NewCache creates a cache instance based on configuration
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(config.Type)) {
	case KindLocal, "":
		return NewLocalCache(config.Local)
	case KindGoCache:
		return NewGoCache(config.Local), nil
	case KindRedis:
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
