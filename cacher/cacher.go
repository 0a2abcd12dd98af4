// Package cacher implements pluggable action-result caching: get(key),
// set(key,value), del(key), and clean(pattern) for bulk invalidation. Two
// concrete implementations are provided, grounded on Hola's pkg/cache:
// Memory (in-process, TTL + glob-pattern clean) and Redis
// (github.com/redis/go-redis/v9, matching Hola's own backend choice).
package cacher

import "time"

// DefaultTTL is five minutes, the same value config's cacher.default_ttl
// defaults to. NewMemory and NewRedis do not fall back to it: a zero TTL
// passed to them means entries do not expire.
const DefaultTTL = 5 * time.Minute
