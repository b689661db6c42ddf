package redis

import (
	"fmt"
	"strings"
)

const (
	// KeyPrefixView is the prefix for persisted view keys
	KeyPrefixView = "clusterview:view:"
	// KeyPrefixCache is the prefix for cached listing keys
	KeyPrefixCache = "clusterview:cache:"
	// KeyAllViews is the key for the set of all persisted view names
	KeyAllViews = "clusterview:views:all"
	// KeyCapacitySnapshot holds the last capacity card state
	KeyCapacitySnapshot = "clusterview:capacity:snapshot"
)

// ViewKey returns the Redis key for a view by name
func ViewKey(name string) string {
	return KeyPrefixView + name
}

// CacheKey returns the Redis key for a cached listing. Parts are joined
// with ":".
func CacheKey(parts ...string) string {
	return KeyPrefixCache + strings.Join(parts, ":")
}

// AllViewsKey returns the key for the set of all view names
func AllViewsKey() string {
	return KeyAllViews
}

// ExtractViewName extracts the view name from a Redis key
func ExtractViewName(key string) (string, error) {
	if !strings.HasPrefix(key, KeyPrefixView) || len(key) == len(KeyPrefixView) {
		return "", fmt.Errorf("invalid view key: %s", key)
	}
	return key[len(KeyPrefixView):], nil
}
