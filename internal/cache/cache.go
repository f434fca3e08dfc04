// Package cache stores public listing query results keyed by the normalized
// query and a generation counter. Bumping the generation invalidates every
// cached result at once.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Cache is the query cache used by the listing service.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Generation returns the current listing generation.
	Generation(ctx context.Context) (int64, error)
	// Bump advances the generation after a listing write.
	Bump(ctx context.Context) error
}

// QueryKey builds a stable key for params under prefix and generation gen.
func QueryKey(prefix string, gen int64, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(":")
		}
		builder.WriteString(k)
		builder.WriteString("=")
		builder.WriteString(params[k])
	}

	hash := md5.Sum([]byte(builder.String()))
	return prefix + ":g" + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(hash[:])
}

// Noop never stores anything. It is used when Redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any) error { return nil }
func (Noop) Generation(context.Context) (int64, error) { return 0, nil }
func (Noop) Bump(context.Context) error { return nil }
