package vocab

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/openfolio/archive-api/pkg/errors"
)

// Resolver maps a domain role code to the archive service's
// equivalent vocabulary terms. Zero terms is a valid answer; failure
// to resolve is never fatal to translation.
type Resolver interface {
	Resolve(ctx context.Context, role string) ([]string, error)
}

// defaultTerms is seeded from the upstream role vocabulary dump. The
// external codes follow the MARC relator list the archive service
// matches on.
var defaultTerms = map[string][]string{
	"author":       {"aut"},
	"supervisor":   {"ths"},
	"advisor":      {"dgs"},
	"editor":       {"edt"},
	"photographer": {"pht"},
}

// StaticResolver answers from an in-memory term table.
type StaticResolver struct {
	terms map[string][]string
}

// NewStaticResolver returns a resolver over the default term table.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{terms: defaultTerms}
}

// NewStaticResolverWithTerms returns a resolver over a custom table.
func NewStaticResolverWithTerms(terms map[string][]string) *StaticResolver {
	return &StaticResolver{terms: terms}
}

// Resolve returns the external terms for a domain role code. Unknown
// codes resolve to zero terms without error.
func (r *StaticResolver) Resolve(_ context.Context, role string) ([]string, error) {
	terms, ok := r.terms[role]
	if !ok {
		return nil, nil
	}
	out := make([]string, len(terms))
	copy(out, terms)
	return out, nil
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedResolver wraps another resolver with a lookaside cache. Cache
// failures fall through to the inner resolver.
type CachedResolver struct {
	next   Resolver
	cache  cacheStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedResolver constructs the caching wrapper.
func NewCachedResolver(next Resolver, cache cacheStore, ttl time.Duration, logger *zap.Logger) *CachedResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Resolve serves from cache when possible and populates it after a
// successful inner lookup.
func (r *CachedResolver) Resolve(ctx context.Context, role string) ([]string, error) {
	key := "vocab:role:" + role
	var cached []string
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		r.logger.Sugar().Debugw("vocab cache lookup failed", "role", role, "error", err)
	}

	terms, err := r.next.Resolve(ctx, role)
	if err != nil {
		return nil, err
	}
	if setErr := r.cache.Set(ctx, key, terms, r.ttl); setErr != nil {
		r.logger.Sugar().Warnw("vocab cache store failed", "role", role, "error", setErr)
	}
	return terms, nil
}
