package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tokenapi/core"
)

const credentialCacheKeyPrefix = "go-tokenapi::credential::v1"

// CachedCredentialStore reads through a cache and invalidates the key on
// every write.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns go-tokenapi::credential::v1::<storage_key> with
// the storage key URL-path escaped.
func CredentialCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: storage key is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return "", err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (string, error) {
		return s.base.Get(ctx, strings.TrimSpace(key))
	})
}

func (s *CachedCredentialStore) Set(ctx context.Context, key string, credential string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Set(ctx, strings.TrimSpace(key), credential); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedCredentialStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Remove(ctx, strings.TrimSpace(key)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
