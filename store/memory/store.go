// Package memorystore keeps credentials in process memory.
package memorystore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tokenapi/core"
	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = time.Minute

type Option func(*Store)

// WithTTL expires stored credentials after ttl. Zero keeps them until removed.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCodec(codec core.CredentialCodec) Option {
	return func(s *Store) {
		if codec != nil {
			s.codec = codec
		}
	}
}

type Store struct {
	cache *gocache.Cache
	codec core.CredentialCodec
	ttl   time.Duration
}

func New(opts ...Option) *Store {
	store := &Store{
		codec: core.JSONCredentialCodec{},
		ttl:   gocache.NoExpiration,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	store.cache = gocache.New(store.ttl, defaultCleanupInterval)
	return store
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	if s == nil || s.cache == nil {
		return "", fmt.Errorf("memorystore: store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("memorystore: key is required")
	}
	value, ok := s.cache.Get(key)
	if !ok {
		return "", nil
	}
	payload, _ := value.([]byte)
	return s.codec.Decode(payload)
}

func (s *Store) Set(_ context.Context, key string, credential string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("memorystore: store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("memorystore: key is required")
	}
	payload, err := s.codec.Encode(credential)
	if err != nil {
		return err
	}
	s.cache.Set(key, payload, gocache.DefaultExpiration)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("memorystore: store is not configured")
	}
	s.cache.Delete(strings.TrimSpace(key))
	return nil
}

// Raw returns the encoded payload held for key.
func (s *Store) Raw(key string) ([]byte, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}
	value, ok := s.cache.Get(strings.TrimSpace(key))
	if !ok {
		return nil, false
	}
	payload, ok := value.([]byte)
	return payload, ok
}

var _ core.CredentialStore = (*Store)(nil)
