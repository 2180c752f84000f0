// Package redisstore keeps credentials in redis so several processes share
// the same credential.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tokenapi/core"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "tokenapi:"

// Client is the subset of redis commands the store uses. *redis.Client and
// *redis.ClusterClient satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

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
	client Client
	codec  core.CredentialCodec
	prefix string
	ttl    time.Duration
}

func New(client Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	store := &Store{
		client: client,
		codec:  core.JSONCredentialCodec{},
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// NewFromAddr connects a single-node client.
func NewFromAddr(addr string, db int, opts ...Option) (*Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redisstore: address is required")
	}
	return New(redis.NewClient(&redis.Options{Addr: addr, DB: db}), opts...)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	redisKey, err := s.key(key)
	if err != nil {
		return "", err
	}
	payload, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: get %q: %w", redisKey, err)
	}
	return s.codec.Decode(payload)
}

func (s *Store) Set(ctx context.Context, key string, credential string) error {
	redisKey, err := s.key(key)
	if err != nil {
		return err
	}
	payload, err := s.codec.Encode(credential)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", redisKey, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	redisKey, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("redisstore: del %q: %w", redisKey, err)
	}
	return nil
}

func (s *Store) key(key string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("redisstore: store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("redisstore: key is required")
	}
	return s.prefix + key, nil
}

var _ core.CredentialStore = (*Store)(nil)
var _ Client = (*redis.Client)(nil)
