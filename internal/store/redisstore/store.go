// Package redisstore keeps settings in Redis, one hash per section.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "wg-relay"

type Store struct {
	client *redis.Client
	prefix string

	mu      sync.Mutex
	pending map[string]map[string]string // section -> key -> value
}

func Dial(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
}

func New(client *redis.Client, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, pending: map[string]map[string]string{}}
}

func (s *Store) HashKey(section string) string {
	return s.prefix + ":" + section
}

func (s *Store) Get(ctx context.Context, section, key string) (string, bool, error) {
	s.mu.Lock()
	v, ok := s.pending[section][key]
	s.mu.Unlock()
	if ok {
		return v, true, nil
	}

	v, err := s.client.HGet(ctx, s.HashKey(section), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(_ context.Context, section, key, value string) error {
	if strings.TrimSpace(section) == "" || strings.TrimSpace(key) == "" {
		return errors.New("section and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[section] == nil {
		s.pending[section] = map[string]string{}
	}
	s.pending[section][key] = value
	return nil
}

// Save writes all staged values in one MULTI/EXEC transaction.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	staged := make(map[string]map[string]string, len(s.pending))
	for sec, kv := range s.pending {
		cp := make(map[string]string, len(kv))
		for k, v := range kv {
			cp[k] = v
		}
		staged[sec] = cp
	}
	s.mu.Unlock()
	if len(staged) == 0 {
		return nil
	}

	sections := make([]string, 0, len(staged))
	for sec := range staged {
		sections = append(sections, sec)
	}
	sort.Strings(sections)

	pipe := s.client.TxPipeline()
	for _, sec := range sections {
		args := make([]any, 0, 2*len(staged[sec]))
		for k, v := range staged[sec] {
			args = append(args, k, v)
		}
		pipe.HSet(ctx, s.HashKey(sec), args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sec, kv := range staged {
		for k, v := range kv {
			if cur, ok := s.pending[sec][k]; ok && cur == v {
				delete(s.pending[sec], k)
			}
		}
		if len(s.pending[sec]) == 0 {
			delete(s.pending, sec)
		}
	}
	return nil
}
