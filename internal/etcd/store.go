package etcd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/exeteres/wg-relay/internal/store"
)

const DefaultPrefix = "wg-relay"

func Dial(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// Store keeps settings under <prefix>/<section>/<key>. Writes are staged and
// committed together by Save so the cached blob and its last_fetch marker
// land in one revision.
type Store struct {
	client *clientv3.Client
	prefix string

	mu      sync.Mutex
	pending map[string]string
}

func NewStore(client *clientv3.Client, prefix string) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, pending: map[string]string{}}
}

func (s *Store) Key(section, key string) string {
	return s.prefix + "/" + section + "/" + key
}

func (s *Store) Get(ctx context.Context, section, key string) (string, bool, error) {
	k := s.Key(section, key)
	s.mu.Lock()
	v, ok := s.pending[k]
	s.mu.Unlock()
	if ok {
		return v, true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := s.client.Get(ctx, k)
	if err != nil {
		return "", false, err
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (s *Store) Set(_ context.Context, section, key, value string) error {
	if strings.TrimSpace(section) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("section and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[s.Key(section, key)] = value
	return nil
}

func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	staged := make(map[string]string, len(s.pending))
	keys := make([]string, 0, len(s.pending))
	for k, v := range s.pending {
		staged[k] = v
		keys = append(keys, k)
	}
	s.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	ops := make([]clientv3.Op, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, clientv3.OpPut(k, staged[k]))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.client.Txn(ctx).Then(ops...).Commit(); err != nil {
		return fmt.Errorf("commit %d settings: %w", len(ops), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range staged {
		// Values restaged while the commit was in flight stay pending.
		if s.pending[k] == v {
			delete(s.pending, k)
		}
	}
	return nil
}

// Watch reports every put or delete under the store prefix until ctx ends or
// the watch fails.
func (s *Store) Watch(ctx context.Context, fn func(store.Change)) error {
	wch := s.client.Watch(ctx, s.prefix+"/", clientv3.WithPrefix())
	for wr := range wch {
		if err := wr.Err(); err != nil {
			return fmt.Errorf("watch %s: %w", s.prefix, err)
		}
		for _, ev := range wr.Events {
			if ev.Kv == nil {
				continue
			}
			c, ok := s.change(ev)
			if !ok {
				continue
			}
			fn(c)
		}
	}
	return ctx.Err()
}

func (s *Store) change(ev *clientv3.Event) (store.Change, bool) {
	rest, ok := strings.CutPrefix(string(ev.Kv.Key), s.prefix+"/")
	if !ok {
		return store.Change{}, false
	}
	section, key, ok := strings.Cut(rest, "/")
	if !ok || section == "" || key == "" {
		return store.Change{}, false
	}
	c := store.Change{Section: section, Key: key}
	switch ev.Type {
	case mvccpb.PUT:
		c.Value = string(ev.Kv.Value)
	case mvccpb.DELETE:
		c.Deleted = true
	default:
		return store.Change{}, false
	}
	return c, true
}
