// Package cache resolves the relay list from the store cache, the file cache
// or a fresh fetch, in that order.
package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/store"
)

const (
	sourceStore   = "store cache"
	sourceFile    = "file cache"
	sourceFetched = "fetched payload"
)

// Fetcher runs the fetch action, which leaves the payload at ServersFile.
type Fetcher interface {
	Fetch(ctx context.Context) error
	ServersFile() string
}

type Options struct {
	Store   store.ConfigStore
	Fetcher Fetcher
	Logger  *log.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// OnFetchStart and OnFetchEnd bracket every fetch so callers can show
	// progress. OnFetchEnd runs whether or not the fetch succeeded.
	OnFetchStart func()
	OnFetchEnd   func()

	// Notify receives fetch failures that Resolve absorbs.
	Notify func(err error)
}

type Resolver struct {
	opts Options

	// Fetches and cache writes are serialized so the blob never disagrees
	// with last_fetch.
	mu sync.Mutex
}

func New(opts Options) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{opts: opts}
}

// Resolve returns the freshest usable relay list and never fails: when no tier
// produces data it returns an empty list and reports the fetch error through
// Notify.
func (r *Resolver) Resolve(ctx context.Context) model.RelayList {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	state, err := store.ReadCacheState(ctx, r.opts.Store)
	if err != nil {
		r.logf("read cache state failed err=%v", err)
	}

	if state.Fresh(now) {
		if l, ok := r.fromStore(ctx); ok {
			return l
		}
	}
	if l, ok := r.fromFile(state, now); ok {
		return l
	}

	l, err := r.fetch(ctx, state)
	if err != nil {
		r.logf("fetch failed err=%v", err)
		if r.opts.Notify != nil {
			r.opts.Notify(err)
		}
		return model.EmptyRelayList()
	}
	return l
}

// Refresh fetches regardless of cache state and returns the fetch error.
func (r *Resolver) Refresh(ctx context.Context) (model.RelayList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := store.ReadCacheState(ctx, r.opts.Store)
	if err != nil {
		r.logf("read cache state failed err=%v", err)
	}
	return r.fetch(ctx, state)
}

func (r *Resolver) fromStore(ctx context.Context) (model.RelayList, bool) {
	raw, _, err := r.opts.Store.Get(ctx, store.SectionServers, store.KeyServersData)
	if err != nil {
		r.logf("read cached payload failed err=%v", err)
		return model.RelayList{}, false
	}
	if strings.TrimSpace(raw) == "" {
		return model.RelayList{}, false
	}
	l, err := model.DecodeRelayList(sourceStore, []byte(raw))
	if err != nil {
		r.logf("cached payload unusable err=%v", err)
		return model.RelayList{}, false
	}
	return l, true
}

func (r *Resolver) fromFile(state store.CacheState, now time.Time) (model.RelayList, bool) {
	path := r.opts.Fetcher.ServersFile()
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return model.RelayList{}, false
	}
	if !state.FreshSince(st.ModTime(), now) {
		return model.RelayList{}, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		r.logf("read file cache failed path=%q err=%v", path, err)
		return model.RelayList{}, false
	}
	l, err := model.DecodeRelayList(sourceFile, b)
	if err != nil {
		r.logf("file cache unusable path=%q err=%v", path, err)
		return model.RelayList{}, false
	}
	return l, true
}

// fetch is bounded by the command timeout only; a caller that goes away
// mid-fetch does not abort the action or the cache write.
func (r *Resolver) fetch(ctx context.Context, state store.CacheState) (model.RelayList, error) {
	if err := ctx.Err(); err != nil {
		return model.RelayList{}, fmt.Errorf("fetch server list: %w", err)
	}
	ctx = context.WithoutCancel(ctx)

	if r.opts.OnFetchStart != nil {
		r.opts.OnFetchStart()
	}
	if r.opts.OnFetchEnd != nil {
		defer r.opts.OnFetchEnd()
	}

	if err := r.opts.Fetcher.Fetch(ctx); err != nil {
		return model.RelayList{}, fmt.Errorf("fetch server list: %w", err)
	}
	b, err := os.ReadFile(r.opts.Fetcher.ServersFile())
	if err != nil {
		return model.RelayList{}, fmt.Errorf("read fetched server list: %w", err)
	}
	l, err := model.DecodeRelayList(sourceFetched, b)
	if err != nil {
		return model.RelayList{}, err
	}

	if err := r.persist(ctx, state, b); err != nil {
		r.logf("persist fetch failed err=%v", err)
	}
	return l, nil
}

func (r *Resolver) persist(ctx context.Context, state store.CacheState, payload []byte) error {
	s := r.opts.Store
	now := strconv.FormatInt(r.opts.Now().Unix(), 10)
	if err := s.Set(ctx, store.SectionConfig, store.KeyLastFetch, now); err != nil {
		return err
	}
	if state.Enabled {
		if err := s.Set(ctx, store.SectionServers, store.KeyServersData, strings.TrimSpace(string(payload))); err != nil {
			return err
		}
	}
	return s.Save(ctx)
}

func (r *Resolver) logf(format string, args ...any) {
	if r.opts.Logger == nil {
		return
	}
	r.opts.Logger.Printf(format, args...)
}
