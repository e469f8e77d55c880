package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/leonardcser/addrkv/internal/cache"
	"github.com/leonardcser/addrkv/internal/store"
)

// journal records collaborator calls across fakes in the order they happen.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	j.calls = append(j.calls, call)
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeFilter struct {
	j      *journal
	keys   map[string]bool
	addErr error
}

func (f *fakeFilter) Contains(key string) bool {
	f.j.add("filter.contains")
	return f.keys[key]
}

func (f *fakeFilter) Add(key string) error {
	f.j.add("filter.add")
	if f.addErr != nil {
		return f.addErr
	}
	f.keys[key] = true
	return nil
}

type fakeCache struct {
	j         *journal
	data      map[string][]byte
	ttls      map[string]time.Duration
	getErr    error
	setErr    error
	expireErr error
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.j.add("cache.get")
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte) error {
	c.j.add("cache.set")
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = append([]byte(nil), value...)
	delete(c.ttls, key)
	return nil
}

func (c *fakeCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.j.add("cache.expire")
	if c.expireErr != nil {
		return c.expireErr
	}
	c.ttls[key] = ttl
	return nil
}

type fakeStore struct {
	j      *journal
	data   map[string]json.RawMessage
	getErr error
	setErr error
}

func (s *fakeStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	s.j.add("store.get")
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value json.RawMessage) error {
	s.j.add("store.set")
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = append(json.RawMessage(nil), value...)
	return nil
}

type harness struct {
	j      *journal
	filter *fakeFilter
	cache  *fakeCache
	store  *fakeStore
}

func newHarness() *harness {
	j := &journal{}
	return &harness{
		j:      j,
		filter: &fakeFilter{j: j, keys: map[string]bool{}},
		cache:  &fakeCache{j: j, data: map[string][]byte{}, ttls: map[string]time.Duration{}},
		store:  &fakeStore{j: j, data: map[string]json.RawMessage{}},
	}
}

func (h *harness) coordinator(opts ...Option) *Coordinator {
	return New(h.filter, h.cache, h.store, opts...)
}

var errBoom = errors.New("boom")
