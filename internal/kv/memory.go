package kv

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	value   string
	hash    map[string]string
	expires time.Time // zero means no expiry
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryStore is an in-process Store used by tests. It implements the same
// glob-scan/hash/string/TTL semantics as RedisStore without a network
// dependency.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memEntry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string]*memEntry{},
		now:  time.Now,
	}
}

func (s *MemoryStore) get(key string) *memEntry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Scan(_ context.Context, pattern string, batchSize int64, cursor string) (string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []string
	now := s.now()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
			continue
		}
		if ok, _ := filepath.Match(pattern, k); ok {
			all = append(all, k)
		}
	}
	sort.Strings(all)

	start := 0
	if cursor != "" && cursor != "0" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return "0", nil, &TransientError{Op: "scan", Err: err}
		}
		start = n
	}
	if start >= len(all) {
		return "0", nil, nil
	}
	if batchSize <= 0 {
		batchSize = int64(len(all))
	}
	end := start + int(batchSize)
	if end >= len(all) {
		return "0", all[start:], nil
	}
	return strconv.Itoa(end), all[start:end], nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	out := map[string]string{}
	if e == nil || e.hash == nil {
		return out, nil
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.data[key]
	if e == nil || e.expired(s.now()) {
		e = &memEntry{hash: map[string]string{}}
		s.data[key] = e
	}
	if e.hash == nil {
		e.hash = map[string]string{}
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		e.expires = time.Time{}
		return nil
	}
	e.expires = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &memEntry{value: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key) != nil, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	body, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, body, ttl)
}

// SetNow overrides the store's clock, for TTL-expiry tests.
func (s *MemoryStore) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}
