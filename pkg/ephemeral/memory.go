/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package ephemeral

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store used in tests and single-node setups
// where no Redis is available.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]memoryEntry
	lists   map[string][]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]memoryEntry),
		lists:   make(map[string][]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) RPush(ctx context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

func (s *MemoryStore) LPop(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	if len(list) == 0 {
		return "", ErrNotFound
	}
	head := list[0]
	if len(list) == 1 {
		delete(s.lists, key)
	} else {
		s.lists[key] = list[1:]
	}
	return head, nil
}

func (s *MemoryStore) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	kept := list[:0:0]
	var removed int64
	for _, v := range list {
		if v == value && (count == 0 || removed < count) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		delete(s.lists, key)
	} else {
		s.lists[key] = kept
	}
	return removed, nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveEntry(key)
	if !ok {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) GetDel(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveEntry(key)
	if !ok {
		return "", ErrNotFound
	}
	delete(s.strings, key)
	return entry.value, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.strings, key)
		delete(s.lists, key)
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveEntry(key); ok {
		return true, nil
	}
	_, ok := s.lists[key]
	return ok, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// liveEntry must be called with the lock held. Expired entries are reaped on
// access, matching how the Redis backend behaves from a reader's view.
func (s *MemoryStore) liveEntry(key string) (memoryEntry, bool) {
	entry, ok := s.strings[key]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.strings, key)
		return memoryEntry{}, false
	}
	return entry, true
}
