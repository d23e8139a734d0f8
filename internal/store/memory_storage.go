package store

import (
	"container/list"
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/khanghh/rootgate/params"
)

const sweepBatchSize = 64

type memoryEntry struct {
	key       string
	value     reflect.Value
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type MemoryConfig struct {
	Capacity      int
	SweepInterval time.Duration
	Now           func() time.Time
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.Capacity <= 0 {
		c.Capacity = params.StoreCapacity
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = params.StoreSweepInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// MemoryStorage is an in-process Storage bounded to a fixed number of entries.
// Writes keep entries ordered from oldest to newest, overflow evicts the oldest.
type MemoryStorage struct {
	config  MemoryConfig
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	elem, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	entry := elem.Value.(*memoryEntry)
	if entry.expired(s.config.Now()) {
		s.removeElement(elem)
		s.mu.Unlock()
		return ErrNotFound
	}
	src := entry.value
	s.mu.Unlock()
	return assignValue(val, src)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	src := reflect.ValueOf(val)
	if !src.IsValid() {
		return ErrTypeMismatch
	}
	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			return ErrTypeMismatch
		}
		src = src.Elem()
	}
	// keep a private copy so later mutations by the caller are not observed
	stored := reflect.New(src.Type()).Elem()
	stored.Set(src)

	var expiresAt time.Time
	if expiresIn > 0 {
		expiresAt = s.config.Now().Add(expiresIn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = stored
		entry.expiresAt = expiresAt
		s.order.MoveToBack(elem)
		return nil
	}
	for len(s.entries) >= s.config.Capacity {
		s.removeElement(s.order.Front())
	}
	s.entries[key] = s.order.PushBack(&memoryEntry{
		key:       key,
		value:     stored,
		expiresAt: expiresAt,
	})
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	s.removeElement(elem)
	return nil
}

// Len returns the number of entries currently held, including expired ones
// the sweeper has not reached yet.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries. The key set is snapshotted first and then
// purged in small batches so concurrent requests are never stalled for a
// full pass.
func (s *MemoryStorage) Sweep() int {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	removed := 0
	for start := 0; start < len(keys); start += sweepBatchSize {
		end := min(start+sweepBatchSize, len(keys))
		s.mu.Lock()
		now := s.config.Now()
		for _, key := range keys[start:end] {
			elem, ok := s.entries[key]
			if ok && elem.Value.(*memoryEntry).expired(now) {
				s.removeElement(elem)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Close stops the background sweeper.
func (s *MemoryStorage) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *MemoryStorage) removeElement(elem *list.Element) {
	entry := s.order.Remove(elem).(*memoryEntry)
	delete(s.entries, entry.key)
}

func (s *MemoryStorage) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

func assignValue(dst any, src reflect.Value) error {
	out := reflect.ValueOf(dst)
	if out.Kind() != reflect.Pointer || out.IsNil() {
		return ErrTypeMismatch
	}
	target := out.Elem()
	if !src.Type().AssignableTo(target.Type()) {
		return ErrTypeMismatch
	}
	target.Set(src)
	return nil
}

func NewMemoryStorage(config MemoryConfig) *MemoryStorage {
	s := &MemoryStorage{
		config:  config.withDefaults(),
		entries: make(map[string]*list.Element),
		order:   list.New(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}
