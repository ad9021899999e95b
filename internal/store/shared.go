package store

import (
	"sync"

	"github.com/heysubinoy/safinadb/pkg/kv"
)

// Shared is the one Store instance of a process, guarded by a mutex.
// The Store is allocated lazily on the first Acquire. Create a single Shared
// at startup and hand the pointer to every component that needs the store.
type Shared struct {
	once  sync.Once
	mu    sync.Mutex
	store *Store
}

// Compile-time check to ensure Shared implements kv.Store.
var _ kv.Store = (*Shared)(nil)

// NewShared returns a Shared whose Store is created on first use.
func NewShared() *Shared {
	return &Shared{}
}

// Acquire locks the store and returns it with the matching release func.
// The *Store must not be used after release is called.
func (s *Shared) Acquire() (*Store, func()) {
	s.once.Do(func() {
		s.store = New()
	})
	s.mu.Lock()
	return s.store, s.mu.Unlock
}

// With runs fn while holding the store lock.
func (s *Shared) With(fn func(*Store) error) error {
	st, release := s.Acquire()
	defer release()

	return fn(st)
}

// Insert adds a new pair under the store lock.
func (s *Shared) Insert(key, value string) error {
	return s.With(func(st *Store) error {
		return st.Insert(key, value)
	})
}

// Get returns a copy of the pair stored under key.
func (s *Shared) Get(key string) (kv.KV, error) {
	var pair kv.KV
	err := s.With(func(st *Store) error {
		var err error
		pair, err = st.Get(key)
		return err
	})
	return pair, err
}

// Update replaces the value of an existing pair.
func (s *Shared) Update(key, value string) error {
	return s.With(func(st *Store) error {
		return st.Update(key, value)
	})
}

// Delete removes key if present. The error is always nil.
func (s *Shared) Delete(key string) (bool, error) {
	var existed bool
	_ = s.With(func(st *Store) error {
		existed = st.Delete(key)
		return nil
	})
	return existed, nil
}

// Len returns the number of stored pairs.
func (s *Shared) Len() int {
	st, release := s.Acquire()
	defer release()

	return st.Len()
}
