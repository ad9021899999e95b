package store

import (
	"fmt"
	"sort"

	"github.com/heysubinoy/safinadb/pkg/kv"
)

// Store is the key to KV mapping. It is not safe for concurrent use on its
// own; share it through a Shared.
type Store struct {
	data map[string]*kv.KV
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data: make(map[string]*kv.KV),
	}
}

// Insert adds a new pair. The store is left untouched if the key exists.
func (s *Store) Insert(key, value string) error {
	if _, ok := s.data[key]; ok {
		return fmt.Errorf("%w: %q", kv.ErrKeyAlreadyExists, key)
	}
	s.data[key] = &kv.KV{Key: key, Value: value}
	return nil
}

// Get returns a copy of the pair stored under key.
func (s *Store) Get(key string) (kv.KV, error) {
	pair, ok := s.data[key]
	if !ok {
		return kv.KV{}, fmt.Errorf("%w: %q", kv.ErrKeyNotFound, key)
	}
	return *pair, nil
}

// Update replaces the value of an existing pair in place.
func (s *Store) Update(key, value string) error {
	pair, ok := s.data[key]
	if !ok {
		return fmt.Errorf("%w: %q", kv.ErrKeyNotFound, key)
	}
	pair.Value = value
	return nil
}

// Delete removes key if present and reports whether it was.
// Deleting an absent key is a no-op, not an error.
func (s *Store) Delete(key string) bool {
	if _, ok := s.data[key]; !ok {
		return false
	}
	delete(s.data, key)
	return true
}

// Len returns the number of stored pairs.
func (s *Store) Len() int {
	return len(s.data)
}

// Keys returns all stored keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
