package kv

import "errors"

var (
	// ErrKeyNotFound is returned by Get and Update when the key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyAlreadyExists is returned by Insert when the key is present.
	ErrKeyAlreadyExists = errors.New("key already exists")
)

// KV is a single stored key/value pair.
// Stores hand out copies, so changing a returned KV never changes the store.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store defines the interface for a key-value store.
// Implementations of this interface can be swapped out,
// allowing for different mutation paths (e.g., direct, Raft-sequenced).
// All implementations must be safe for concurrent use.
type Store interface {
	// Insert adds a new key-value pair.
	// Returns an error wrapping ErrKeyAlreadyExists if the key is present.
	Insert(key, value string) error

	// Get retrieves the pair stored under the given key.
	// Returns an error wrapping ErrKeyNotFound if the key is absent.
	Get(key string) (KV, error)

	// Update replaces the value of an existing key.
	// Returns an error wrapping ErrKeyNotFound if the key is absent.
	Update(key, value string) error

	// Delete removes a key from the store. Deleting an absent key is not an
	// error; the returned bool reports whether an entry was removed.
	// A non-nil error only signals an infrastructure failure.
	Delete(key string) (bool, error)
}
