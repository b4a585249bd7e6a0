// Package slpdb defines the key-value store interfaces backing every
// go-slp collection (journal, contracts, wallets, rejected, mark).
// Two backends exist: slpdb/leveldb for persistent nodes and
// slpdb/memorydb for tests and ephemeral replay.
package slpdb

import "io"

// KeyValueReader wraps the Has and Get method of a backing data store.
type KeyValueReader interface {
	// Has retrieves if a key is present in the key-value data store.
	Has(key []byte) (bool, error)

	// Get retrieves the given key if it's present in the key-value data store.
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete method of a backing data store.
type KeyValueWriter interface {
	// Put inserts the given value into the key-value data store.
	Put(key []byte, value []byte) error

	// Delete removes the key from the key-value data store.
	Delete(key []byte) error
}

// Iterator iterates over a data store's key/value pairs in ascending
// key order. An iterator must be released after use.
type Iterator interface {
	// Next moves the iterator to the next key/value pair. It returns
	// whether the iterator is exhausted.
	Next() bool

	// Error returns any accumulated error.
	Error() error

	// Key returns the key of the current key/value pair, or nil if done.
	Key() []byte

	// Value returns the value of the current key/value pair, or nil if done.
	Value() []byte

	// Release releases associated resources.
	Release()
}

// Iteratee wraps the NewIterator methods of a backing data store.
type Iteratee interface {
	// NewIterator creates a binary-alphabetical iterator over a subset
	// of database content with a particular key prefix, starting at a
	// particular initial key (or after, if it does not exist).
	NewIterator(prefix []byte, start []byte) Iterator
}

// KeyValueStore contains all the methods required to allow handling
// different key-value data stores backing the SLP collections.
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	Iteratee
	io.Closer
}
