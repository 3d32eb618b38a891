package bagstore

import "errors"

// ErrClosed is returned when a transaction is started on a closed backend.
var ErrClosed = errors.New("bag storage closed")

// storage is a key-value backend holding bag files (Bolt, Pebble, in-memory).
type storage interface {
	// BeginTx starts a new transaction. At most one writable transaction is
	// active at a time; BeginTx(true) blocks until the previous one ends.
	BeginTx(writable bool) (storageTx, error)

	Close() error
}

// storageTx is a transaction over the flat key space of a backend.
type storageTx interface {
	Writable() bool

	// Get returns a copy of the value, or nil if the key doesn't exist.
	Get(key []byte) ([]byte, error)

	Put(key, value []byte) error

	Delete(key []byte) error

	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit and
	// more than once.
	Rollback() error
}
