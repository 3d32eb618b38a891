package bagstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

type pebbleStorage struct {
	db     *pebble.DB
	writer sync.Mutex
}

// openPebbleStorage opens a Pebble store in dir. A nil fs means the OS file
// system.
func openPebbleStorage(dir string, fs vfs.FS) (storage, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	return &pebbleStorage{db: db}, nil
}

func (s *pebbleStorage) BeginTx(writable bool) (storageTx, error) {
	if !writable {
		return &pebbleTx{s: s, r: s.db.NewSnapshot()}, nil
	}
	s.writer.Lock()
	batch := s.db.NewIndexedBatch()
	return &pebbleTx{s: s, r: batch, batch: batch}, nil
}

func (s *pebbleStorage) Close() error {
	return s.db.Close()
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	Close() error
}

type pebbleTx struct {
	s     *pebbleStorage
	r     pebbleReader
	batch *pebble.Batch
	done  bool
}

func (tx *pebbleTx) Writable() bool { return tx.batch != nil }

func (tx *pebbleTx) Get(key []byte) ([]byte, error) {
	v, closer, err := tx.r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

func (tx *pebbleTx) Put(key, value []byte) error {
	if tx.batch == nil {
		return fmt.Errorf("tx not writable")
	}
	return tx.batch.Set(key, value, nil)
}

func (tx *pebbleTx) Delete(key []byte) error {
	if tx.batch == nil {
		return fmt.Errorf("tx not writable")
	}
	return tx.batch.Delete(key, nil)
}

func (tx *pebbleTx) Commit() error {
	if tx.done {
		return nil
	}
	if tx.batch == nil {
		return fmt.Errorf("tx not writable")
	}
	err := tx.batch.Commit(pebble.Sync)
	tx.finish()
	return err
}

func (tx *pebbleTx) Rollback() error {
	if !tx.done {
		tx.finish()
	}
	return nil
}

func (tx *pebbleTx) finish() {
	tx.done = true
	tx.r.Close()
	if tx.batch != nil {
		tx.s.writer.Unlock()
	}
}
