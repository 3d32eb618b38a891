package bagstore

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

type memStorage struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  map[string][]byte
	closed bool
	writer bool
}

// newMemStorage returns a transient in-memory storage intended for tests.
func newMemStorage() storage {
	s := &memStorage{items: make(map[string][]byte)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if writable {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, ErrClosed
		}
		s.writer = true
	}

	// Values are never mutated in place, so a shallow copy is a snapshot.
	return &memTx{
		base:     s,
		writable: writable,
		items:    maps.Clone(s.items),
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	base     *memStorage
	writable bool
	items    map[string][]byte
	closed   bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	if tx.closed {
		panic("tx is closed")
	}
	return slices.Clone(tx.items[string(key)]), nil
}

func (tx *memTx) Put(key, value []byte) error {
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	tx.items[string(key)] = slices.Clone(value)
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	delete(tx.items, string(key))
	return nil
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.base.closed {
		tx.closeLocked()
		return ErrClosed
	}
	tx.base.items = tx.items
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}
