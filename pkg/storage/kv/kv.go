// Package kv provides the durable local key/value storage behind the
// persisted selection and the trading credentials.
package kv

import (
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// Store is a string key/value store. Get reports ok=false for missing keys.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

var ErrEmptyKey = errors.New("kv: key is empty")

// BadgerStore persists keys in a badger directory.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at path. An empty path opens an
// in-memory badger instance.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if strings.TrimSpace(path) == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "kv: open badger at %q", path)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) Get(key string) (string, bool, error) {
	k, err := normalize(key)
	if err != nil {
		return "", false, err
	}

	var (
		out   string
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "kv: get %q", key)
	}
	return out, found, nil
}

func (s *BadgerStore) Set(key, value string) error {
	k, err := normalize(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(value))
	})
}

func (s *BadgerStore) Delete(key string) error {
	k, err := normalize(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func normalize(key string) ([]byte, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return nil, ErrEmptyKey
	}
	return []byte(k), nil
}

// MemoryStore keeps keys for the lifetime of the process.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
