// Package badgerstore provides the durable entity-record registry on
// BadgerDB. Records survive a process restart; with a seal cipher
// configured they are encrypted at rest, bound to their entity key.
package badgerstore

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/storage"
	"github.com/yndnr/entmesh-go/pkg/seal"
)

const recordPrefix = "rec/"

// Store is a Badger-backed entity-record registry.
type Store struct {
	db     *badger.DB
	cipher seal.Cipher
}

// Option configures a Store.
type Option func(*config)

type config struct {
	inMemory bool
	cipher   seal.Cipher
}

// WithInMemory keeps the Badger tables off disk. Used by tests and
// simulations that want Badger semantics without a data directory.
func WithInMemory() Option {
	return func(c *config) { c.inMemory = true }
}

// WithCipher seals record values at rest.
func WithCipher(cipher seal.Cipher) Option {
	return func(c *config) { c.cipher = cipher }
}

// Open opens or creates the registry at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	badgerOpts := badger.DefaultOptions(dir).WithLogger(nil)
	if cfg.inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", dir, err)
	}
	return &Store{db: db, cipher: cfg.cipher}, nil
}

// Put stores or overwrites the record.
func (s *Store) Put(rec domain.EntityRecord) error {
	value, err := storage.EncodeRecord(rec)
	if err != nil {
		return err
	}
	keyString := rec.Key().String()
	if s.cipher != nil {
		if value, err = s.cipher.Seal(value, []byte(keyString)); err != nil {
			return fmt.Errorf("badgerstore: seal %s: %w", keyString, err)
		}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(keyString), value)
	})
}

// Get returns the record for key.
func (s *Store) Get(key domain.EntityKey) (domain.EntityRecord, bool, error) {
	var rec domain.EntityRecord
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key.String()))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if rec, err = s.decode(key.String(), value); err != nil {
			return err
		}
		found = true
		return nil
	})
	return rec, found, err
}

// Delete removes the record for key.
func (s *Store) Delete(key domain.EntityKey) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key.String()))
	})
}

// List returns all records.
func (s *Store) List() ([]domain.EntityRecord, error) {
	var recs []domain.EntityRecord

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			keyString := string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := s.decode(keyString, value)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) decode(keyString string, value []byte) (domain.EntityRecord, error) {
	if s.cipher != nil {
		opened, err := s.cipher.Open(value, []byte(keyString))
		if err != nil {
			return domain.EntityRecord{}, fmt.Errorf("badgerstore: open sealed %s: %w", keyString, err)
		}
		value = opened
	}
	return storage.DecodeRecord(value)
}

func recordKey(keyString string) []byte {
	return append([]byte(recordPrefix), keyString...)
}
