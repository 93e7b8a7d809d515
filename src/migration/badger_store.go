package migration

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const migrationPrefix = "migration_"

// BadgerStore is a Store backed by a Badger database. Every record is written
// through to the database and indexed in an InmemStore, so that migrations
// survive a restart of the server.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
	loaded     bool
}

func openBadger(path string, logger *logrus.Entry) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	return badger.Open(opts)
}

// NewBadgerStore creates a brand new Store with a new database.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	handle, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}
	return store, nil
}

// LoadBadgerStore creates a Store from an existing database and indexes the
// migrations it contains.
func LoadBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	handle, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
		loaded:     true,
	}

	migrations, err := store.dbMigrations()
	if err != nil {
		handle.Close()
		return nil, err
	}
	for _, m := range migrations {
		if err := store.inmemStore.Register(m); err != nil {
			handle.Close()
			return nil, err
		}
	}

	return store, nil
}

// LoadOrCreateBadgerStore loads the database at path if there is one, and
// creates a new one otherwise.
func LoadOrCreateBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	store, err := LoadBadgerStore(path, logger)

	if err != nil {
		store, err = NewBadgerStore(path, logger)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

func migrationKey(token Token) []byte {
	return []byte(fmt.Sprintf("%s%s", migrationPrefix, token))
}

//==============================================================================
//Implement the Store interface

// Register implements the Store interface.
func (s *BadgerStore) Register(m *Migration) error {
	if err := s.inmemStore.Register(m); err != nil {
		return err
	}
	if err := s.dbSetMigration(m); err != nil {
		s.inmemStore.Remove(m)
		return err
	}
	return nil
}

// Update implements the Store interface.
func (s *BadgerStore) Update(m *Migration) error {
	if err := s.inmemStore.Update(m); err != nil {
		return err
	}
	return s.dbSetMigration(m)
}

// ByResumeToken implements the Store interface. Every write goes through the
// in-memory index, so it answers every lookup.
func (s *BadgerStore) ByResumeToken(token Token) (*Migration, error) {
	return s.inmemStore.ByResumeToken(token)
}

// ByClient implements the Store interface.
func (s *BadgerStore) ByClient(client string) (*Migration, error) {
	return s.inmemStore.ByClient(client)
}

// Remove implements the Store interface.
func (s *BadgerStore) Remove(m *Migration) error {
	if err := s.inmemStore.Remove(m); err != nil {
		return err
	}
	return s.dbDeleteMigration(m.ResumeToken)
}

// All implements the Store interface.
func (s *BadgerStore) All() []*Migration {
	return s.inmemStore.All()
}

// Len implements the Store interface.
func (s *BadgerStore) Len() int {
	return s.inmemStore.Len()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

// Loaded reports whether the store was loaded from an existing database.
func (s *BadgerStore) Loaded() bool {
	return s.loaded
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbSetMigration(m *Migration) error {
	val, err := m.Marshal()
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(migrationKey(m.ResumeToken), val); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *BadgerStore) dbDeleteMigration(token Token) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(migrationKey(token))
	})
}

func (s *BadgerStore) dbMigrations() ([]*Migration, error) {
	res := []*Migration{}
	prefix := []byte(migrationPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			m := new(Migration)
			if err := m.Unmarshal(data); err != nil {
				return err
			}
			res = append(res, m)
		}
		return nil
	})
	return res, err
}
