// Package badger provides an embedded session store on BadgerDB. It gives
// a single-node gateway durable sessions across restarts without an
// external dependency. TTLs map directly onto Badger entry TTLs.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/wheelseye/devicegateway/pkg/session"
)

// Config configures the Badger backend.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory runs Badger without disk persistence, for tests.
	InMemory bool
}

// Store implements session.Store on a Badger database.
type Store struct {
	db *badger.DB
}

// New opens the database.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

func keySession(id string) []byte {
	return []byte(session.SessionKeyPrefix + id)
}

func keyIMEI(imei string) []byte {
	return []byte(session.IMEIIndexKeyPrefix + imei)
}

func (s *Store) PutSession(_ context.Context, ds *session.DeviceSession, ttl time.Duration) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", ds.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(keySession(ds.ID), data).WithTTL(ttl))
	})
}

func (s *Store) GetSession(_ context.Context, id string) (*session.DeviceSession, error) {
	var ds session.DeviceSession
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keySession(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ds)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	return &ds, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keySession(id))
	})
}

func (s *Store) PutIMEIIndex(_ context.Context, imei, sessionID string, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(keyIMEI(imei), []byte(sessionID)).WithTTL(ttl))
	})
}

func (s *Store) GetIMEIIndex(_ context.Context, imei string) (string, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyIMEI(imei))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading IMEI index %s: %w", imei, err)
	}
	return id, nil
}

func (s *Store) DeleteIMEIIndex(_ context.Context, imei string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyIMEI(imei))
	})
}

func (s *Store) ListSessions(_ context.Context) ([]*session.DeviceSession, error) {
	var out []*session.DeviceSession
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(session.SessionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var ds session.DeviceSession
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ds)
			})
			if err != nil {
				return err
			}
			out = append(out, &ds)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
