// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//   user:<id>        UserProfile (JSON)
//   app:<pkg>        AppEntry (JSON)
//   installed:<id>   []string (JSON)
//   tok:<token>      userID (raw) with TTL
//   audit:<reqID>    PhotoAudit (JSON)
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the store at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) getJSON(key []byte, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *BadgerStore) putJSON(key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

func (s *BadgerStore) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	var out UserProfile
	if err := s.getJSON([]byte("user:"+userID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) PutUser(ctx context.Context, profile *UserProfile) error {
	return s.putJSON([]byte("user:"+profile.UserID), profile)
}

func (s *BadgerStore) GetApp(ctx context.Context, packageName string) (*AppEntry, error) {
	var out AppEntry
	if err := s.getJSON([]byte("app:"+packageName), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) PutApp(ctx context.Context, entry *AppEntry) error {
	return s.putJSON([]byte("app:"+entry.PackageName), entry)
}

func (s *BadgerStore) ListApps(ctx context.Context) ([]*AppEntry, error) {
	var out []*AppEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("app:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry AppEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			out = append(out, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) InstalledApps(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := s.getJSON([]byte("installed:"+userID), &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) SetInstalledApps(ctx context.Context, userID string, packages []string) error {
	return s.putJSON([]byte("installed:"+userID), packages)
}

func (s *BadgerStore) PutTempToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte("tok:"+token), []byte(userID)).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) ResolveTempToken(ctx context.Context, token string) (string, error) {
	key := []byte("tok:" + token)
	var userID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *BadgerStore) PutPhotoAudit(ctx context.Context, rec *PhotoAudit) error {
	return s.putJSON([]byte("audit:"+rec.RequestID), rec)
}
