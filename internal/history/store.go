// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history persists which inputs were already converted and caches
// remote metadata between runs. Both live in one badger database:
//   - done:<key>  completed conversion record (JSON)
//   - info:<url>  remote metadata (JSON) with a TTL
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/dgraph-io/badger/v4"
)

// DefaultInfoTTL is how long fetched metadata stays valid.
const DefaultInfoTTL = 7 * 24 * time.Hour

const (
	donePrefix = "done:"
	infoPrefix = "info:"
)

// Record describes one completed conversion.
type Record struct {
	Key         string    `json:"key"`
	Profile     string    `json:"profile"`
	Outputs     []string  `json:"outputs"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store is the badger-backed history and metadata cache.
type Store struct {
	db      *badger.DB
	infoTTL time.Duration
}

// Open opens (or creates) the store in dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db, infoTTL: DefaultInfoTTL}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// IsProcessed reports whether key (a remote ID or an absolute input path)
// was converted before.
func (s *Store) IsProcessed(key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(donePrefix + key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// MarkCompleted records a finished conversion.
func (s *Store) MarkCompleted(rec Record) error {
	if rec.Key == "" {
		return errors.New("history record without key")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(donePrefix+rec.Key), buf)
	}); err != nil {
		return err
	}
	logger := log.WithComponent("history")
	logger.Info().Str("key", rec.Key).Int(log.FieldParts, len(rec.Outputs)).Msg("history updated")
	return nil
}

// Get returns the record for key, or nil when there is none.
func (s *Store) Get(key string) (*Record, error) {
	var out Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(donePrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Records lists all completed conversions in key order.
func (s *Store) Records() ([]Record, error) {
	var list []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(donePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			list = append(list, rec)
		}
		return nil
	})
	return list, err
}

// LookupInfo returns cached metadata for url if present and not expired.
func (s *Store) LookupInfo(url string) (media.VideoInfo, bool, error) {
	var info media.VideoInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(infoPrefix + url))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return media.VideoInfo{}, false, nil
	}
	if err != nil {
		return media.VideoInfo{}, false, err
	}
	return info, true, nil
}

// StoreInfo caches metadata for url; badger expires it after the TTL.
func (s *Store) StoreInfo(url string, info media.VideoInfo) error {
	buf, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(infoPrefix+url), buf).WithTTL(s.infoTTL))
	})
}

// ClearHistory forgets every completed conversion.
func (s *Store) ClearHistory() error {
	return s.db.DropPrefix([]byte(donePrefix))
}

// ClearCache drops all cached metadata.
func (s *Store) ClearCache() error {
	return s.db.DropPrefix([]byte(infoPrefix))
}
