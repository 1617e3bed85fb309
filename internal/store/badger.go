// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/metrics"
)

// Key prefixes for BadgerDB storage.
const (
	statusKeyPrefix = "userStatus:"
	leaseKeyPrefix  = "lease:"
)

// BadgerStore implements PresenceStore on BadgerDB with durable storage, so
// presence records and armed deferred writes survive server restarts.
type BadgerStore struct {
	db       *badger.DB
	leaseTTL time.Duration
	interval time.Duration
}

// Options configures a BadgerStore.
type Options struct {
	// Path is the BadgerDB directory. Empty selects an in-memory database
	// (tests, development).
	Path string

	// LeaseTTL is how long an armed lease stays valid without renewal.
	LeaseTTL time.Duration

	// JanitorInterval is how often expired leases are swept.
	JanitorInterval time.Duration
}

// NewBadgerStore opens (or creates) the store at opts.Path.
func NewBadgerStore(opts Options) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open presence store: %w", err)
	}

	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 90 * time.Second
	}
	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = 10 * time.Second
	}

	return &BadgerStore{
		db:       db,
		leaseTTL: opts.LeaseTTL,
		interval: opts.JanitorInterval,
	}, nil
}

// SetStatus writes the presence record for userID.
func (s *BadgerStore) SetStatus(_ context.Context, userID string, rec StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(statusKeyPrefix+userID), data)
	})
}

// GetStatus reads the presence record for userID.
func (s *BadgerStore) GetStatus(_ context.Context, userID string) (StatusRecord, error) {
	var rec StatusRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(statusKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrStatusNotFound
		}
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})

	return rec, err
}

// ArmOffline registers the deferred offline write for (userID, connID).
func (s *BadgerStore) ArmOffline(_ context.Context, userID, connID string) error {
	data, err := json.Marshal(lease{
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.leaseTTL),
	})
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(leaseKeyPrefix+connID), data)
	})
}

// RenewLease extends the lease for connID. A missing lease is a no-op.
func (s *BadgerStore) RenewLease(_ context.Context, connID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(leaseKeyPrefix + connID)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get lease: %w", err)
		}

		var l lease
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &l)
		}); err != nil {
			return fmt.Errorf("unmarshal lease: %w", err)
		}

		l.ExpiresAt = time.Now().Add(s.leaseTTL)
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal lease: %w", err)
		}
		return txn.Set(key, data)
	})
}

// DisarmOffline cancels the deferred write for connID.
func (s *BadgerStore) DisarmOffline(_ context.Context, connID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(leaseKeyPrefix + connID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// SweepExpired writes offline records for every lease that expired before
// now and removes the lease. Returns the number of leases swept.
func (s *BadgerStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	type expired struct {
		connID string
		userID string
	}
	var found []expired

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(leaseKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var l lease
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &l)
			}); err != nil {
				continue
			}

			if l.ExpiresAt.Before(now) {
				connID := string(item.Key()[len(leaseKeyPrefix):])
				found = append(found, expired{connID: connID, userID: l.UserID})
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan leases: %w", err)
	}

	count := 0
	for _, e := range found {
		rec := StatusRecord{
			Status:    StatusOffline,
			LastSeen:  now,
			UpdatedAt: now,
		}
		if err := s.SetStatus(ctx, e.userID, rec); err != nil {
			logging.Warn().Err(err).Str("user_id", e.userID).Msg("deferred offline write failed")
			continue
		}
		if err := s.DisarmOffline(ctx, e.connID); err != nil {
			logging.Warn().Err(err).Str("conn_id", e.connID).Msg("lease cleanup failed")
		}
		metrics.LeasesExpired.Inc()
		logging.Info().
			Str("user_id", e.userID).
			Str("conn_id", e.connID).
			Msg("liveness lease expired, user marked offline")
		count++
	}

	return count, nil
}

// RunWithContext runs the lease janitor until the context is canceled.
// Designed for suture supervision; returns ctx.Err() on shutdown.
func (s *BadgerStore) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx, time.Now()); err != nil {
				logging.Error().Err(err).Msg("lease sweep failed")
			}
		}
	}
}

// Close releases the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
