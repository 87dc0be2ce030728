// Copyright 2024-2026 Aiku AI

// Package prefstore persists per-user relay preferences and the protected
// source registry in an embedded badger database.
package prefstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aiku/relaybot/pkg/relay"
)

const (
	userPrefix      = "user:"
	protectedPrefix = "protected:"

	// maxConflictRetries bounds read-modify-write retries on badger.ErrConflict.
	maxConflictRetries = 5
)

// resetKeys are the preferences cleared by ResetUserPreferences.
// Destinations and uploader settings survive a reset.
var resetKeys = []string{
	relay.PrefDeleteWords,
	relay.PrefReplacements,
	relay.PrefCustomCaption,
}

// Store is a badger-backed relay.PreferenceStore. Values are encoded with
// msgpack.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

var _ relay.PreferenceStore = (*Store)(nil)

// badgerLogger routes badger's internal logging through zerolog. Badger's
// info output is mostly compaction noise, so it is logged at debug level.
type badgerLogger struct {
	log zerolog.Logger
}

var _ badger.Logger = badgerLogger{}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens the database at path. An empty path opens an in-memory
// database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "prefstore").Logger()
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{log: log.With().Str("subcomponent", "badger").Logger()})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func userKey(userID int64, key string) []byte {
	return []byte(userPrefix + strconv.FormatInt(userID, 10) + ":" + key)
}

func protectedKey(sourceID int64) []byte {
	return []byte(protectedPrefix + strconv.FormatInt(sourceID, 10))
}

func getValue(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, out)
	})
}

func setValue(txn *badger.Txn, key []byte, value any) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		zerolog.Ctx(ctx).Debug().Msg("Transaction conflict, retrying")
	}
	return err
}

func (s *Store) GetUserValue(ctx context.Context, userID int64, key string, out any) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getValue(txn, userKey(userID, key), out)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %s for user %d: %w", key, userID, err)
	}
	return found, nil
}

func (s *Store) SetUserValue(ctx context.Context, userID int64, key string, value any) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setValue(txn, userKey(userID, key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s for user %d: %w", key, userID, err)
	}
	return nil
}

func (s *Store) GetDestinations(ctx context.Context, userID int64) ([]relay.Destination, error) {
	var dests []relay.Destination
	if _, err := s.GetUserValue(ctx, userID, relay.PrefDestinations, &dests); err != nil {
		return nil, err
	}
	return dests, nil
}

// AddDestination appends dest unless a destination with the same chat id is
// already present. It reports whether the set changed.
func (s *Store) AddDestination(ctx context.Context, userID int64, dest relay.Destination) (bool, error) {
	var added bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		added = false
		var dests []relay.Destination
		if _, err := getValue(txn, userKey(userID, relay.PrefDestinations), &dests); err != nil {
			return err
		}
		if lo.ContainsBy(dests, func(d relay.Destination) bool { return d.ChatID == dest.ChatID }) {
			return nil
		}
		added = true
		return setValue(txn, userKey(userID, relay.PrefDestinations), append(dests, dest))
	})
	if err != nil {
		return false, fmt.Errorf("failed to add destination: %w", err)
	}
	if added {
		s.log.Info().Int64("user_id", userID).Int64("chat_id", dest.ChatID).Msg("Destination added")
	}
	return added, nil
}

// RemoveDestination drops every destination with chatID and reports
// whether one was present.
func (s *Store) RemoveDestination(ctx context.Context, userID int64, chatID int64) (bool, error) {
	var removed bool
	err := s.update(ctx, func(txn *badger.Txn) error {
		var dests []relay.Destination
		if _, err := getValue(txn, userKey(userID, relay.PrefDestinations), &dests); err != nil {
			return err
		}
		kept := lo.Reject(dests, func(d relay.Destination, _ int) bool { return d.ChatID == chatID })
		removed = len(kept) != len(dests)
		if !removed {
			return nil
		}
		return setValue(txn, userKey(userID, relay.PrefDestinations), kept)
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove destination: %w", err)
	}
	return removed, nil
}

func (s *Store) ListProtectedSources(ctx context.Context) (map[int64]struct{}, error) {
	protected := make(map[int64]struct{})
	prefix := []byte(protectedPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), protectedPrefix)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Str("key", raw).Msg("Skipping malformed protected source key")
				continue
			}
			protected[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list protected sources: %w", err)
	}
	return protected, nil
}

// LockSource adds sourceID to the protected registry. Locking twice is a
// no-op.
func (s *Store) LockSource(ctx context.Context, sourceID int64) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(protectedKey(sourceID), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to lock source %d: %w", sourceID, err)
	}
	s.log.Info().Int64("source_id", sourceID).Msg("Source locked")
	return nil
}

func (s *Store) ResetUserPreferences(ctx context.Context, userID int64) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, key := range resetKeys {
			if err := txn.Delete(userKey(userID, key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset user %d: %w", userID, err)
	}
	return nil
}
