package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starnet/starwatch/internal/model"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("not found")

// Store is the durable key/value cache of canonical records.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put replaces the value stored under key.
func (s *Store) Put(ctx context.Context, key, value string) error {
	return put(ctx, s.db, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ClearRecords removes every cached record and the last-updated stamp.
// The theme preference survives.
func (s *Store) ClearRecords(ctx context.Context) error {
	keys := []any{model.CacheUpdatedKey}
	for _, ep := range model.Endpoints() {
		keys = append(keys, ep.CacheKey())
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?, ?, ?, ?)`, keys...)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// SaveRecord replaces the endpoint's cached record and stamps updatedAt in
// one transaction.
func (s *Store) SaveRecord(ctx context.Context, rec model.Record, updatedAt time.Time) error {
	value := rec.Value()
	if value == nil {
		return fmt.Errorf("save record: unknown endpoint %q", rec.Endpoint)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", rec.Endpoint, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := put(ctx, tx, rec.Endpoint.CacheKey(), string(data)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := put(ctx, tx, model.CacheUpdatedKey, updatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadRecords returns every cached record that still decodes. Entries that
// fail to decode are dropped from the cache and reported in skipped.
func (s *Store) LoadRecords(ctx context.Context) (records map[model.Endpoint]model.Record, skipped []model.Endpoint, err error) {
	records = make(map[model.Endpoint]model.Record)
	for _, ep := range model.Endpoints() {
		value, err := s.Get(ctx, ep.CacheKey())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		rec, err := model.DecodeRecord(ep, []byte(value))
		if err != nil {
			skipped = append(skipped, ep)
			if err := s.Delete(ctx, ep.CacheKey()); err != nil {
				return nil, nil, err
			}
			continue
		}
		records[ep] = rec
	}
	return records, skipped, nil
}

// LastUpdated returns the stamp written by the latest SaveRecord.
func (s *Store) LastUpdated(ctx context.Context) (time.Time, bool, error) {
	value, err := s.Get(ctx, model.CacheUpdatedKey)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Theme returns the persisted theme. Anything but "dark" reads as light.
func (s *Store) Theme(ctx context.Context) (string, error) {
	value, err := s.Get(ctx, model.ThemeKey)
	if errors.Is(err, ErrNotFound) {
		return model.ThemeLight, nil
	}
	if err != nil {
		return model.ThemeLight, err
	}
	if value != model.ThemeDark {
		return model.ThemeLight, nil
	}
	return value, nil
}

// SetTheme persists theme, which must be dark or light.
func (s *Store) SetTheme(ctx context.Context, theme string) error {
	if theme != model.ThemeDark && theme != model.ThemeLight {
		return fmt.Errorf("unknown theme %q", theme)
	}
	return s.Put(ctx, model.ThemeKey, theme)
}
