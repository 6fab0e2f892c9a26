// Package store is the client's single source of truth: a SQLite database
// holding every syncable entity plus the session metadata.
//
// All writes are serialized in-process so read-modify-write sequences such
// as lifecycle transitions never interleave. Every write notifies the
// watchers of the affected category and scope.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/migrations"
	"github.com/dmitrijs2005/fieldsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/fieldsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldsync/internal/dbx"
	"github.com/dmitrijs2005/fieldsync/internal/filex"
	"github.com/dmitrijs2005/fieldsync/internal/logging"
	"github.com/pressly/goose/v3"
)

type Store struct {
	db       *sql.DB
	entities entities.Repository
	meta     *metadata.SQLiteRepository
	now      func() time.Time
	logger   logging.Logger

	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string, logger logging.Logger) (*Store, error) {
	abs, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}

	db, err := dbx.OpenSQLite(ctx, abs)
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and migrates it.
func New(ctx context.Context, db *sql.DB, logger logging.Logger) (*Store, error) {
	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}
	return &Store{
		db:       db,
		entities: entities.NewSQLiteRepository(db),
		meta:     metadata.NewSQLiteRepository(db),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("module", "store"),
		subs:     make(map[*subscription]struct{}),
	}, nil
}

// SetClock replaces the time source used for LastUpdate.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Metadata returns the key/value repository used for session state.
func (s *Store) Metadata() metadata.Repository {
	return s.meta
}

func (s *Store) Close() error {
	return s.db.Close()
}
