// Package sqlite persists the account in a single-row table and journals
// settled positions for audit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"market-terminal/internal/model"
	"market-terminal/internal/store"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string `yaml:"db_path" default:"data/terminal.db"` // e.g. "data/terminal.db"
}

// Store is a SQLite-backed state store and settlement journal.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens the database in WAL mode and creates the schema.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single connection: all writes are serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info().Str("path", cfg.DBPath).Msg("sqlite opened")
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS account_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS settlements (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument  TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			entry       REAL    NOT NULL,
			leverage    INTEGER NOT NULL,
			exposure    REAL    NOT NULL,
			break_even  INTEGER NOT NULL,
			pnl         REAL    NOT NULL,
			reason      TEXT,
			opened_at   DATETIME NOT NULL,
			closed_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_settlements_instrument ON settlements(instrument);
		CREATE INDEX IF NOT EXISTS idx_settlements_closed_at ON settlements(closed_at);
	`)
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func load(ctx context.Context, q querier) (*model.Account, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM account_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewAccount(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load: %w", err)
	}
	return store.Decode([]byte(data))
}

func save(ctx context.Context, q querier, acct *model.Account) error {
	data, err := store.Encode(acct)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO account_state (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite store: save: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(ctx, s.db)
}

func (s *Store) Save(ctx context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s.db, acct)
}

// Update reads, applies and writes the account inside one transaction.
func (s *Store) Update(ctx context.Context, fn func(*model.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer tx.Rollback()

	acct, err := load(ctx, tx)
	if err != nil {
		return err
	}
	next, err := store.Apply(acct, fn)
	if err != nil {
		return err
	}
	if err := save(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordSettlement appends a closed position to the journal.
func (s *Store) RecordSettlement(ctx context.Context, pos model.Position, closedAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (instrument, direction, entry, leverage, exposure, break_even, pnl, reason, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.Instrument,
		string(pos.Direction),
		pos.Entry,
		pos.Leverage,
		pos.Exposure,
		pos.BreakEven,
		pos.RealizedPnL,
		reason,
		pos.EntryTime.UTC().Format(time.RFC3339),
		closedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite journal: insert: %w", err)
	}
	return nil
}

// Settlements returns the last N settlements, newest first.
func (s *Store) Settlements(ctx context.Context, limit int) ([]model.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instrument, direction, entry, leverage, exposure, break_even, pnl, COALESCE(reason, ''), opened_at, closed_at
		 FROM settlements ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: query: %w", err)
	}
	defer rows.Close()

	var out []model.SettlementRecord
	for rows.Next() {
		var r model.SettlementRecord
		if err := rows.Scan(&r.ID, &r.Instrument, &r.Direction, &r.Entry, &r.Leverage, &r.Exposure,
			&r.BreakEven, &r.PnL, &r.Reason, &r.OpenedAt, &r.ClosedAt); err != nil {
			return nil, fmt.Errorf("sqlite journal: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
