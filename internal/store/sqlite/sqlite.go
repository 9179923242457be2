// Package sqlite implements the store.Store interface on an indexed
// multi-collection sqlite database. Records are JSON blobs keyed by
// (collection, id); whole-command atomicity comes from SQL
// transactions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"billbook/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and runs
// pending migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// The driver serializes access through one connection; the engine is
	// single-dispatch anyway, so contention is not a concern.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("Opened sqlite store", "path", dbPath)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&tx{sqlTx: sqlTx, ctx: ctx, readOnly: readOnly}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.Error("Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	return nil
}

type tx struct {
	sqlTx    *sql.Tx
	ctx      context.Context
	readOnly bool
}

// errReadOnly is enforced here rather than left to the driver, so View
// rejects writes identically across backends.
var errReadOnly = errors.New("write in read-only transaction")

func (t *tx) Get(collection, id string, out any) error {
	var data []byte
	err := t.sqlTx.QueryRowContext(t.ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`,
		collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *tx) Put(collection, id string, v any) error {
	if t.readOnly {
		return errReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = t.sqlTx.ExecContext(t.ctx,
		`INSERT INTO records (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data`,
		collection, id, data)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *tx) Delete(collection, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.sqlTx.ExecContext(t.ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *tx) Scan(collection string, fn func(id string, data []byte) error) error {
	rows, err := t.sqlTx.QueryContext(t.ctx,
		`SELECT id, data FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return fmt.Errorf("scan %s: %w", collection, err)
	}

	// Drain the cursor before invoking fn so callers may issue further
	// statements on the same transaction.
	type record struct {
		id   string
		data []byte
	}
	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.id, &r.data); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s row: %w", collection, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("scan %s rows: %w", collection, err)
	}
	rows.Close()

	for _, r := range records {
		if err := fn(r.id, r.data); err != nil {
			return err
		}
	}
	return nil
}
