package folder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// schema is applied in order; schema_version records the last applied step.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS folders (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		video_count  INTEGER NOT NULL DEFAULT 0,
		last_synced  INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS folders_name_idx ON folders(name)`,
}

// Store persists folders in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent syncs.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema_version: %w", err)
	}

	for i := version; i < len(schema); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, schema[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds a new folder. It fails with ErrExists for a duplicate ID.
func (s *Store) Insert(ctx context.Context, f Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders(id, name, video_count, last_synced, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.VideoCount, toUnixMillis(f.LastSynced), toUnixMillis(f.CreatedAt))
	if err != nil {
		var se *sqlite.Error
		// The primary code is the low byte whether or not extended codes are on.
		if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("folder %s: %w", f.ID, ErrExists)
		}
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

// Get returns one folder.
func (s *Store) Get(ctx context.Context, id string) (Folder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, video_count, last_synced, created_at
		FROM folders
		WHERE id = ?
	`, id)

	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Folder{}, fmt.Errorf("get folder: %w", err)
	}
	return f, nil
}

// List returns all folders ordered by name.
func (s *Store) List(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, video_count, last_synced, created_at
		FROM folders
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	out := []Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return out, nil
}

// UpdateSync records the result of a sync.
func (s *Store) UpdateSync(ctx context.Context, id string, videoCount int, syncedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE folders SET video_count = ?, last_synced = ? WHERE id = ?
	`, videoCount, toUnixMillis(syncedAt), id)
	if err != nil {
		return fmt.Errorf("update folder sync: %w", err)
	}
	return expectOneRow(res, id)
}

// Delete removes a folder.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(row scanner) (Folder, error) {
	var (
		f         Folder
		syncedMs  int64
		createdMs int64
	)
	if err := row.Scan(&f.ID, &f.Name, &f.VideoCount, &syncedMs, &createdMs); err != nil {
		return Folder{}, err
	}
	f.LastSynced = fromUnixMillis(syncedMs)
	f.CreatedAt = fromUnixMillis(createdMs)
	return f, nil
}

func toUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
