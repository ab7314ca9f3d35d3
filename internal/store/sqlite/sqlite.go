// Package sqlite is the SQLite-backed ContentStore.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/retry"
	"github.com/tatianab/roguellm/internal/store"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store implements store.ContentStore on a single SQLite file.
type Store struct {
	db     *sql.DB
	path   string
	policy retry.Policy

	mu       sync.RWMutex
	notifier store.Notifier
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, path: path, policy: retry.Storage}, nil
}

// SetNotifier registers a callback for successful writes.
func (s *Store) SetNotifier(n store.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) PutDefinitions(ctx context.Context, defs *models.DefinitionSet) (bool, error) {
	if defs.Hash == "" {
		return false, fmt.Errorf("definitions: missing content hash")
	}
	cols := make([][]byte, 4)
	for i, v := range []any{defs.Players, defs.Items, defs.Enemies, defs.CellTypes} {
		b, err := json.Marshal(v)
		if err != nil {
			return false, fmt.Errorf("encode definitions: %w", err)
		}
		cols[i] = b
	}
	return s.insert(ctx, `INSERT OR IGNORE INTO theme_definitions
		(hash, theme, expanded_theme, language, player_defs, item_defs, enemy_defs, celltype_defs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		defs.Hash, defs.Theme, defs.ExpandedTheme, defs.Language,
		string(cols[0]), string(cols[1]), string(cols[2]), string(cols[3]),
		time.Now().UTC().UnixMilli(),
	)
}

func (s *Store) GetDefinitions(ctx context.Context, hash string) (*models.DefinitionSet, error) {
	var (
		defs                                models.DefinitionSet
		players, items, enemies, cellTypes string
	)
	row := s.db.QueryRowContext(ctx, `SELECT hash, theme, expanded_theme, language,
		player_defs, item_defs, enemy_defs, celltype_defs
		FROM theme_definitions WHERE hash = ?`, hash)
	if err := row.Scan(&defs.Hash, &defs.Theme, &defs.ExpandedTheme, &defs.Language,
		&players, &items, &enemies, &cellTypes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get definitions %s: %w", hash, err)
	}
	for _, c := range []struct {
		raw string
		dst any
	}{
		{players, &defs.Players},
		{items, &defs.Items},
		{enemies, &defs.Enemies},
		{cellTypes, &defs.CellTypes},
	} {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return nil, fmt.Errorf("decode definitions %s: %w", hash, err)
		}
	}
	return &defs, nil
}

func (s *Store) PutAlias(ctx context.Context, aliasKey, hash string) (bool, error) {
	return s.insert(ctx, `INSERT OR IGNORE INTO theme_aliases (alias_key, hash, created_at) VALUES (?, ?, ?)`,
		aliasKey, hash, time.Now().UTC().UnixMilli())
}

func (s *Store) GetAlias(ctx context.Context, aliasKey string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM theme_aliases WHERE alias_key = ?`, aliasKey).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get alias: %w", err)
	}
	return hash, nil
}

func (s *Store) PutInstance(ctx context.Context, inst *models.Instance) (bool, error) {
	if inst.Hash == "" {
		return false, fmt.Errorf("instance: missing content hash")
	}
	cells, err := json.Marshal(inst.Map.Cells)
	if err != nil {
		return false, fmt.Errorf("encode instance map: %w", err)
	}
	placements, err := json.Marshal(inst.Placements)
	if err != nil {
		return false, fmt.Errorf("encode instance placements: %w", err)
	}
	return s.insert(ctx, `INSERT OR IGNORE INTO world_instances
		(hash, width, height, map_cells, placements, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		inst.Hash, inst.Map.Width, inst.Map.Height, string(cells), string(placements),
		time.Now().UTC().UnixMilli(),
	)
}

func (s *Store) GetInstance(ctx context.Context, hash string) (*models.Instance, error) {
	inst := models.Instance{Hash: hash}
	var cells, placements string
	err := s.db.QueryRowContext(ctx, `SELECT width, height, map_cells, placements
		FROM world_instances WHERE hash = ?`, hash).
		Scan(&inst.Map.Width, &inst.Map.Height, &cells, &placements)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", hash, err)
	}
	if err := json.Unmarshal([]byte(cells), &inst.Map.Cells); err != nil {
		return nil, fmt.Errorf("decode instance map %s: %w", hash, err)
	}
	if err := json.Unmarshal([]byte(placements), &inst.Placements); err != nil {
		return nil, fmt.Errorf("decode instance placements %s: %w", hash, err)
	}
	return &inst, nil
}

// Snapshot writes a consistent copy of the database to dst.
func (s *Store) Snapshot(ctx context.Context, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}
	_, err := retry.Do(ctx, s.policy, isBusy, func(ctx context.Context) (struct{}, error) {
		_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

// insert runs a single INSERT OR IGNORE, retrying while the database is
// locked, and reports whether a row was written.
func (s *Store) insert(ctx context.Context, query string, args ...any) (bool, error) {
	n, err := retry.Do(ctx, s.policy, isBusy, func(ctx context.Context) (int64, error) {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}, retry.WithNotify(func(err error, next time.Duration) {
		log.Printf("store: database busy, retrying in %s: %v", next, err)
	}))
	if err != nil {
		return false, fmt.Errorf("write record: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	s.mu.RLock()
	notifier := s.notifier
	s.mu.RUnlock()
	if notifier != nil {
		notifier.Notify()
	}
	return true, nil
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
