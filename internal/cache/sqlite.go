package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jwebster45206/ability-forge/internal/cache/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists one player's abilities in an embedded SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// PlayerPath returns the database file for playerID under dir.
func PlayerPath(dir, playerID string) (string, error) {
	if !ValidPlayerID(playerID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlayer, playerID)
	}
	return filepath.Join(dir, playerID, "abilities.db"), nil
}

// OpenSQLite opens (creating if needed) the store at path and applies
// embedded migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	dsn := clean + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, comboKey string) (*CachedAbility, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT combo_key, ability_json, version, created_at, last_used, use_count
		   FROM abilities WHERE combo_key = ?`, comboKey)
	rec, err := scanAbility(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ability %s: %w", comboKey, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, comboKey, abilityJSON string, version int) error {
	if comboKey == "" {
		return ErrEmptyKey
	}
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO abilities (combo_key, ability_json, version, created_at, last_used, use_count)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(combo_key) DO UPDATE SET
		   ability_json = excluded.ability_json,
		   version = excluded.version,
		   last_used = excluded.last_used,
		   use_count = abilities.use_count + 1`,
		comboKey, abilityJSON, version, now, now)
	if err != nil {
		return fmt.Errorf("put ability %s: %w", comboKey, err)
	}
	return nil
}

func (s *SQLiteStore) RecordUse(ctx context.Context, comboKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE abilities SET use_count = use_count + 1, last_used = ? WHERE combo_key = ?`,
		toMillis(s.now()), comboKey)
	if err != nil {
		return fmt.Errorf("record use %s: %w", comboKey, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]CachedAbility, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT combo_key, ability_json, version, created_at, last_used, use_count
		   FROM abilities ORDER BY last_used DESC, combo_key`)
	if err != nil {
		return nil, fmt.Errorf("list abilities: %w", err)
	}
	defer rows.Close()

	var out []CachedAbility
	for rows.Next() {
		rec, err := scanAbility(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ability: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(use_count), 0) FROM abilities`).Scan(&st.Count, &st.TotalUses)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM abilities`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAbility(row rowScanner) (*CachedAbility, error) {
	var rec CachedAbility
	var created, used int64
	if err := row.Scan(&rec.ComboKey, &rec.AbilityJSON, &rec.Version, &created, &used, &rec.UseCount); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromMillis(created)
	rec.LastUsed = fromMillis(used)
	return &rec, nil
}
