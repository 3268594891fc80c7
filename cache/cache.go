// Package cache хранит результаты поиска организаций в SQLite.
// Ключ — исходное неформальное название как есть; повторный запрос
// того же названия обходится без браузера и AI.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"orgresolver/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	raw_name   TEXT PRIMARY KEY,
	found      INTEGER NOT NULL,
	result     TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resolutions_source ON resolutions(source);
`

// Store кэш результатов поиска поверх SQLite
type Store struct {
	conn *sql.DB
}

// Open открывает (и при необходимости создает) файл кэша
func Open(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite плохо переносит много одновременных соединений
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close закрывает подключение к кэшу
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get возвращает закэшированный результат. ok=false — промах.
func (s *Store) Get(ctx context.Context, rawName string) (registry.SearchResult, bool, error) {
	var payload string
	err := s.conn.QueryRowContext(ctx,
		"SELECT result FROM resolutions WHERE raw_name = ?", rawName,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return registry.SearchResult{}, false, nil
	}
	if err != nil {
		return registry.SearchResult{}, false, fmt.Errorf("failed to read cache: %w", err)
	}

	var result registry.SearchResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		// Битая запись не должна валить пакет: считаем промахом
		return registry.SearchResult{}, false, nil
	}
	return result, true, nil
}

// Put сохраняет результат, перезаписывая прежний для того же названия
func (s *Store) Put(ctx context.Context, rawName string, result registry.SearchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	found := 0
	if result.Found {
		found = 1
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO resolutions (raw_name, found, result, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(raw_name) DO UPDATE SET
			found = excluded.found,
			result = excluded.result,
			source = excluded.source,
			created_at = excluded.created_at`,
		rawName, found, string(payload), string(result.Source),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Stats число записей в кэше и сколько из них — находки
func (s *Store) Stats(ctx context.Context) (total, found int, err error) {
	err = s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(found), 0) FROM resolutions",
	).Scan(&total, &found)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return total, found, nil
}
