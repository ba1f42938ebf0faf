package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Varun5711/shortlink/internal/models"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps everything in a single SQLite database, either a local
// file (modernc.org/sqlite) or a remote libsql endpoint. Timestamps are
// stored as unix nanoseconds so both drivers agree on ordering.
type SQLiteStorage struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS counters (
	id            TEXT PRIMARY KEY,
	current_value INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS urls (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	short_code   TEXT NOT NULL UNIQUE,
	original_url TEXT NOT NULL,
	click_count  INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_urls_original_url ON urls(original_url);
CREATE INDEX IF NOT EXISTS idx_urls_created_at ON urls(created_at);
`

func NewSQLiteStorage(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	driverName := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driverName, err)
	}

	if driverName == "sqlite" {
		// One connection serialises writers and keeps ":memory:" databases
		// from splitting across connections.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driverName, err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{
		db:      db,
		timeout: 5 * time.Second,
		now:     time.Now,
	}, nil
}

const sqliteURLColumns = `id, short_code, original_url, click_count, created_at, updated_at`

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteURL(row sqlRow) (*models.URL, error) {
	var (
		url                  models.URL
		createdAt, updatedAt int64
	)
	if err := row.Scan(&url.ID, &url.ShortCode, &url.OriginalURL, &url.ClickCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	url.CreatedAt = time.Unix(0, createdAt).UTC()
	url.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &url, nil
}

func (s *SQLiteStorage) FindURLByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteURLColumns+` FROM urls WHERE short_code = ?`, shortCode)
	url, err := scanSQLiteURL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

func (s *SQLiteStorage) FindURLByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + sqliteURLColumns + ` FROM urls WHERE original_url = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	url, err := scanSQLiteURL(s.db.QueryRowContext(ctx, query, originalURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find URL by original: %w", err)
	}
	return url, nil
}

func (s *SQLiteStorage) CreateURL(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO urls (short_code, original_url, click_count, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		shortCode, originalURL, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateShortCode, shortCode)
		}
		return nil, fmt.Errorf("failed to save URL: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	return &models.URL{
		ID:          id,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   time.Unix(0, now.UnixNano()).UTC(),
		UpdatedAt:   time.Unix(0, now.UnixNano()).UTC(),
	}, nil
}

func (s *SQLiteStorage) DeleteURL(ctx context.Context, shortCode string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM urls WHERE short_code = ?`, shortCode)
	if err != nil {
		return false, fmt.Errorf("failed to delete URL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) IncrementURLClickCount(ctx context.Context, id int64, delta int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE urls SET click_count = click_count + ?, updated_at = ? WHERE id = ?`,
		delta, s.now().UnixNano(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to increment clicks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) ListURLs(ctx context.Context, limit, offset int) ([]*models.URL, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*s.timeout)
	defer cancel()

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM urls`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count URLs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteURLColumns+` FROM urls ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list URLs: %w", err)
	}
	defer rows.Close()

	urls := make([]*models.URL, 0, limit)
	for rows.Next() {
		url, err := scanSQLiteURL(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}
	return urls, total, nil
}

func (s *SQLiteStorage) UpsertCounterIfAbsent(ctx context.Context, id string, start int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO counters (id, current_value, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, start, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to init counter: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) IncrementCounterAndGet(ctx context.Context, id string, delta int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var value int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE counters SET current_value = current_value + ?, updated_at = ? WHERE id = ? RETURNING current_value`,
		delta, s.now().UnixNano(), id,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return value, nil
}

func (s *SQLiteStorage) GetCounter(ctx context.Context, id string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT current_value FROM counters WHERE id = ?`, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return value, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
