package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Varun5711/shortlink/internal/database"
	"github.com/Varun5711/shortlink/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type PostgresStorage struct {
	db      *database.DBManager
	timeout time.Duration
}

func NewPostgresStorage(db *database.DBManager) *PostgresStorage {
	return &PostgresStorage{
		db:      db,
		timeout: 5 * time.Second,
	}
}

const urlColumns = `id, short_code, original_url, click_count, created_at, updated_at`

func scanURL(row pgx.Row) (*models.URL, error) {
	var url models.URL
	err := row.Scan(
		&url.ID,
		&url.ShortCode,
		&url.OriginalURL,
		&url.ClickCount,
		&url.CreatedAt,
		&url.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &url, nil
}

func (s *PostgresStorage) FindURLByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + urlColumns + ` FROM urls WHERE short_code = $1`

	url, err := scanURL(s.db.Read().QueryRow(ctx, query, shortCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get URL: %w", err)
	}

	return url, nil
}

func (s *PostgresStorage) FindURLByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Read from the primary so a URL shortened a moment ago is found even
	// before replicas catch up.
	query := `
		SELECT ` + urlColumns + `
		FROM urls
		WHERE original_url = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	url, err := scanURL(s.db.Write().QueryRow(ctx, query, originalURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find URL by original: %w", err)
	}

	return url, nil
}

func (s *PostgresStorage) CreateURL(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO urls (short_code, original_url)
		VALUES ($1, $2)
		RETURNING ` + urlColumns

	url, err := scanURL(s.db.Write().QueryRow(ctx, query, shortCode, originalURL))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateShortCode, shortCode)
		}
		return nil, fmt.Errorf("failed to save URL: %w", err)
	}

	return url, nil
}

func (s *PostgresStorage) DeleteURL(ctx context.Context, shortCode string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmdTag, err := s.db.Write().Exec(ctx, `DELETE FROM urls WHERE short_code = $1`, shortCode)
	if err != nil {
		return false, fmt.Errorf("failed to delete URL: %w", err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) IncrementURLClickCount(ctx context.Context, id int64, delta int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE urls
		SET click_count = click_count + $2,
			updated_at = NOW()
		WHERE id = $1
	`

	cmdTag, err := s.db.Write().Exec(ctx, query, id, delta)
	if err != nil {
		return false, fmt.Errorf("failed to increment clicks: %w", err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func (s *PostgresStorage) ListURLs(ctx context.Context, limit, offset int) ([]*models.URL, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*s.timeout)
	defer cancel()

	pool := s.db.Read()

	var total int64
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM urls`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count URLs: %w", err)
	}

	query := `
		SELECT ` + urlColumns + `
		FROM urls
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list URLs: %w", err)
	}
	defer rows.Close()

	urls := make([]*models.URL, 0, limit)
	for rows.Next() {
		url, err := scanURL(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		urls = append(urls, url)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}

	return urls, total, nil
}

func (s *PostgresStorage) UpsertCounterIfAbsent(ctx context.Context, id string, start int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO counters (id, current_value)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := s.db.Write().Exec(ctx, query, id, start); err != nil {
		return fmt.Errorf("failed to init counter: %w", err)
	}
	return nil
}

func (s *PostgresStorage) IncrementCounterAndGet(ctx context.Context, id string, delta int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE counters
		SET current_value = current_value + $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING current_value
	`

	var value int64
	err := s.db.Write().QueryRow(ctx, query, id, delta).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	return value, nil
}

func (s *PostgresStorage) GetCounter(ctx context.Context, id string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var value int64
	err := s.db.Write().QueryRow(ctx, `SELECT current_value FROM counters WHERE id = $1`, id).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}

	return value, nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStorage) Close() error {
	s.db.Close()
	return nil
}
