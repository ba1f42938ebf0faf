package storage

import (
	"context"
	"errors"

	"github.com/Varun5711/shortlink/internal/models"
)

var (
	ErrDuplicateShortCode = errors.New("short code already exists")
	ErrCounterNotFound    = errors.New("counter not found")
)

// Storage is the durable record store. Lookups return (nil, nil) when the
// record does not exist.
type Storage interface {
	FindURLByShortCode(ctx context.Context, shortCode string) (*models.URL, error)
	// FindURLByOriginalURL returns the most recently created record for originalURL.
	FindURLByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error)
	CreateURL(ctx context.Context, shortCode, originalURL string) (*models.URL, error)
	// DeleteURL reports whether a record was removed.
	DeleteURL(ctx context.Context, shortCode string) (bool, error)
	// IncrementURLClickCount atomically adds delta to the click count of the
	// record with the given id and reports whether the record exists.
	IncrementURLClickCount(ctx context.Context, id int64, delta int64) (bool, error)
	ListURLs(ctx context.Context, limit, offset int) ([]*models.URL, int64, error)

	UpsertCounterIfAbsent(ctx context.Context, id string, start int64) error
	IncrementCounterAndGet(ctx context.Context, id string, delta int64) (int64, error)
	GetCounter(ctx context.Context, id string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
