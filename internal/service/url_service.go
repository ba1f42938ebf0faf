package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Varun5711/shortlink/internal/analytics"
	"github.com/Varun5711/shortlink/internal/cache"
	"github.com/Varun5711/shortlink/internal/idgen"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/models"
	"github.com/Varun5711/shortlink/internal/observability"
	"github.com/Varun5711/shortlink/internal/storage"
	"github.com/Varun5711/shortlink/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var ErrNotFound = errors.New("short URL not found")

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	// A duplicate code only happens if the counter was moved backwards by
	// hand; a few fresh ids are enough to step past the collision.
	maxCreateAttempts = 3

	// sharedCallTimeout bounds work done on behalf of several callers.
	sharedCallTimeout = 5 * time.Second
)

type URLService struct {
	store   storage.Storage
	alloc   *idgen.Allocator
	cache   *cache.URLCache
	clicks  *analytics.Accumulator
	baseURL string
	log     *logger.Logger
	tracer  trace.Tracer

	shortenGroup singleflight.Group
	resolveGroup singleflight.Group
}

func NewURLService(
	store storage.Storage,
	alloc *idgen.Allocator,
	urlCache *cache.URLCache,
	clicks *analytics.Accumulator,
	baseURL string,
	log *logger.Logger,
) *URLService {
	if log == nil {
		log = logger.Nop()
	}
	return &URLService{
		store:   store,
		alloc:   alloc,
		cache:   urlCache,
		clicks:  clicks,
		baseURL: baseURL,
		log:     log,
		tracer:  observability.Tracer("service"),
	}
}

func (s *URLService) ShortURL(shortCode string) string {
	return s.baseURL + "/" + shortCode
}

type shortenResult struct {
	resp    *models.CreateURLResponse
	created bool
}

// Shorten returns the short URL for rawURL, minting a new code only when no
// record for the same URL exists. created reports whether a record was made.
func (s *URLService) Shorten(ctx context.Context, rawURL string) (*models.CreateURLResponse, bool, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.Shorten")
	defer span.End()

	originalURL := validation.NormalizeURL(rawURL)
	if err := validation.ValidateURL(originalURL); err != nil {
		return nil, false, err
	}

	v, err, shared := doShared(ctx, &s.shortenGroup, originalURL, func(ctx context.Context) (interface{}, error) {
		return s.shorten(ctx, originalURL)
	})
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	if err != nil {
		recordError(span, err)
		return nil, false, err
	}

	res := v.(shortenResult)
	span.SetAttributes(
		attribute.String("short_code", res.resp.ShortCode),
		attribute.Bool("created", res.created),
	)
	return res.resp, res.created, nil
}

func (s *URLService) shorten(ctx context.Context, originalURL string) (shortenResult, error) {
	existing, err := s.store.FindURLByOriginalURL(ctx, originalURL)
	if err != nil {
		return shortenResult{}, fmt.Errorf("failed to look up existing URL: %w", err)
	}
	if existing != nil {
		s.log.Debug("Returning existing short URL %s for %s", existing.ShortCode, originalURL)
		return shortenResult{resp: s.response(existing)}, nil
	}

	var url *models.URL
	for attempt := 1; ; attempt++ {
		code, err := s.alloc.NextShortCode(ctx)
		if err != nil {
			return shortenResult{}, err
		}

		url, err = s.store.CreateURL(ctx, code, originalURL)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrDuplicateShortCode) || attempt == maxCreateAttempts {
			return shortenResult{}, fmt.Errorf("failed to save URL: %w", err)
		}
		s.log.Warn("Short code %s already taken, drawing another", code)
	}

	s.cache.Set(ctx, url.ShortCode, url.OriginalURL)
	s.log.Info("Created short URL %s for %s", url.ShortCode, originalURL)
	return shortenResult{resp: s.response(url), created: true}, nil
}

// doShared runs fn once per key for all concurrent callers. fn gets a context
// detached from the first caller, so one caller giving up does not fail the
// others; each caller still returns as soon as its own ctx is done.
func doShared(ctx context.Context, g *singleflight.Group, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error, bool) {
	ch := g.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(shared)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

// Resolve returns the original URL for a short code and records a click.
// Malformed codes are reported as not found without touching any store.
func (s *URLService) Resolve(ctx context.Context, shortCode string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.Resolve", trace.WithAttributes(attribute.String("short_code", shortCode)))
	defer span.End()

	if err := validation.ValidateShortCode(shortCode); err != nil {
		return "", ErrNotFound
	}

	if entry, found := s.cache.Get(ctx, shortCode); found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		s.clicks.Increment(ctx, shortCode)
		return entry.OriginalURL, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, _ := doShared(ctx, &s.resolveGroup, shortCode, func(ctx context.Context) (interface{}, error) {
		url, err := s.store.FindURLByShortCode(ctx, shortCode)
		if err != nil {
			return "", fmt.Errorf("failed to get URL: %w", err)
		}
		if url == nil {
			return "", ErrNotFound
		}
		s.cache.Set(ctx, shortCode, url.OriginalURL)
		return url.OriginalURL, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			recordError(span, err)
		}
		return "", err
	}

	s.clicks.Increment(ctx, shortCode)
	return v.(string), nil
}

// Delete removes the durable record first, then its cache entry and any
// unflushed clicks.
func (s *URLService) Delete(ctx context.Context, shortCode string) error {
	ctx, span := s.tracer.Start(ctx, "URLService.Delete", trace.WithAttributes(attribute.String("short_code", shortCode)))
	defer span.End()

	if err := validation.ValidateShortCode(shortCode); err != nil {
		return ErrNotFound
	}

	deleted, err := s.store.DeleteURL(ctx, shortCode)
	if err != nil {
		recordError(span, err)
		return fmt.Errorf("failed to delete URL: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	s.cache.Delete(ctx, shortCode)
	if err := s.clicks.Clear(ctx, []string{shortCode}); err != nil {
		s.log.Warn("Failed to drop pending clicks for deleted %s: %v", shortCode, err)
	}

	s.log.Info("Deleted short URL %s", shortCode)
	return nil
}

func (s *URLService) Stats(ctx context.Context, shortCode string) (*models.URLStats, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.Stats", trace.WithAttributes(attribute.String("short_code", shortCode)))
	defer span.End()

	if err := validation.ValidateShortCode(shortCode); err != nil {
		return nil, ErrNotFound
	}

	url, err := s.store.FindURLByShortCode(ctx, shortCode)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to get URL: %w", err)
	}
	if url == nil {
		return nil, ErrNotFound
	}

	pending := s.clicks.Pending(ctx, shortCode)
	return &models.URLStats{
		ShortCode:     url.ShortCode,
		OriginalURL:   url.OriginalURL,
		ClickCount:    url.ClickCount,
		PendingClicks: pending,
		TotalClicks:   url.ClickCount + pending,
		CreatedAt:     url.CreatedAt,
	}, nil
}

func (s *URLService) List(ctx context.Context, limit, offset int) (*models.ListURLsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "URLService.List")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	urls, total, err := s.store.ListURLs(ctx, limit, offset)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	out := make([]models.URL, len(urls))
	for i, u := range urls {
		out[i] = *u
	}

	return &models.ListURLsResponse{
		URLs:    out,
		Total:   total,
		HasMore: int64(offset+len(urls)) < total,
	}, nil
}

func (s *URLService) AllocatorStats(ctx context.Context) (idgen.AllocatorStats, error) {
	return s.alloc.Stats(ctx)
}

func (s *URLService) response(url *models.URL) *models.CreateURLResponse {
	return &models.CreateURLResponse{
		ShortCode:   url.ShortCode,
		ShortURL:    s.ShortURL(url.ShortCode),
		OriginalURL: url.OriginalURL,
		CreatedAt:   url.CreatedAt,
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
