package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Varun5711/shortlink/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	urls     map[string]*models.URL
	counters map[string]int64
	nextID   int64
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		urls:     make(map[string]*models.URL),
		counters: make(map[string]int64),
		now:      time.Now,
	}
}

func (s *MemoryStorage) FindURLByShortCode(_ context.Context, shortCode string) (*models.URL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	url, exists := s.urls[shortCode]
	if !exists {
		return nil, nil
	}

	cp := *url
	return &cp, nil
}

func (s *MemoryStorage) FindURLByOriginalURL(_ context.Context, originalURL string) (*models.URL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.URL
	for _, url := range s.urls {
		if url.OriginalURL != originalURL {
			continue
		}
		if latest == nil || newer(url, latest) {
			latest = url
		}
	}
	if latest == nil {
		return nil, nil
	}

	cp := *latest
	return &cp, nil
}

func (s *MemoryStorage) CreateURL(_ context.Context, shortCode, originalURL string) (*models.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.urls[shortCode]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateShortCode, shortCode)
	}

	s.nextID++
	now := s.now()
	url := &models.URL{
		ID:          s.nextID,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.urls[shortCode] = url

	cp := *url
	return &cp, nil
}

func (s *MemoryStorage) DeleteURL(_ context.Context, shortCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.urls[shortCode]; !exists {
		return false, nil
	}
	delete(s.urls, shortCode)
	return true, nil
}

func (s *MemoryStorage) IncrementURLClickCount(_ context.Context, id int64, delta int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, url := range s.urls {
		if url.ID == id {
			url.ClickCount += delta
			url.UpdatedAt = s.now()
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) ListURLs(_ context.Context, limit, offset int) ([]*models.URL, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.URL, 0, len(s.urls))
	for _, url := range s.urls {
		cp := *url
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return newer(all[i], all[j]) })

	total := int64(len(all))
	if offset >= len(all) {
		return []*models.URL{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *MemoryStorage) UpsertCounterIfAbsent(_ context.Context, id string, start int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.counters[id]; !exists {
		s.counters[id] = start
	}
	return nil
}

func (s *MemoryStorage) IncrementCounterAndGet(_ context.Context, id string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.counters[id]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id)
	}
	v += delta
	s.counters[id] = v
	return v, nil
}

func (s *MemoryStorage) GetCounter(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.counters[id]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id)
	}
	return v, nil
}

func (s *MemoryStorage) Ping(context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func newer(a, b *models.URL) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
