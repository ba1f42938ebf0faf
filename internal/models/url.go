package models

import "time"

type URL struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"shortCode"`
	OriginalURL string    `json:"originalUrl"`
	ClickCount  int64     `json:"clickCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreateURLRequest struct {
	OriginalURL string `json:"originalUrl"`
}

type CreateURLResponse struct {
	ShortCode   string    `json:"shortCode"`
	ShortURL    string    `json:"shortUrl"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

type URLStats struct {
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
	// ClickCount is the durable count as of the last flush.
	ClickCount    int64     `json:"clickCount"`
	PendingClicks int64     `json:"pendingClicks"`
	TotalClicks   int64     `json:"totalClicks"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ListURLsResponse struct {
	URLs    []URL `json:"urls"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type RateLimitErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
}
