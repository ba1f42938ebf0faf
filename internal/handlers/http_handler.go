package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Varun5711/shortlink/internal/idgen"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/middleware"
	"github.com/Varun5711/shortlink/internal/models"
	"github.com/Varun5711/shortlink/internal/qrcode"
	"github.com/Varun5711/shortlink/internal/ratelimit"
	"github.com/Varun5711/shortlink/internal/service"
	"github.com/Varun5711/shortlink/internal/validation"
)

const maxBodyBytes = 1 << 20

// HTTPHandler serves the JSON API under /api.
type HTTPHandler struct {
	urls    *service.URLService
	limiter *ratelimit.SlidingWindow
	log     *logger.Logger
}

func NewHTTPHandler(urls *service.URLService, limiter *ratelimit.SlidingWindow, log *logger.Logger) *HTTPHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPHandler{urls: urls, limiter: limiter, log: log}
}

func (h *HTTPHandler) CreateURL(w http.ResponseWriter, r *http.Request) {
	var req models.CreateURLRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, created, err := h.urls.Shorten(r.Context(), req.OriginalURL)
	switch {
	case err == nil:
	case isValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, idgen.ErrAllocatorUnavailable):
		h.log.Error("Shorten failed, allocator unavailable: %v", err)
		respondError(w, http.StatusServiceUnavailable, "short code service temporarily unavailable")
		return
	default:
		h.log.Error("Shorten failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create short URL")
		return
	}

	message := "URL shortened successfully"
	if !created {
		message = "Existing short URL returned"
	}
	respondOK(w, http.StatusCreated, resp, message)
}

func (h *HTTPHandler) ListURLs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	resp, err := h.urls.List(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("List failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list URLs")
		return
	}
	respondOK(w, http.StatusOK, resp, "")
}

func (h *HTTPHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.urls.Stats(r.Context(), r.PathValue("shortCode"))
	if err != nil {
		h.serviceError(w, "stats", err)
		return
	}
	respondOK(w, http.StatusOK, stats, "URL stats fetched")
}

func (h *HTTPHandler) DeleteURL(w http.ResponseWriter, r *http.Request) {
	if err := h.urls.Delete(r.Context(), r.PathValue("shortCode")); err != nil {
		h.serviceError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetQRCode renders the short URL as a PNG, or as a data URI inside the
// usual envelope when format=datauri.
func (h *HTTPHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("shortCode")
	if _, err := h.urls.Stats(r.Context(), code); err != nil {
		h.serviceError(w, "qr", err)
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	target := h.urls.ShortURL(code)

	if r.URL.Query().Get("format") == "datauri" {
		uri, err := qrcode.DataURI(target, size)
		if err != nil {
			h.log.Error("QR generation failed for %s: %v", code, err)
			respondError(w, http.StatusInternalServerError, "failed to generate QR code")
			return
		}
		respondOK(w, http.StatusOK, map[string]string{"shortUrl": target, "qrCode": uri}, "")
		return
	}

	png, err := qrcode.PNG(target, size)
	if err != nil {
		h.log.Error("QR generation failed for %s: %v", code, err)
		respondError(w, http.StatusInternalServerError, "failed to generate QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// RateLimitStatus reports the caller's window occupancy for one prefix.
func (h *HTTPHandler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = ratelimit.DefaultKeyPrefix
	}
	status := h.limiter.Status(r.Context(), middleware.ClientIP(r), prefix)
	respondOK(w, http.StatusOK, status, "")
}

func (h *HTTPHandler) serviceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, service.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Short URL not found")
		return
	}
	h.log.Error("%s failed: %v", op, err)
	respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to %s URL", op))
}

func isValidationError(err error) bool {
	return errors.Is(err, validation.ErrInvalidURL) ||
		errors.Is(err, validation.ErrURLTooLong) ||
		errors.Is(err, validation.ErrURLScheme) ||
		errors.Is(err, validation.ErrURLPrivateHost)
}
