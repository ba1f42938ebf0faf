package handlers

import (
	"errors"
	"net/http"

	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/service"
)

type RedirectHandler struct {
	urls *service.URLService
	log  *logger.Logger
}

func NewRedirectHandler(urls *service.URLService, log *logger.Logger) *RedirectHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RedirectHandler{urls: urls, log: log}
}

func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	shortCode := r.PathValue("shortCode")

	target, err := h.urls.Resolve(r.Context(), shortCode)
	if errors.Is(err, service.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Short url not found")
		return
	}
	if err != nil {
		h.log.Error("Failed to resolve %s: %v", shortCode, err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=0, no-cache")
	http.Redirect(w, r, target, http.StatusFound)
}

// Favicon answers browsers' automatic /favicon.ico requests without touching
// the redirect path.
func (h *RedirectHandler) Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
