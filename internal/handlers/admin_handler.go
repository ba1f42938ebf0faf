package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Varun5711/shortlink/internal/analytics"
	"github.com/Varun5711/shortlink/internal/logger"
	"github.com/Varun5711/shortlink/internal/service"
	"github.com/Varun5711/shortlink/internal/worker"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandler struct {
	urls    *service.URLService
	flusher *analytics.Flusher
	runner  *worker.Periodic
	deps    map[string]Pinger
	log     *logger.Logger
}

// NewAdminHandler wires the operational endpoints. runner guards manual
// flushes against the scheduled ones; deps are pinged by /health.
func NewAdminHandler(urls *service.URLService, flusher *analytics.Flusher, runner *worker.Periodic, deps map[string]Pinger, log *logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{urls: urls, flusher: flusher, runner: runner, deps: deps, log: log}
}

func (h *AdminHandler) TriggerFlush(w http.ResponseWriter, r *http.Request) {
	var result analytics.FlushResult
	err := h.runner.Do(r.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.flusher.Flush(ctx)
		return err
	})
	if errors.Is(err, worker.ErrAlreadyRunning) {
		respondError(w, http.StatusConflict, "a flush is already in progress")
		return
	}
	if err != nil {
		h.log.Error("Manual flush failed: %v", err)
		respondError(w, http.StatusInternalServerError, "flush failed")
		return
	}

	respondOK(w, http.StatusOK, map[string]interface{}{
		"processed":  result.Processed,
		"errors":     result.Errors,
		"skipped":    result.Skipped,
		"durationMs": result.Duration.Milliseconds(),
	}, "flush completed")
}

func (h *AdminHandler) AllocatorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.urls.AllocatorStats(r.Context())
	if err != nil {
		h.log.Warn("Allocator stats incomplete: %v", err)
		respondOK(w, http.StatusOK, stats, "durable counter unavailable")
		return
	}
	respondOK(w, http.StatusOK, stats, "")
}

// Health always answers 200 while the process is serving; a failing
// dependency marks the report degraded.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}
