package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Varun5711/shortlink/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondOK(w http.ResponseWriter, status int, data interface{}, message string) {
	respondJSON(w, status, models.Envelope{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.Envelope{
		Success: false,
		Message: message,
	})
}
