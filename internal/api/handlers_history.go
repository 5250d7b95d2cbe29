package api

import (
	"net/http"
	"strconv"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/types"
)

// handleGetHistory handles GET /api/history?url=...&device=...
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	targetURL := r.URL.Query().Get("url")
	if targetURL == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "url query parameter is required", nil)
		return
	}

	device := types.Device(r.URL.Query().Get("device"))
	if device == "" {
		device = types.DeviceMobile
	}
	if !device.Valid() {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "device must be 'mobile' or 'desktop'", nil)
		return
	}

	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	points, err := s.history.History(r.Context(), targetURL, device, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"url":     targetURL,
		"device":  device,
		"history": points,
		"count":   len(points),
	})
}
