package api

import (
	"net/http"
	"strconv"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/errors"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/models"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/orchestrator"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/recommend"
	"github.com/gorilla/mux"
)

// SubmitTestRequest is the body of POST /api/tests
type SubmitTestRequest struct {
	URL    string `json:"url"`
	Device string `json:"device"`
	Region string `json:"region"`
}

// SubmitTestResponse is the 202 body returned on submission
type SubmitTestResponse struct {
	TestID string `json:"test_id"`
	Status string `json:"status"`
}

// handleSubmitTest handles POST /api/tests
func (s *Server) handleSubmitTest(w http.ResponseWriter, r *http.Request) {
	var req SubmitTestRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body", nil)
		return
	}

	// Region is optional over HTTP and falls back to the default probe
	// location. URL and device are never defaulted; the service rejects them.
	if req.Region == "" {
		req.Region = "us"
	}

	userID := UserIDFromContext(r.Context())
	testID, err := s.testService.Submit(r.Context(), userID, orchestrator.SubmitInput{
		URL:    req.URL,
		Device: req.Device,
		Region: req.Region,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitTestResponse{
		TestID: testID,
		Status: "queued",
	})
}

// ownedRun loads a test run scoped to the caller. Another user's run reads
// as absent, not forbidden.
func (s *Server) ownedRun(r *http.Request, testID string) (*models.TestRun, error) {
	run, err := s.testService.GetStatus(r.Context(), testID)
	if err != nil {
		return nil, err
	}
	if run.UserID != UserIDFromContext(r.Context()) {
		return nil, errors.NewNotFoundError("test run", testID)
	}
	return run, nil
}

// handleGetTest handles GET /api/tests/{id}
func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	run, err := s.ownedRun(r, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// handleListTests handles GET /api/tests
func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	userID := UserIDFromContext(r.Context())
	runs, err := s.testService.ListTests(r.Context(), userID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tests": runs,
		"count": len(runs),
	})
}

// handleGetRecommendations handles GET /api/tests/{id}/recommendations
func (s *Server) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	run, err := s.ownedRun(r, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	recs := recommend.FromRawResult(run.RawResult)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"test_id":         run.ID,
		"status":          run.Status,
		"recommendations": recs,
		"count":           len(recs),
	})
}
