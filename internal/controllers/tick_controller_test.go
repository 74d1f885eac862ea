package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RealZimboGuy/leadflow/internal/models"
)

func TestTickController(t *testing.T) {
	steps := &MockTicker{Processed: 3}
	outbox := &MockTicker{Processed: 1}
	mux := http.NewServeMux()
	NewTickController(steps, outbox, nil).RegisterRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/tick", nil))
	var resp models.TickResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if w.Code != http.StatusOK || resp.Processed != 3 {
		t.Errorf("Unexpected step tick response %d %+v", w.Code, resp)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/outbox/tick", nil))
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Processed != 1 || outbox.Calls != 1 {
		t.Errorf("Unexpected outbox tick response %+v", resp)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/tick", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", w.Code)
	}

	steps.Err = errors.New("claim failed")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/api/tick", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on tick failure, got %d", w.Code)
	}
}
