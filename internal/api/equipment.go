package api

import (
	"encoding/json"
	"net/http"

	"equiprent/internal/models"

	"github.com/go-chi/chi/v5"
)

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type updateRatesRequest struct {
	HourlyRate *models.Money `json:"hourly_rate"`
	DailyRate  *models.Money `json:"daily_rate"`
}

func (s *HTTPServer) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	e, err := s.equipment.GetEquipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *HTTPServer) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var body setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Active == nil {
		writeBadRequest(w, "active is required")
		return
	}
	e, err := s.equipment.SetActive(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), *body.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *HTTPServer) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	var body updateRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.HourlyRate == nil || body.DailyRate == nil {
		writeBadRequest(w, "hourly_rate and daily_rate are required")
		return
	}
	e, err := s.equipment.UpdateRates(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), *body.HourlyRate, *body.DailyRate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
