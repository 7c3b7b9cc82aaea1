package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/export"
	"equiprent/internal/models"
	"equiprent/internal/pricing"

	"github.com/go-chi/chi/v5"
)

type createBookingRequest struct {
	EquipmentID   string     `json:"equipment_id"`
	Start         time.Time  `json:"start"`
	End           *time.Time `json:"end,omitempty"`
	Mode          string     `json:"mode"`
	Hours         int        `json:"hours,omitempty"`
	PaymentMethod string     `json:"payment_method"`
}

// toBookingRequest validates the body and derives the interval when end is omitted.
// Whether the interval fits the mode is left to the booking service.
func (req createBookingRequest) toBookingRequest(renterID string) (models.BookingRequest, error) {
	if strings.TrimSpace(req.EquipmentID) == "" {
		return models.BookingRequest{}, fmt.Errorf("equipment_id is required")
	}
	if req.Start.IsZero() {
		return models.BookingRequest{}, fmt.Errorf("start is required")
	}
	mode, err := models.ParseRentalMode(req.Mode)
	if err != nil {
		return models.BookingRequest{}, err
	}
	payment := models.PaymentCOD
	if req.PaymentMethod != "" {
		if payment, err = models.ParsePaymentMethod(req.PaymentMethod); err != nil {
			return models.BookingRequest{}, err
		}
	}

	out := models.BookingRequest{
		EquipmentID:   req.EquipmentID,
		RenterID:      renterID,
		Mode:          mode,
		Hours:         req.Hours,
		PaymentMethod: payment,
	}

	if mode == models.ModeHourly && req.End != nil && req.Hours == 0 {
		d := req.End.Sub(req.Start)
		if d > 0 && d%time.Hour == 0 {
			out.Hours = int(d / time.Hour)
		}
	}

	if req.End == nil {
		out.Interval, err = pricing.Window(mode, req.Start, out.Hours)
		return out, err
	}
	out.Interval, err = models.NewInterval(req.Start, *req.End)
	if err != nil {
		return models.BookingRequest{}, err
	}
	return out, nil
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.HasRole(models.RoleRenter) {
		s.writeError(w, r, fmt.Errorf("actor %s is not a renter: %w", actor.ID, domain.ErrForbidden))
		return
	}

	s.withIdempotency(w, r, actor, func(w http.ResponseWriter) {
		var body createBookingRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}

		req, err := body.toBookingRequest(actor.ID)
		if err != nil {
			if domain.KindOf(err) != domain.KindUnknown {
				s.writeError(w, r, err)
				return
			}
			writeBadRequest(w, err.Error())
			return
		}

		booking, err := s.svc.RequestBooking(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, booking)
	})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.GetBooking(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	target, err := models.ParseStatus(body.Status)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.transition(w, r, target)
}

func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.StatusAccepted)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, models.StatusRejected)
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, target models.Status) {
	booking, err := s.svc.Transition(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListActive(w http.ResponseWriter, r *http.Request) {
	equipmentID := chi.URLParam(r, "id")
	bookings, err := s.svc.ListActive(r.Context(), equipmentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipment_id": equipmentID, "bookings": bookings})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	equipmentID := chi.URLParam(r, "id")
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeBadRequest(w, "invalid start; expected RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeBadRequest(w, "invalid end; expected RFC3339")
		return
	}
	candidate, err := models.NewInterval(start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	available, err := s.svc.CheckAvailability(r.Context(), equipmentID, candidate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_id": equipmentID,
		"interval":     candidate,
		"available":    available,
	})
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	var (
		bookings []*models.Booking
		err      error
	)
	switch as := r.URL.Query().Get("as"); as {
	case "", "renter":
		bookings, err = s.svc.RenterBookings(r.Context(), actor.ID)
	case "owner":
		bookings, err = s.svc.OwnerBookings(r.Context(), actor.ID)
	default:
		writeBadRequest(w, fmt.Sprintf("unknown listing %q; expected renter or owner", as))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.svc.Overview(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.HasRole(models.RoleOwner) {
		s.writeError(w, r, fmt.Errorf("actor %s is not an owner: %w", actor.ID, domain.ErrForbidden))
		return
	}
	bookings, err := s.svc.OwnerBookings(r.Context(), actor.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bookings_%s.xlsx"`, time.Now().UTC().Format("2006-01-02")))
	title := fmt.Sprintf("Bookings of %s", actor.ID)
	if err := export.WriteBookings(w, title, bookings); err != nil {
		s.logger.Error().Err(err).Str("owner_id", actor.ID).Msg("export failed")
	}
}

func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		EquipmentID: q.Get("equipment_id"),
		RenterID:    q.Get("renter_id"),
		OwnerID:     q.Get("owner_id"),
	}
	for _, raw := range strings.Split(q.Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		status, err := models.ParseStatus(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	bookings, err := s.svc.AllBookings(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}
