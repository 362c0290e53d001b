package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"waitlist/internal/models"
	"waitlist/internal/service"

	"github.com/go-chi/chi/v5"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type assignRequest struct {
	TableID string `json:"table_id" validate:"required"`
}

func (s *HTTPServer) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	if err := authorize(r, restaurantID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req service.CheckInRequest
	if err := s.decode(r.Body, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req.RestaurantID = restaurantID

	booking, err := s.svc.CheckIn(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListActive(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	if err := authorize(r, restaurantID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	bookings, err := s.svc.ListActive(r.Context(), restaurantID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleListTables(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	if err := authorize(r, restaurantID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	tables, err := s.svc.ListTables(r.Context(), restaurantID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if tables == nil {
		tables = []*models.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// loadBooking fetches the booking named in the URL and checks the caller may act on it.
func (s *HTTPServer) loadBooking(r *http.Request) (*models.Booking, error) {
	booking, err := s.svc.GetBooking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		return nil, err
	}
	if err := authorize(r, booking.RestaurantID); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.loadBooking(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	booking, err := s.loadBooking(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	msgs, err := s.svc.ListMessages(r.Context(), booking.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *HTTPServer) handleAssign(w http.ResponseWriter, r *http.Request) {
	booking, err := s.loadBooking(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var req assignRequest
	if err := s.decode(r.Body, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	updated, err := s.svc.AssignTable(r.Context(), booking.ID, req.TableID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// bookingAction adapts a staff transition that only needs the booking id.
func (s *HTTPServer) bookingAction(action func(ctx context.Context, bookingID string) (*models.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		booking, err := s.loadBooking(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		updated, err := action(r.Context(), booking.ID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func (s *HTTPServer) handleReleaseTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.svc.GetTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := authorize(r, table.RestaurantID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	table, err = s.svc.ReleaseTable(r.Context(), table.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// handleInboundSMS accepts carrier webhooks (form fields From and Body).
// Replies that cannot be applied are logged and still acknowledged so the
// carrier does not retry them.
func (s *HTTPServer) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.SMS.WebhookToken; token != "" {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = r.Header.Get("X-Webhook-Token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(got)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid webhook token")
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := r.PostForm.Get("Body")
	if from == "" {
		writeError(w, http.StatusBadRequest, "From is required")
		return
	}

	booking, err := s.svc.HandleReply(r.Context(), from, body)
	switch {
	case err == nil:
		s.logger.Info().Str("booking_id", booking.ID).Str("status", string(booking.Status)).Msg("inbound sms handled")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrConflict):
		s.logger.Info().Err(err).Msg("inbound sms not applied")
	default:
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
