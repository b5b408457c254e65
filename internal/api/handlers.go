package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"physioheal/internal/models"
	"physioheal/internal/service"
	"physioheal/internal/wizard"

	"github.com/go-chi/chi/v5"
)

const (
	formIDHeader = "X-Form-Id"
	maxBodyBytes = 64 << 10
)

// sessionResponse is the booking modal as the client renders it.
type sessionResponse struct {
	SessionID     string                `json:"session_id"`
	Step          string                `json:"step"`
	StepNumber    int                   `json:"step_number"`
	Open          bool                  `json:"open"`
	Submitting    bool                  `json:"submitting"`
	Form          models.BookingForm    `json:"form"`
	BookingID     int64                 `json:"booking_id,omitempty"`
	Summary       *wizard.Summary       `json:"summary,omitempty"`
	Notifications []wizard.Notification `json:"notifications"`
}

func newSessionResponse(res *service.Result) sessionResponse {
	st := res.State
	out := sessionResponse{
		SessionID:     st.SessionID,
		Step:          st.Step,
		StepNumber:    st.StepNumber(),
		Open:          st.Open,
		Submitting:    st.Submitting,
		Form:          st.Form,
		BookingID:     st.BookingID,
		Notifications: res.Notifications,
	}
	if st.Step == models.StepConfirmation {
		summary := wizard.Summarize(st.Form)
		out.Summary = &summary
	}
	if out.Notifications == nil {
		out.Notifications = []wizard.Notification{}
	}
	return out
}

type errorResponse struct {
	Error         string                `json:"error"`
	Fields        []wizard.FieldError   `json:"fields,omitempty"`
	Notifications []wizard.Notification `json:"notifications"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.svc.Catalog.Services()})
}

func (s *HTTPServer) handleClinic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Catalog.Clinic())
}

func (s *HTTPServer) handleBookingOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Catalog.BookingOptions(s.now()))
}

func (s *HTTPServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Booking.Open(r.Context())
	if err != nil {
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(res))
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Booking.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(res))
}

func (s *HTTPServer) handleSetFields(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return
	}

	res, err := s.svc.Booking.Set(r.Context(), chi.URLParam(r, "id"), body.Fields)
	if err != nil {
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(res))
}

func (s *HTTPServer) handleNext(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Booking.Next(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(res))
}

func (s *HTTPServer) handleBack(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Booking.Back(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(res))
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Booking.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrSubmissionFailed) && res != nil {
			writeJSON(w, http.StatusBadGateway, newSessionResponse(res))
			return
		}
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(res))
}

func (s *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Booking.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeFormError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type contactRequest struct {
	FormID string `json:"form_id"`
	models.ContactForm
}

func (s *HTTPServer) handleContact(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if !decodeBody(w, r, &body) {
		return
	}

	// Без идентификатора формы повторная отправка не блокируется
	key := strings.TrimSpace(r.Header.Get(formIDHeader))
	if key == "" {
		key = strings.TrimSpace(body.FormID)
	}

	res, err := s.svc.Contact.Submit(r.Context(), key, body.ContactForm)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionFailed) && res != nil {
			writeJSON(w, http.StatusBadGateway, res)
			return
		}
		s.writeFormError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// decodeBody reads a JSON body of at most maxBodyBytes. On failure the
// error response is already written.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeFormError maps service and wizard errors onto status codes.
func (s *HTTPServer) writeFormError(w http.ResponseWriter, err error) {
	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:         err.Error(),
			Fields:        verr.Fields,
			Notifications: verr.Notifications(),
		})
	case errors.Is(err, service.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Notifications: []wizard.Notification{}})
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, wizard.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Notifications: []wizard.Notification{}})
	case errors.Is(err, wizard.ErrInvalidDate), errors.Is(err, wizard.ErrPastDate),
		errors.Is(err, wizard.ErrUnknownService), errors.Is(err, wizard.ErrUnknownTimeSlot),
		errors.Is(err, wizard.ErrUnknownField), errors.Is(err, wizard.ErrFieldTooLong):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Notifications: []wizard.Notification{{
				Title:       "Invalid Value",
				Description: err.Error(),
				Severity:    wizard.SeverityDestructive,
			}},
		})
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
