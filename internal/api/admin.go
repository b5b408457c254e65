package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"physioheal/internal/database"
	"physioheal/internal/models"
	"physioheal/internal/service"
	"physioheal/internal/wizard"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Bookings"

// parseRange reads an inclusive day range. Missing bounds default to
// DefaultListRangeDays around today.
func parseRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	today := wizard.Today(now)
	from := today.AddDate(0, 0, -models.DefaultListRangeDays)
	to := today.AddDate(0, 0, models.DefaultListRangeDays)

	var err error
	if s := strings.TrimSpace(fromStr); s != "" {
		if from, err = time.Parse(models.DateLayout, s); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q; expected YYYY-MM-DD", s)
		}
	}
	if s := strings.TrimSpace(toStr); s != "" {
		if to, err = time.Parse(models.DateLayout, s); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q; expected YYYY-MM-DD", s)
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to")
	}
	return from, to, nil
}

func (s *HTTPServer) queryRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"), s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Reader.ListBookings(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("List bookings failed")
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleAdminContacts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}
	contacts, err := s.svc.Reader.ListContacts(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error().Err(err).Msg("List contacts failed")
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	if contacts == nil {
		contacts = []*models.ContactMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Reader.ListBookings(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("List bookings failed")
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	f, err := buildBookingsWorkbook(bookings, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("Build export failed")
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("Write export failed")
	}
}

func (s *HTTPServer) handleAdminResync(w http.ResponseWriter, r *http.Request) {
	if s.svc.Resync == nil {
		writeError(w, http.StatusServiceUnavailable, "google sheets is not configured")
		return
	}
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Reader.ListBookings(r.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("List bookings failed")
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if err := s.svc.Resync.ReplaceBookingsSheet(r.Context(), bookings); err != nil {
		s.logger.Error().Err(err).Msg("Sheets resync failed")
		writeError(w, http.StatusBadGateway, "failed to rewrite bookings sheet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": len(bookings)})
}

func (s *HTTPServer) handleAdminBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Reader.GetBooking(r.Context(), id)
	if err != nil {
		s.writeRecordError(w, err, "failed to get booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAdminContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	contact, err := s.svc.Reader.GetContact(r.Context(), id)
	if err != nil {
		s.writeRecordError(w, err, "failed to get contact")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// handleAdminBookingStatus меняет статус записи: {"status": "confirmed"}
func (s *HTTPServer) handleAdminBookingStatus(w http.ResponseWriter, r *http.Request) {
	if s.svc.Admin == nil {
		writeError(w, http.StatusServiceUnavailable, "booking updates are not available")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	booking, err := s.svc.Admin.UpdateStatus(r.Context(), id, body.Status)
	if errors.Is(err, service.ErrUnknownStatus) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.writeRecordError(w, err, "failed to update booking")
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAdminFailedTasks(w http.ResponseWriter, r *http.Request) {
	if s.svc.FailedTasks == nil {
		writeError(w, http.StatusServiceUnavailable, "sync queue is not configured")
		return
	}
	tasks, err := s.svc.FailedTasks.GetFailedSyncTasks(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("List failed sync tasks failed")
		writeError(w, http.StatusInternalServerError, "failed to list sync tasks")
		return
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) writeRecordError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error().Err(err).Msg(message)
	writeError(w, http.StatusInternalServerError, message)
}

var exportHeaders = []string{
	"ID", "Created At", "First Name", "Last Name", "Email", "Phone",
	"Service", "Date", "Time", "Condition", "Status",
}

// buildBookingsWorkbook создает книгу Excel со списком записей
func buildBookingsWorkbook(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	// Заголовок периода
	_ = f.SetCellValue(exportSheet, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("January 2, 2006"), to.Format("January 2, 2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	_ = f.MergeCell(exportSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(exportSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(exportSheet, cell, h)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := []any{
			b.ID,
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.FirstName,
			b.LastName,
			b.Email,
			b.Phone,
			b.Service,
			b.Date.Format(models.DateLayout),
			b.TimeSlot,
			b.Message,
			b.Status,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", i+3, err)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 8)
	_ = f.SetColWidth(exportSheet, "B", "I", 18)
	_ = f.SetColWidth(exportSheet, "J", "J", 40)

	return f, nil
}
