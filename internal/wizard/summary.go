package wizard

import (
	"time"

	"physioheal/internal/models"
)

const notProvided = "Not provided"

// Summary is the read-only recap shown on the confirmation step.
type Summary struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Message string `json:"message"`
}

func Summarize(f models.BookingForm) Summary {
	s := Summary{
		Name:    f.FullName(),
		Email:   f.Email,
		Phone:   f.Phone,
		Service: f.Service,
		Date:    f.Date,
		Time:    f.Time,
		Message: f.Message,
	}
	if blank(s.Email) {
		s.Email = notProvided
	}
	if d, err := time.Parse(models.DateLayout, f.Date); err == nil {
		s.Date = d.Format("January 2, 2006")
	}
	return s
}
