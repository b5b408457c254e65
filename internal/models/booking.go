package models

import "time"

// Booking is a confirmed appointment request as handed to the store.
type Booking struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Service   string    `json:"service"`
	Date      time.Time `json:"date"`
	TimeSlot  string    `json:"time_slot"`
	Message   string    `json:"message"`
	Status    string    `json:"status"` // pending, confirmed, cancelled, completed
	CreatedAt time.Time `json:"created_at"`
}

// FullName joins first and last name the way the confirmation summary shows it.
func (b *Booking) FullName() string {
	return joinName(b.FirstName, b.LastName)
}

// BookingForm holds the wizard inputs exactly as the modal collects them.
type BookingForm struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Service   string `json:"service"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Message   string `json:"message"`
}

func (f BookingForm) FullName() string {
	return joinName(f.FirstName, f.LastName)
}

func joinName(first, last string) string {
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return first + " " + last
}
