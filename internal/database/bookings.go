package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"physioheal/internal/models"
)

const bookingColumns = `id, session_id, first_name, last_name, email, phone, service, date, time_slot, message, status, created_at`

// SaveBooking сохраняет подтверждённую запись и заполняет ID и CreatedAt
func (db *DB) SaveBooking(ctx context.Context, booking *models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	createdAt := time.Now().UTC()

	result, err := db.ExecContext(ctx, `
        INSERT INTO bookings (session_id, first_name, last_name, email, phone, service, date, time_slot, message, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.SessionID,
		booking.FirstName,
		booking.LastName,
		booking.Email,
		booking.Phone,
		booking.Service,
		booking.Date.Format(models.DateLayout),
		booking.TimeSlot,
		booking.Message,
		booking.Status,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = createdAt
	return nil
}

// GetBooking возвращает запись по ID
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)

	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings возвращает записи с датой приёма в диапазоне [start, end]
func (db *DB) ListBookings(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT `+bookingColumns+`
        FROM bookings
        WHERE date(date) BETWEEN date(?) AND date(?)
        ORDER BY date, created_at`,
		start.Format(models.DateLayout),
		end.Format(models.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

// UpdateBookingStatus меняет статус записи (используется администратором)
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	result, err := db.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (*models.Booking, error) {
	var b models.Booking
	err := s.Scan(
		&b.ID,
		&b.SessionID,
		&b.FirstName,
		&b.LastName,
		&b.Email,
		&b.Phone,
		&b.Service,
		&b.Date,
		&b.TimeSlot,
		&b.Message,
		&b.Status,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
