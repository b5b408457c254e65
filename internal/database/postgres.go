package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"physioheal/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts the pgx query interface for testing.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the Postgres implementation of the submission store.
type PostgresStore struct {
	db  Querier
	now func() time.Time
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres connects a pgx pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		service TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL,
		service TEXT NOT NULL,
		date DATE NOT NULL,
		time_slot TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
}

// EnsureSchema creates the submission tables if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveBooking(ctx context.Context, b *models.Booking) error {
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	createdAt := s.now().UTC()

	err := s.db.QueryRow(ctx, `
		INSERT INTO bookings (session_id, first_name, last_name, email, phone, service, date, time_slot, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		b.SessionID, b.FirstName, b.LastName, b.Email, b.Phone,
		b.Service, b.Date, b.TimeSlot, b.Message, b.Status, createdAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("postgres: save booking: %w", err)
	}
	b.CreatedAt = createdAt
	return nil
}

func (s *PostgresStore) SaveContact(ctx context.Context, m *models.ContactMessage) error {
	createdAt := s.now().UTC()

	err := s.db.QueryRow(ctx, `
		INSERT INTO contacts (name, email, phone, service, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		m.Name, m.Email, m.Phone, m.Service, m.Message, createdAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("postgres: save contact: %w", err)
	}
	m.CreatedAt = createdAt
	return nil
}

func (s *PostgresStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get booking: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus меняет статус записи (используется администратором)
func (s *PostgresStore) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.db.Exec(ctx, `UPDATE bookings SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("postgres: update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id int64) (*models.ContactMessage, error) {
	row := s.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	m, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get contact: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListBookings(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY date, created_at`,
		start.Format(models.DateLayout), end.Format(models.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListContacts(ctx context.Context, start, end time.Time) ([]*models.ContactMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contacts: %w", err)
	}
	defer rows.Close()

	var out []*models.ContactMessage
	for rows.Next() {
		m, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contact: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
