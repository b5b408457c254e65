package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"physioheal/internal/models"
)

const contactColumns = `id, name, email, phone, service, message, created_at`

// SaveContact сохраняет сообщение формы обратной связи
func (db *DB) SaveContact(ctx context.Context, msg *models.ContactMessage) error {
	createdAt := time.Now().UTC()

	result, err := db.ExecContext(ctx, `
        INSERT INTO contacts (name, email, phone, service, message, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		msg.Name, msg.Email, msg.Phone, msg.Service, msg.Message, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

func (db *DB) GetContact(ctx context.Context, id int64) (*models.ContactMessage, error) {
	row := db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)

	msg, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListContacts возвращает сообщения, полученные в диапазоне [start, end)
func (db *DB) ListContacts(ctx context.Context, start, end time.Time) ([]*models.ContactMessage, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT `+contactColumns+`
        FROM contacts
        WHERE created_at >= ? AND created_at < ?
        ORDER BY created_at`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.ContactMessage
	for rows.Next() {
		msg, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, msg)
	}
	return contacts, rows.Err()
}

func scanContact(s scanner) (*models.ContactMessage, error) {
	var m models.ContactMessage
	if err := s.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Service, &m.Message, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
