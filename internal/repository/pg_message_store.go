package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/missedmail/internal/domain"
)

type pgMessageStore struct {
	pool *pgxpool.Pool
}

// NewPgMessageStore returns a MessageStore backed by PostgreSQL.
func NewPgMessageStore(pool *pgxpool.Pool) MessageStore {
	return &pgMessageStore{pool: pool}
}

func (r *pgMessageStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email, is_active
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.FullName, &u.Email, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *pgMessageStore) GetMessageForUser(ctx context.Context, userID, messageID int64) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT m.id, m.recipient_type, m.stream_id, COALESCE(s.name, ''), m.topic,
		       m.content, m.deleted, m.sent_at, um.read,
		       u.id, u.full_name, u.email, u.is_active
		FROM user_messages um
		JOIN messages m ON m.id = um.message_id
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN streams s ON s.id = m.stream_id
		WHERE um.user_id = $1 AND um.message_id = $2`, userID, messageID)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	if m.RecipientType != domain.RecipientStream {
		if m.Participants, err = r.participants(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (r *pgMessageStore) TopicContext(ctx context.Context, userID, streamID int64, topic string, beforeID int64, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.recipient_type, m.stream_id, COALESCE(s.name, ''), m.topic,
		       m.content, m.deleted, m.sent_at, um.read,
		       u.id, u.full_name, u.email, u.is_active
		FROM user_messages um
		JOIN messages m ON m.id = um.message_id
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN streams s ON s.id = m.stream_id
		WHERE um.user_id = $1
		  AND m.stream_id = $2
		  AND lower(m.topic) = lower($3)
		  AND m.id < $4
		  AND NOT m.deleted
		  AND btrim(m.content) <> ''
		ORDER BY m.id DESC
		LIMIT $5`, userID, streamID, topic, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("topic context: %w", err)
	}
	defer rows.Close()

	var result []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; callers want reading order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// participants lists every user a private message was delivered to.
func (r *pgMessageStore) participants(ctx context.Context, messageID int64) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.full_name, u.email, u.is_active
		FROM user_messages um
		JOIN users u ON u.id = um.user_id
		WHERE um.message_id = $1
		ORDER BY u.id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("message participants: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.IsActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// scanMessage reads a single message row from any pgx row type.
func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m        domain.Message
		streamID *int64
	)
	err := row.Scan(
		&m.ID, &m.RecipientType, &streamID, &m.StreamName, &m.Topic,
		&m.Content, &m.Deleted, &m.SentAt, &m.Read,
		&m.Sender.ID, &m.Sender.FullName, &m.Sender.Email, &m.Sender.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if streamID != nil {
		m.StreamID = *streamID
	}
	return &m, nil
}
