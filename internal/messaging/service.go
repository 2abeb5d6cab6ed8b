package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"wardstock/m/domain"
)

// cancelWindow is how long a sender may retract a message after sending it.
const cancelWindow = 5 * time.Minute

// Service handles inter-department communications.
type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Send stores a message from the caller's department. Priority defaults to
// normal. Returns the new message id.
func (s *Service) Send(ctx context.Context, fromDepartment, toDepartment, message, priority string) (int64, error) {
	message = strings.TrimSpace(message)
	toDepartment = strings.TrimSpace(toDepartment)
	if message == "" || toDepartment == "" || toDepartment == fromDepartment {
		return 0, domain.ErrInvalidRequest
	}
	switch priority {
	case domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh:
	case "":
		priority = domain.PriorityNormal
	default:
		return 0, domain.ErrInvalidRequest
	}

	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO communications (from_department, to_department, message, priority, status, is_read, created_at)
         VALUES ($1, $2, $3, $4, $5, 0, $6) RETURNING id`,
		fromDepartment, toDepartment, message, priority, domain.MessageStatusSent,
		time.Now().UTC().Format("2006-01-02 15:04:05")).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// Recent returns the latest messages sent to or from the department.
func (s *Service) Recent(ctx context.Context, department string) ([]domain.Message, error) {
	messages := []domain.Message{}
	err := s.db.SelectContext(ctx, &messages,
		`SELECT id, from_department, to_department, message, priority, status, is_read, created_at
         FROM communications
         WHERE to_department = $1 OR from_department = $1
         ORDER BY created_at DESC, id DESC LIMIT 10`, department)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// MarkRead flags a message as read by its receiver and updates the
// sender-visible status.
func (s *Service) MarkRead(ctx context.Context, messageID int64, department string) error {
	var toDepartment string
	err := s.db.GetContext(ctx, &toDepartment,
		`SELECT to_department FROM communications WHERE id = $1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	if toDepartment != department {
		return domain.ErrForbidden
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE communications SET is_read = 1, status = $1 WHERE id = $2`,
		domain.MessageStatusRead, messageID)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// Cancel deletes a message the caller sent within the last five minutes.
func (s *Service) Cancel(ctx context.Context, messageID int64, department string) error {
	var msg domain.Message
	err := s.db.GetContext(ctx, &msg,
		`SELECT id, from_department, to_department, message, priority, status, is_read, created_at
         FROM communications WHERE id = $1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	if msg.FromDepartment != department {
		return domain.ErrForbidden
	}

	sentAt, err := time.Parse("2006-01-02 15:04:05", msg.CreatedAt)
	if err != nil || time.Since(sentAt.UTC()) > cancelWindow {
		return domain.ErrInvalidRequest
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM communications WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
