package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focustimer/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// SessionRepository is the attribution log of completed focus sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) RecordSession(ctx context.Context, record model.SessionRecord) error {
	var subjectID interface{}
	if record.SubjectID != nil {
		subjectID = *record.SubjectID
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO focus_sessions (
			id, user_id, subject_id, mode, duration_seconds, completed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		subjectID,
		record.Mode,
		record.DurationSeconds,
		formatTime(record.CompletedAt),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert focus session: %w", err)
	}
	return nil
}

// List returns the most recent sessions of userID, newest first. limit is
// clamped to a sane range.
func (r *SessionRepository) List(ctx context.Context, userID string, limit int) ([]model.SessionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, subject_id, mode, duration_seconds, completed_at, created_at
		 FROM focus_sessions
		 WHERE user_id = ?
		 ORDER BY completed_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list focus sessions: %w", err)
	}
	defer rows.Close()

	records := make([]model.SessionRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanSessionRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate focus sessions: %w", err)
	}
	return records, nil
}

// TotalFocusSeconds sums the logged focus time of userID since the given time.
func (r *SessionRepository) TotalFocusSeconds(ctx context.Context, userID string, since time.Time) (int, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(
		ctx,
		`SELECT SUM(duration_seconds)
		 FROM focus_sessions
		 WHERE user_id = ? AND completed_at >= ?`,
		userID,
		formatTime(since),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum focus sessions: %w", err)
	}
	return int(total.Int64), nil
}

func scanSessionRecord(s scanner) (*model.SessionRecord, error) {
	record := model.SessionRecord{}
	var subjectID sql.NullString
	var completedAt string
	var createdAt string
	err := s.Scan(
		&record.ID,
		&record.UserID,
		&subjectID,
		&record.Mode,
		&record.DurationSeconds,
		&completedAt,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan focus session: %w", err)
	}

	if subjectID.Valid {
		value := subjectID.String
		record.SubjectID = &value
	}

	parsedCompletedAt, err := parseTime(completedAt)
	if err != nil {
		return nil, fmt.Errorf("parse focus session completed_at: %w", err)
	}
	record.CompletedAt = parsedCompletedAt

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse focus session created_at: %w", err)
	}
	record.CreatedAt = parsedCreatedAt
	return &record, nil
}
