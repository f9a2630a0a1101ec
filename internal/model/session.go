package model

import "time"

// SessionRecord attributes one naturally completed focus session to a subject.
type SessionRecord struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	SubjectID       *string     `json:"subjectId,omitempty"`
	Mode            SessionMode `json:"mode"`
	DurationSeconds int         `json:"durationSeconds"`
	CompletedAt     time.Time   `json:"completedAt"`
	CreatedAt       time.Time   `json:"createdAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
