package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

type Session struct {
	ID                 string
	Subject            string
	Difficulty         string
	Persona            string
	Status             string
	StartTime          time.Time
	EndTime            time.Time // zero while active
	TotalQuestions     int
	CompletedQuestions int // answers stored so far
}

type Question struct {
	ID               string
	SessionID        string
	Number           int
	Text             string
	Category         string
	Difficulty       string
	ExpectedDuration int // seconds
	CreatedAt        time.Time
}

// Answer is unique per question; saving again for the same question replaces
// the earlier transcript and scores.
type Answer struct {
	ID             string
	SessionID      string
	QuestionID     string
	QuestionNumber int
	Transcript     string
	Duration       float64 // seconds
	FillerCount    int
	Confidence     int
	Clarity        int
	Technical      int
	CreatedAt      time.Time
}

// Store persists sessions, questions and answers.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	CompleteSession(ctx context.Context, id string, end time.Time) error

	SaveQuestion(ctx context.Context, q *Question) error
	ListQuestions(ctx context.Context, sessionID string) ([]*Question, error)

	SaveAnswer(ctx context.Context, a *Answer) error
	ListAnswers(ctx context.Context, sessionID string) ([]*Answer, error)

	Close() error
}
