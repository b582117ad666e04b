package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened SQLite store")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		persona TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		total_questions INTEGER NOT NULL DEFAULT 10
	);

	CREATE TABLE IF NOT EXISTS interview_questions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question_number INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		question_category TEXT NOT NULL DEFAULT '',
		difficulty_level TEXT NOT NULL DEFAULT '',
		expected_duration INTEGER NOT NULL DEFAULT 120,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES interview_sessions(id) ON DELETE CASCADE,
		UNIQUE (session_id, question_number)
	);

	CREATE TABLE IF NOT EXISTS interview_answers (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL UNIQUE,
		question_number INTEGER NOT NULL,
		audio_transcript TEXT NOT NULL DEFAULT '',
		answer_duration REAL NOT NULL DEFAULT 0,
		filler_words_count INTEGER NOT NULL DEFAULT 0,
		confidence_score INTEGER NOT NULL DEFAULT 0,
		clarity_score INTEGER NOT NULL DEFAULT 0,
		technical_accuracy INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES interview_sessions(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES interview_questions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_session ON interview_questions(session_id);
	CREATE INDEX IF NOT EXISTS idx_answers_session ON interview_answers(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if sess.StartTime.IsZero() {
		sess.StartTime = time.Now()
	}
	if sess.Status == "" {
		sess.Status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_sessions (id, subject, difficulty, persona, status, start_time, total_questions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Subject, sess.Difficulty, sess.Persona, sess.Status, sess.StartTime, sess.TotalQuestions)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.subject, s.difficulty, s.persona, s.status, s.start_time, s.end_time, s.total_questions,
		       (SELECT COUNT(*) FROM interview_answers a WHERE a.session_id = s.id)
		FROM interview_sessions s WHERE s.id = ?
	`, id)

	var (
		sess Session
		end  sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.Subject, &sess.Difficulty, &sess.Persona, &sess.Status,
		&sess.StartTime, &end, &sess.TotalQuestions, &sess.CompletedQuestions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if end.Valid {
		sess.EndTime = end.Time
	}
	return &sess, nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, id string, end time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE interview_sessions SET status = ?, end_time = ? WHERE id = ?
	`, StatusCompleted, end, id)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveQuestion(ctx context.Context, q *Question) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_questions
			(id, session_id, question_number, question_text, question_category, difficulty_level, expected_duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.SessionID, q.Number, q.Text, q.Category, q.Difficulty, q.ExpectedDuration, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save question: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context, sessionID string) ([]*Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, question_number, question_text, question_category, difficulty_level, expected_duration, created_at
		FROM interview_questions WHERE session_id = ? ORDER BY question_number
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Number, &q.Text, &q.Category, &q.Difficulty, &q.ExpectedDuration, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveAnswer(ctx context.Context, a *Answer) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_answers
			(id, session_id, question_id, question_number, audio_transcript, answer_duration,
			 filler_words_count, confidence_score, clarity_score, technical_accuracy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(question_id) DO UPDATE SET
			audio_transcript = excluded.audio_transcript,
			answer_duration = excluded.answer_duration,
			filler_words_count = excluded.filler_words_count,
			confidence_score = excluded.confidence_score,
			clarity_score = excluded.clarity_score,
			technical_accuracy = excluded.technical_accuracy
	`, a.ID, a.SessionID, a.QuestionID, a.QuestionNumber, a.Transcript, a.Duration,
		a.FillerCount, a.Confidence, a.Clarity, a.Technical, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, sessionID string) ([]*Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, question_id, question_number, audio_transcript, answer_duration,
		       filler_words_count, confidence_score, clarity_score, technical_accuracy, created_at
		FROM interview_answers WHERE session_id = ? ORDER BY question_number
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var out []*Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.QuestionNumber, &a.Transcript, &a.Duration,
			&a.FillerCount, &a.Confidence, &a.Clarity, &a.Technical, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
