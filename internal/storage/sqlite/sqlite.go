package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/pylearn/internal/storage"

	_ "modernc.org/sqlite"
)

// Microsecond precision keeps lexical and chronological order aligned.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Each :memory: connection would get its own database.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, r *storage.FeedbackRecord) error {
	data, err := json.Marshal(r.Feedback)
	if err != nil {
		return fmt.Errorf("marshaling feedback: %w", err)
	}

	r.Timestamp = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (exercise_id, code, feedback, timestamp)
		VALUES (?, ?, ?, ?)`,
		r.ExerciseID, r.Code, string(data), r.Timestamp.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, exerciseID string) ([]storage.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exercise_id, code, feedback, timestamp
		FROM feedback WHERE exercise_id = ?
		ORDER BY timestamp DESC, id DESC`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	defer rows.Close()

	records := []storage.FeedbackRecord{}
	for rows.Next() {
		r, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) GetFeedback(ctx context.Context, exerciseID string, id int64) (*storage.FeedbackRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exercise_id, code, feedback, timestamp
		FROM feedback WHERE exercise_id = ? AND id = ?`, exerciseID, id)
	r, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback %d for %s: %w", id, exerciseID, storage.ErrNotFound)
	}
	return r, err
}

func (s *SQLiteStore) TrackTokens(ctx context.Context, r *storage.TokenUsageRecord) error {
	r.Timestamp = s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var endpoint any
	if r.Endpoint != "" {
		endpoint = r.Endpoint
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO token_usage (prompt_tokens, completion_tokens, total_tokens, model, endpoint, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.Model, endpoint, r.Timestamp.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting token usage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE token_totals SET
			prompt_tokens = prompt_tokens + ?,
			completion_tokens = completion_tokens + ?,
			total_tokens = total_tokens + ?,
			requests = requests + 1
		WHERE id = 1`,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("updating token totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing token usage: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteStore) TokenUsage(ctx context.Context) ([]storage.TokenUsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt_tokens, completion_tokens, total_tokens, model, endpoint, timestamp
		FROM token_usage ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing token usage: %w", err)
	}
	defer rows.Close()

	records := []storage.TokenUsageRecord{}
	for rows.Next() {
		var (
			r        storage.TokenUsageRecord
			endpoint sql.NullString
			ts       string
		)
		if err := rows.Scan(&r.ID, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&r.Model, &endpoint, &ts); err != nil {
			return nil, err
		}
		r.Endpoint = endpoint.String
		r.Timestamp, _ = time.Parse(timeFormat, ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) TokenTotals(ctx context.Context) (storage.TokenTotals, error) {
	var t storage.TokenTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT prompt_tokens, completion_tokens, total_tokens, requests
		FROM token_totals WHERE id = 1`).
		Scan(&t.PromptTokens, &t.CompletionTokens, &t.TotalTokens, &t.Requests)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TokenTotals{}, nil
	}
	if err != nil {
		return t, fmt.Errorf("reading token totals: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanFeedback(s scanner) (*storage.FeedbackRecord, error) {
	var (
		r        storage.FeedbackRecord
		data, ts string
	)
	if err := s.Scan(&r.ID, &r.ExerciseID, &r.Code, &data, &ts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &r.Feedback); err != nil {
		return nil, fmt.Errorf("unmarshaling feedback %d: %w", r.ID, err)
	}
	r.Timestamp, _ = time.Parse(timeFormat, ts)
	return &r, nil
}
