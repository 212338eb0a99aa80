package alert

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"minewatch-server/internal/modules/sensors/types"
)

//go:embed sql/insert-attempt.sql
var insertAttemptSQL string

//go:embed sql/list-attempts.sql
var listAttemptsSQL string

// attemptedAtLayout is fixed width so that text order in SQLite is time order.
const attemptedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Attempt is one audited send, successful or not.
type Attempt struct {
	ID          string       `json:"id"`
	Site        string       `json:"site"`
	ReadingTime string       `json:"reading_timestamp"`
	Values      types.Values `json:"values"`
	OK          bool         `json:"ok"`
	Message     string       `json:"message"`
	AttemptedAt time.Time    `json:"attempted_at"`
}

type AttemptRepository interface {
	// InsertAttempt stores a; an empty ID is replaced by a new UUID.
	InsertAttempt(ctx context.Context, a Attempt) error
	// ListAttempts returns the most recent attempts first.
	ListAttempts(ctx context.Context, limit int) ([]Attempt, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) AttemptRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertAttempt(ctx context.Context, a Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ok := 0
	if a.OK {
		ok = 1
	}
	_, err := r.db.ExecContext(ctx, insertAttemptSQL,
		a.ID, a.Site, a.ReadingTime,
		a.Values.Vibration, a.Values.Temperature, a.Values.Pressure, a.Values.Humidity,
		ok, a.Message, a.AttemptedAt.UTC().Format(attemptedAtLayout))
	if err != nil {
		return fmt.Errorf("insert alert attempt: %w", err)
	}
	return nil
}

func (r *repositoryImpl) ListAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, listAttemptsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close alert attempt rows", "error", err)
		}
	}()

	out := []Attempt{}
	for rows.Next() {
		var (
			a  Attempt
			ok int
			ts string
		)
		if err := rows.Scan(&a.ID, &a.Site, &a.ReadingTime,
			&a.Values.Vibration, &a.Values.Temperature, &a.Values.Pressure, &a.Values.Humidity,
			&ok, &a.Message, &ts); err != nil {
			return nil, err
		}
		a.OK = ok != 0
		if a.AttemptedAt, err = time.Parse(attemptedAtLayout, ts); err != nil {
			return nil, fmt.Errorf("parse attempted_at %q: %w", ts, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
