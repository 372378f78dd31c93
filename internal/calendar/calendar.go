// Package calendar manages the shared event calendar.
package calendar

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"attendease/internal/apperr"
	"attendease/internal/auth"
	"attendease/internal/attendance"
	"attendease/internal/model"
)

// Repository stores events.
type Repository interface {
	Create(ctx context.Context, e *model.CalendarEvent) error
	// List returns every event ordered by date.
	List(ctx context.Context) ([]model.CalendarEvent, error)
}

// PostgresRepository keeps events in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *model.CalendarEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, title, date, description) VALUES ($1,$2,$3,$4)
	`, e.ID, e.Title, e.Date, e.Description)
	return err
}

func (r *PostgresRepository) List(ctx context.Context) ([]model.CalendarEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, date, description FROM calendar_events ORDER BY date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CalendarEvent{}
	for rows.Next() {
		var e model.CalendarEvent
		if err := rows.Scan(&e.ID, &e.Title, &e.Date, &e.Description); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateInput is the body of a new event. Date accepts the same formats as
// attendance dates.
type CreateInput struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds an event. Teachers only.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (*model.CalendarEvent, error) {
	if !actor.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can add events")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.Date) == "" {
		return nil, apperr.Validation("title and date are required")
	}
	date, err := attendance.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	e := &model.CalendarEvent{ID: uuid.NewString(), Title: title, Date: date, Description: strings.TrimSpace(in.Description)}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, apperr.Store(err)
	}
	return e, nil
}

// List returns all events by date.
func (s *Service) List(ctx context.Context) ([]model.CalendarEvent, error) {
	events, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return events, nil
}
