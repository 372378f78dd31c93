package subject

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendease/internal/apperr"
	"attendease/internal/model"
)

// Repository stores the subject directory.
type Repository interface {
	Create(ctx context.Context, s *model.Subject) error
	// FindByCode returns nil when the code is unknown.
	FindByCode(ctx context.Context, code string) (*model.Subject, error)
	// List returns subjects ordered by code; an empty section matches all.
	List(ctx context.Context, section string) ([]model.Subject, error)
}

// PostgresRepository keeps subjects in Postgres, with sections as a JSONB array.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *model.Subject) error {
	sections, err := json.Marshal(nonNil(s.Sections))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subjects (code, name, sections, created_at) VALUES ($1,$2,$3,$4)
	`, s.Code, s.Name, string(sections), s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("subject %s already exists", s.Code)
	}
	return err
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*model.Subject, error) {
	row := r.db.QueryRowContext(ctx, `SELECT code, name, sections, created_at FROM subjects WHERE code = $1`, code)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) List(ctx context.Context, section string) ([]model.Subject, error) {
	query := `SELECT code, name, sections, created_at FROM subjects`
	var args []any
	if section != "" {
		query += ` WHERE sections ? $1`
		args = append(args, section)
	}
	query += ` ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Subject{}
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubject(row interface{ Scan(...any) error }) (model.Subject, error) {
	var (
		s        model.Subject
		sections []byte
	)
	if err := row.Scan(&s.Code, &s.Name, &sections, &s.CreatedAt); err != nil {
		return s, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &s.Sections); err != nil {
			return s, err
		}
	}
	s.Sections = nonNil(s.Sections)
	return s, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
