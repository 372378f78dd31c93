package ticket

import (
	"context"
	"database/sql"
	"errors"

	"attendease/internal/model"
)

// Repository stores tickets.
type Repository interface {
	Create(ctx context.Context, t *model.Ticket) error
	// FindByID returns nil when the ticket does not exist.
	FindByID(ctx context.Context, id string) (*model.Ticket, error)
	// List returns tickets newest first; an empty userID matches everyone.
	List(ctx context.Context, userID string) ([]model.Ticket, error)
	// SetStatus returns the updated ticket, or nil when id is unknown.
	SetStatus(ctx context.Context, id string, status model.TicketStatus) (*model.Ticket, error)
}

// PostgresRepository keeps tickets in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const ticketColumns = `id, user_id, roll_no, section, document, file_name, file_url, status, created_at`

func scanTicket(row interface{ Scan(...any) error }) (model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(&t.ID, &t.UserID, &t.RollNo, &t.Section, &t.Document, &t.FileName, &t.FileURL, &t.Status, &t.CreatedAt)
	return t, err
}

func (r *PostgresRepository) Create(ctx context.Context, t *model.Ticket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, t.ID, t.UserID, t.RollNo, t.Section, t.Document, t.FileName, t.FileURL, t.Status, t.CreatedAt)
	return err
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status model.TicketStatus) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `
		UPDATE tickets SET status = $2 WHERE id = $1
		RETURNING `+ticketColumns, id, status))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
