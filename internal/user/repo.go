package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendease/internal/apperr"
	"attendease/internal/model"
)

// Repository stores user accounts.
type Repository interface {
	Create(ctx context.Context, u *model.User) error
	// FindByID and FindByEmail return nil when no user matches.
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// List returns users ordered by roll number; an empty section matches all.
	List(ctx context.Context, section string) ([]model.User, error)
	// Update saves the editable profile fields: name, email, section.
	Update(ctx context.Context, u *model.User) error
}

// PostgresRepository persists users in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, name, email, password_hash, section, role, roll_no,
	total_attended, total_classes, absent_classes, overall_percentage, created_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Section, &u.Role, &u.RollNo,
		&u.Attendance.TotalAttended, &u.Attendance.TotalClasses, &u.Attendance.AbsentClasses,
		&u.Attendance.OverallPercentage, &u.CreatedAt)
	return u, err
}

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *PostgresRepository) Create(ctx context.Context, u *model.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, section, role, roll_no, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Section, u.Role, u.RollNo, u.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("user already exists")
	}
	return err
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) List(ctx context.Context, section string) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if section != "" {
		query += ` WHERE section = $1`
		args = append(args, section)
	}
	query += ` ORDER BY roll_no, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, u *model.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = $2, email = $3, section = $4 WHERE id = $1
	`, u.ID, u.Name, u.Email, u.Section)
	if isUniqueViolation(err) {
		return apperr.Conflict("email already in use")
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
