package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"attendease/internal/model"
	"attendease/internal/store"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `r.id, r.student_id, r.subject_code, r.subject_name, r.date,
	r.attended_classes, r.total_classes, r.individual_percentage, r.status, r.created_at, r.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	var status string
	dest := []any{
		&rec.ID, &rec.StudentID, &rec.Subject.Code, &rec.Subject.Name, &rec.Date,
		&rec.AttendedClasses, &rec.TotalClasses, &rec.IndividualPercentage, &status, &rec.CreatedAt, &rec.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.Status = model.AttendanceStatus(status)
	return rec, nil
}

// RunInTx runs fn inside one Postgres transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(Tx) error) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// ListAll returns every record with the owning student's display fields.
func (r *Repository) ListAll(ctx context.Context) ([]StudentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, u.name, u.roll_no, u.section
		FROM attendance_records r
		JOIN users u ON u.id = r.student_id
		ORDER BY u.roll_no, r.student_id, r.date DESC, r.subject_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []StudentRecord
	for rows.Next() {
		var sr StudentRecord
		rec, err := scanRecord(rows, &sr.Name, &sr.RollNo, &sr.Section)
		if err != nil {
			return nil, err
		}
		sr.AttendanceRecord = rec
		res = append(res, sr)
	}
	return res, rows.Err()
}

// ListByStudent returns a student's records, newest date first.
func (r *Repository) ListByStudent(ctx context.Context, studentID, subjectCode string) ([]model.AttendanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records r WHERE r.student_id = $1`
	args := []any{studentID}
	if subjectCode != "" {
		query += ` AND r.subject_code = $2`
		args = append(args, subjectCode)
	}
	query += ` ORDER BY r.date DESC, r.subject_code`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type pgTx struct {
	tx *sql.Tx
}

// LockSummary takes a row lock on the user, which serializes every
// attendance write for that student until the transaction ends.
func (t *pgTx) LockSummary(ctx context.Context, studentID string) (*model.Summary, error) {
	var s model.Summary
	err := t.tx.QueryRowContext(ctx, `
		SELECT total_attended, total_classes, absent_classes, overall_percentage
		FROM users WHERE id = $1
		FOR UPDATE
	`, studentID).Scan(&s.TotalAttended, &s.TotalClasses, &s.AbsentClasses, &s.OverallPercentage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) SaveSummary(ctx context.Context, studentID string, s model.Summary) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET total_attended = $2, total_classes = $3, absent_classes = $4, overall_percentage = $5
		WHERE id = $1
	`, studentID, s.TotalAttended, s.TotalClasses, s.AbsentClasses, s.OverallPercentage)
	return err
}

func (t *pgTx) FindRecord(ctx context.Context, studentID, subjectCode string, date time.Time) (*model.AttendanceRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records r
		WHERE r.student_id = $1 AND r.subject_code = $2 AND r.date = $3
		FOR UPDATE
	`, studentID, subjectCode, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (t *pgTx) InsertRecord(ctx context.Context, rec *model.AttendanceRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance_records
			(id, student_id, subject_code, subject_name, date, attended_classes, total_classes,
			 individual_percentage, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, rec.ID, rec.StudentID, rec.Subject.Code, rec.Subject.Name, rec.Date, rec.AttendedClasses, rec.TotalClasses,
		rec.IndividualPercentage, string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (t *pgTx) UpdateRecord(ctx context.Context, rec *model.AttendanceRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE attendance_records
		SET attended_classes = $2, total_classes = $3, individual_percentage = $4, status = $5, updated_at = $6
		WHERE id = $1
	`, rec.ID, rec.AttendedClasses, rec.TotalClasses, rec.IndividualPercentage, string(rec.Status), rec.UpdatedAt)
	return err
}
