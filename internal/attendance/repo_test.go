package attendance_test

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendease/internal/apperr"
	"attendease/internal/attendance"
	"attendease/internal/model"
	"attendease/internal/store/memory"
)

var recordCols = []string{
	"id", "student_id", "subject_code", "subject_name", "date",
	"attended_classes", "total_classes", "individual_percentage", "status", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*attendance.Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return attendance.NewRepository(db), mock
}

func subjectsWithCS101(t *testing.T) *memory.Subjects {
	t.Helper()
	subs := memory.NewSubjects(memory.New())
	require.NoError(t, subs.Create(ctx, &model.Subject{Code: "CS101", Name: "Intro to CS"}))
	return subs
}

func TestRepositoryRecordCreatesRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := attendance.NewService(repo, subjectsWithCS101(t), nil, zerolog.Nop())
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT total_attended, total_classes, absent_classes, overall_percentage\s+FROM users WHERE id = \$1\s+FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"total_attended", "total_classes", "absent_classes", "overall_percentage"}).AddRow(3, 4, 1, 75.0))
	mock.ExpectQuery(`FROM attendance_records r\s+WHERE r.student_id = \$1 AND r.subject_code = \$2 AND r.date = \$3\s+FOR UPDATE`).
		WithArgs("s1", "CS101", date).
		WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectExec(`INSERT INTO attendance_records`).
		WithArgs(sqlmock.AnyArg(), "s1", "CS101", "Intro to CS", date, 1, 1, 100.0, "present", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users\s+SET total_attended = \$2`).
		WithArgs("s1", 4, 5, 1, 80.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := svc.Record(ctx, mark("2024-01-10", "CS101", map[string]bool{"s1": true}), teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRecordUpdatesRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := attendance.NewService(repo, subjectsWithCS101(t), nil, zerolog.Nop())
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	created := date.Add(9 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"total_attended", "total_classes", "absent_classes", "overall_percentage"}).AddRow(1, 1, 0, 100.0))
	mock.ExpectQuery(`FROM attendance_records r`).
		WithArgs("s1", "CS101", date).
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow("r1", "s1", "CS101", "Old Name", date, 1, 1, 100.0, "present", created, created))
	mock.ExpectExec(`UPDATE attendance_records`).
		WithArgs("r1", 1, 2, 50.0, "absent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users`).
		WithArgs("s1", 1, 2, 1, 50.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := svc.Record(ctx, mark("2024-01-10", "CS101", map[string]bool{"s1": false}), teacher)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRecordMissingUserRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := attendance.NewService(repo, subjectsWithCS101(t), nil, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"total_attended", "total_classes", "absent_classes", "overall_percentage"}))
	mock.ExpectRollback()

	_, err := svc.Record(ctx, mark("2024-01-10", "CS101", map[string]bool{"ghost": true}), teacher)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRecordStoreErrorRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := attendance.NewService(repo, subjectsWithCS101(t), nil, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("s1").
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := svc.Record(ctx, mark("2024-01-10", "CS101", map[string]bool{"s1": true}), teacher)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStore))
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListAll(t *testing.T) {
	repo, mock := newMockRepo(t)
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM attendance_records r\s+JOIN users u ON u.id = r.student_id`).
		WillReturnRows(sqlmock.NewRows(append(recordCols, "name", "roll_no", "section")).
			AddRow("r1", "s1", "CS101", "Intro to CS", date, 1, 1, 100.0, "present", date, date, "Asha", "R01", "A").
			AddRow("r2", "s1", "MA101", "Calculus", date, 0, 1, 0.0, "absent", date, date, "Asha", "R01", "A"))

	rows, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Asha", rows[0].Name)
	assert.Equal(t, model.StatusAbsent, rows[1].Status)
	assert.Equal(t, model.SubjectRef{Name: "Calculus", Code: "MA101"}, rows[1].Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListByStudent(t *testing.T) {
	repo, mock := newMockRepo(t)
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE r.student_id = \$1 AND r.subject_code = \$2 ORDER BY r.date DESC`).
		WithArgs("s1", "CS101").
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow("r1", "s1", "CS101", "Intro to CS", date, 2, 3, 66.6, "present", date, date))
	mock.ExpectQuery(`WHERE r.student_id = \$1 ORDER BY r.date DESC`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(recordCols))

	recs, err := repo.ListByStudent(ctx, "s1", "CS101")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].TotalClasses)

	recs, err = repo.ListByStudent(ctx, "s1", "")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
