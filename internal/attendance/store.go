package attendance

import (
	"context"
	"time"

	"attendease/internal/model"
)

// Store persists attendance records and the per-student summary counters.
type Store interface {
	// RunInTx runs fn as one unit of work. Nothing fn wrote survives an error.
	RunInTx(ctx context.Context, fn func(Tx) error) error
	// ListAll returns every record joined with its student's display fields.
	ListAll(ctx context.Context) ([]StudentRecord, error)
	// ListByStudent returns a student's records, newest date first.
	// An empty subjectCode matches every subject.
	ListByStudent(ctx context.Context, studentID, subjectCode string) ([]model.AttendanceRecord, error)
}

// Tx is the write side of Store, scoped to one unit of work.
type Tx interface {
	// LockSummary locks the student's summary until the unit of work ends.
	// It returns nil when the student does not exist.
	LockSummary(ctx context.Context, studentID string) (*model.Summary, error)
	SaveSummary(ctx context.Context, studentID string, s model.Summary) error
	// FindRecord returns nil when no record exists for the key.
	FindRecord(ctx context.Context, studentID, subjectCode string, date time.Time) (*model.AttendanceRecord, error)
	InsertRecord(ctx context.Context, rec *model.AttendanceRecord) error
	UpdateRecord(ctx context.Context, rec *model.AttendanceRecord) error
}

// SubjectFinder looks up subjects by code, returning nil when unknown.
type SubjectFinder interface {
	FindByCode(ctx context.Context, code string) (*model.Subject, error)
}

// StudentRecord is a record with the owning student's display fields.
type StudentRecord struct {
	model.AttendanceRecord
	Name    string
	RollNo  string
	Section string
}
