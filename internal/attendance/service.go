package attendance

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attendease/internal/apperr"
	"attendease/internal/auth"
	"attendease/internal/metrics"
	"attendease/internal/model"
)

// Batch is one teacher submission: one subject, one date, many students.
// Entries maps studentId to a per-subject attended flag.
type Batch struct {
	Date        string                     `json:"date"`
	SubjectCode string                     `json:"subjectCode"`
	Entries     map[string]map[string]bool `json:"entries"`
}

// UnmarshalJSON also accepts the field names sent by the web client
// ("subject" and "data").
func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date        string                     `json:"date"`
		SubjectCode string                     `json:"subjectCode"`
		Subject     string                     `json:"subject"`
		Entries     map[string]map[string]bool `json:"entries"`
		Data        map[string]map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Date = raw.Date
	b.SubjectCode = raw.SubjectCode
	if b.SubjectCode == "" {
		b.SubjectCode = raw.Subject
	}
	b.Entries = raw.Entries
	if len(b.Entries) == 0 {
		b.Entries = raw.Data
	}
	return nil
}

// Result acknowledges a recorded batch.
type Result struct {
	Recorded int      `json:"recorded"`
	Skipped  []string `json:"skipped"`
}

// StudentOverview aggregates one student's records for the teacher view.
type StudentOverview struct {
	StudentID            string                   `json:"studentId"`
	Name                 string                   `json:"name"`
	RollNo               string                   `json:"rollNo"`
	Section              string                   `json:"section"`
	TotalClasses         int                      `json:"totalClasses"`
	ClassesAttended      int                      `json:"classesAttended"`
	AttendancePercentage float64                  `json:"attendancePercentage"`
	Details              []model.AttendanceRecord `json:"details"`
}

// DetailEntry is one dated outcome for a student in a subject.
type DetailEntry struct {
	Date   string                 `json:"date"`
	Status model.AttendanceStatus `json:"status"`
}

// Service is the attendance ledger.
type Service struct {
	store    Store
	subjects SubjectFinder
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates a ledger over store, validating subjects with subjects.
func NewService(store Store, subjects SubjectFinder, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{store: store, subjects: subjects, metrics: m, log: log, now: time.Now}
}

// Record applies a batch. Validation runs before any write, in this order:
// caller role, entries present, subject known, date parseable. Students whose
// entry has no flag for the batch subject are skipped. All writes for the
// batch happen in one unit of work, so a failure for any student leaves no
// student updated.
func (s *Service) Record(ctx context.Context, batch Batch, actor auth.Principal) (Result, error) {
	if !actor.IsTeacher() {
		return Result{}, apperr.Forbidden("only teachers can record attendance")
	}
	if len(batch.Entries) == 0 {
		return Result{}, apperr.Validation("no data provided")
	}
	code := strings.TrimSpace(batch.SubjectCode)
	subject, err := s.subjects.FindByCode(ctx, code)
	if err != nil {
		return Result{}, apperr.Store(err)
	}
	if subject == nil {
		return Result{}, apperr.NotFound("subject not found")
	}
	date, err := ParseDate(batch.Date)
	if err != nil {
		return Result{}, err
	}

	type mark struct {
		studentID string
		attended  bool
	}
	var marks []mark
	res := Result{Skipped: []string{}}
	for studentID, subjects := range batch.Entries {
		attended, ok := subjects[subject.Code]
		if !ok {
			res.Skipped = append(res.Skipped, studentID)
			continue
		}
		marks = append(marks, mark{studentID: studentID, attended: attended})
	}
	// A fixed lock order keeps concurrent batches from deadlocking.
	sort.Slice(marks, func(i, j int) bool { return marks[i].studentID < marks[j].studentID })
	sort.Strings(res.Skipped)

	ref := model.SubjectRef{Name: subject.Name, Code: subject.Code}
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		for _, m := range marks {
			if err := s.apply(ctx, tx, m.studentID, ref, date, m.attended); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveBatch("failed", 0)
		s.log.Error().Err(err).Str("subject", subject.Code).Str("date", batch.Date).Msg("attendance batch failed")
		return Result{}, apperr.Store(err)
	}

	res.Recorded = len(marks)
	s.metrics.ObserveBatch("ok", res.Recorded)
	s.log.Info().
		Str("subject", subject.Code).
		Str("date", date.Format(model.DateLayout)).
		Str("teacher", actor.UserID).
		Int("recorded", res.Recorded).
		Int("skipped", len(res.Skipped)).
		Msg("attendance recorded")
	return res, nil
}

func (s *Service) apply(ctx context.Context, tx Tx, studentID string, subject model.SubjectRef, date time.Time, attended bool) error {
	summary, err := tx.LockSummary(ctx, studentID)
	if err != nil {
		return err
	}
	if summary == nil {
		return apperr.NotFound("user not found: %s", studentID)
	}

	now := s.now().UTC()
	rec, err := tx.FindRecord(ctx, studentID, subject.Code, date)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &model.AttendanceRecord{
			ID:        uuid.NewString(),
			StudentID: studentID,
			Subject:   subject,
			Date:      date,
			CreatedAt: now,
			UpdatedAt: now,
		}
		rec.Apply(attended)
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
	} else {
		rec.Apply(attended)
		rec.UpdatedAt = now
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
	}

	summary.Apply(attended)
	return tx.SaveSummary(ctx, studentID, *summary)
}

// Overview groups every record by student for the teacher dashboard.
func (s *Service) Overview(ctx context.Context, actor auth.Principal) ([]StudentOverview, error) {
	if !actor.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can view the overview")
	}
	rows, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return groupByStudent(rows), nil
}

func groupByStudent(rows []StudentRecord) []StudentOverview {
	byStudent := make(map[string]*StudentOverview)
	for _, row := range rows {
		ov, ok := byStudent[row.StudentID]
		if !ok {
			ov = &StudentOverview{
				StudentID: row.StudentID,
				Name:      row.Name,
				RollNo:    row.RollNo,
				Section:   row.Section,
				Details:   []model.AttendanceRecord{},
			}
			byStudent[row.StudentID] = ov
		}
		ov.TotalClasses++
		if row.Status == model.StatusPresent {
			ov.ClassesAttended++
		}
		ov.Details = append(ov.Details, row.AttendanceRecord)
	}

	out := make([]StudentOverview, 0, len(byStudent))
	for _, ov := range byStudent {
		ov.AttendancePercentage = model.Percentage(ov.ClassesAttended, ov.TotalClasses)
		out = append(out, *ov)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RollNo != out[j].RollNo {
			return out[i].RollNo < out[j].RollNo
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// StudentDetail returns dated outcomes for one student in one subject,
// newest first.
func (s *Service) StudentDetail(ctx context.Context, actor auth.Principal, studentID, subjectCode string) ([]DetailEntry, error) {
	if studentID == "" {
		studentID = actor.UserID
	}
	if !actor.CanAccess(studentID) {
		return nil, apperr.Forbidden("cannot view another student's attendance")
	}
	if strings.TrimSpace(subjectCode) == "" {
		return nil, apperr.Validation("subjectCode is required")
	}
	recs, err := s.store.ListByStudent(ctx, studentID, subjectCode)
	if err != nil {
		return nil, apperr.Store(err)
	}
	out := make([]DetailEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, DetailEntry{Date: r.Date.Format(model.DateLayout), Status: r.Status})
	}
	return out, nil
}

// ListRecords returns all of a student's records, newest first.
func (s *Service) ListRecords(ctx context.Context, actor auth.Principal, studentID string) ([]model.AttendanceRecord, error) {
	if studentID == "" {
		studentID = actor.UserID
	}
	if !actor.CanAccess(studentID) {
		return nil, apperr.Forbidden("cannot view another student's attendance")
	}
	recs, err := s.store.ListByStudent(ctx, studentID, "")
	if err != nil {
		return nil, apperr.Store(err)
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	return recs, nil
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp and returns
// midnight UTC of the calendar day it names.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Validation("date is required")
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, apperr.Validation("invalid date %q", s)
		}
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
