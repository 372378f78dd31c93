// Package memory keeps every repository in process memory. It backs the
// "memory" store backend used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"attendease/internal/apperr"
	"attendease/internal/attendance"
	"attendease/internal/model"
)

type recordKey struct {
	studentID   string
	subjectCode string
	date        string
}

func keyOf(studentID, subjectCode string, date time.Time) recordKey {
	return recordKey{studentID: studentID, subjectCode: subjectCode, date: date.Format(model.DateLayout)}
}

// DB is the shared state behind the memory repositories.
type DB struct {
	mu       sync.RWMutex
	users    map[string]model.User
	subjects map[string]model.Subject
	records  map[recordKey]model.AttendanceRecord
	tickets  map[string]model.Ticket
	events   []model.CalendarEvent
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		users:    make(map[string]model.User),
		subjects: make(map[string]model.Subject),
		records:  make(map[recordKey]model.AttendanceRecord),
		tickets:  make(map[string]model.Ticket),
	}
}

// ---------- Users ----------

// Users implements user.Repository.
type Users struct{ db *DB }

// NewUsers returns the user repository over db.
func NewUsers(db *DB) *Users { return &Users{db: db} }

func (u *Users) Create(_ context.Context, usr *model.User) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	for _, existing := range u.db.users {
		if strings.EqualFold(existing.Email, usr.Email) {
			return apperr.Conflict("user already exists")
		}
	}
	u.db.users[usr.ID] = *usr
	return nil
}

func (u *Users) FindByID(_ context.Context, id string) (*model.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	usr, ok := u.db.users[id]
	if !ok {
		return nil, nil
	}
	return &usr, nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (*model.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	for _, usr := range u.db.users {
		if strings.EqualFold(usr.Email, email) {
			found := usr
			return &found, nil
		}
	}
	return nil, nil
}

func (u *Users) List(_ context.Context, section string) ([]model.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	out := []model.User{}
	for _, usr := range u.db.users {
		if section == "" || usr.Section == section {
			out = append(out, usr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RollNo != out[j].RollNo {
			return out[i].RollNo < out[j].RollNo
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (u *Users) Update(_ context.Context, usr *model.User) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	current, ok := u.db.users[usr.ID]
	if !ok {
		return apperr.NotFound("user not found")
	}
	for id, existing := range u.db.users {
		if id != usr.ID && strings.EqualFold(existing.Email, usr.Email) {
			return apperr.Conflict("email already in use")
		}
	}
	current.Name, current.Email, current.Section = usr.Name, usr.Email, usr.Section
	u.db.users[usr.ID] = current
	return nil
}

// ---------- Subjects ----------

// Subjects implements subject.Repository.
type Subjects struct{ db *DB }

// NewSubjects returns the subject repository over db.
func NewSubjects(db *DB) *Subjects { return &Subjects{db: db} }

func (s *Subjects) Create(_ context.Context, sub *model.Subject) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.subjects[sub.Code]; ok {
		return apperr.Conflict("subject %s already exists", sub.Code)
	}
	cp := *sub
	cp.Sections = append([]string{}, sub.Sections...)
	s.db.subjects[sub.Code] = cp
	return nil
}

func (s *Subjects) FindByCode(_ context.Context, code string) (*model.Subject, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	sub, ok := s.db.subjects[code]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *Subjects) List(_ context.Context, section string) ([]model.Subject, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []model.Subject{}
	for _, sub := range s.db.subjects {
		if section == "" || sub.HasSection(section) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ---------- Attendance ----------

// Attendance implements attendance.Store. A unit of work holds the DB write
// lock until it ends and only publishes its writes on success.
type Attendance struct{ db *DB }

// NewAttendance returns the attendance store over db.
func NewAttendance(db *DB) *Attendance { return &Attendance{db: db} }

func (a *Attendance) RunInTx(_ context.Context, fn func(attendance.Tx) error) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()

	tx := &memTx{
		db:        a.db,
		summaries: make(map[string]model.Summary),
		records:   make(map[recordKey]model.AttendanceRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, s := range tx.summaries {
		usr := a.db.users[id]
		usr.Attendance = s
		a.db.users[id] = usr
	}
	for k, rec := range tx.records {
		a.db.records[k] = rec
	}
	return nil
}

func (a *Attendance) ListAll(_ context.Context) ([]attendance.StudentRecord, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()
	var out []attendance.StudentRecord
	for _, rec := range a.db.records {
		usr := a.db.users[rec.StudentID]
		out = append(out, attendance.StudentRecord{
			AttendanceRecord: rec,
			Name:             usr.Name,
			RollNo:           usr.RollNo,
			Section:          usr.Section,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Subject.Code < out[j].Subject.Code
	})
	return out, nil
}

func (a *Attendance) ListByStudent(_ context.Context, studentID, subjectCode string) ([]model.AttendanceRecord, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()
	var out []model.AttendanceRecord
	for _, rec := range a.db.records {
		if rec.StudentID != studentID {
			continue
		}
		if subjectCode != "" && rec.Subject.Code != subjectCode {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Subject.Code < out[j].Subject.Code
	})
	return out, nil
}

type memTx struct {
	db        *DB
	summaries map[string]model.Summary
	records   map[recordKey]model.AttendanceRecord
}

func (t *memTx) LockSummary(_ context.Context, studentID string) (*model.Summary, error) {
	if s, ok := t.summaries[studentID]; ok {
		return &s, nil
	}
	usr, ok := t.db.users[studentID]
	if !ok {
		return nil, nil
	}
	s := usr.Attendance
	return &s, nil
}

func (t *memTx) SaveSummary(_ context.Context, studentID string, s model.Summary) error {
	t.summaries[studentID] = s
	return nil
}

func (t *memTx) FindRecord(_ context.Context, studentID, subjectCode string, date time.Time) (*model.AttendanceRecord, error) {
	k := keyOf(studentID, subjectCode, date)
	if rec, ok := t.records[k]; ok {
		return &rec, nil
	}
	if rec, ok := t.db.records[k]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (t *memTx) InsertRecord(_ context.Context, rec *model.AttendanceRecord) error {
	k := keyOf(rec.StudentID, rec.Subject.Code, rec.Date)
	if _, ok := t.db.records[k]; ok {
		return apperr.Conflict("attendance record already exists")
	}
	t.records[k] = *rec
	return nil
}

func (t *memTx) UpdateRecord(_ context.Context, rec *model.AttendanceRecord) error {
	t.records[keyOf(rec.StudentID, rec.Subject.Code, rec.Date)] = *rec
	return nil
}

// ---------- Tickets ----------

// Tickets implements ticket.Repository.
type Tickets struct{ db *DB }

// NewTickets returns the ticket repository over db.
func NewTickets(db *DB) *Tickets { return &Tickets{db: db} }

func (t *Tickets) Create(_ context.Context, tk *model.Ticket) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.tickets[tk.ID] = *tk
	return nil
}

func (t *Tickets) FindByID(_ context.Context, id string) (*model.Ticket, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	tk, ok := t.db.tickets[id]
	if !ok {
		return nil, nil
	}
	return &tk, nil
}

func (t *Tickets) List(_ context.Context, userID string) ([]model.Ticket, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	out := []model.Ticket{}
	for _, tk := range t.db.tickets {
		if userID == "" || tk.UserID == userID {
			out = append(out, tk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *Tickets) SetStatus(_ context.Context, id string, status model.TicketStatus) (*model.Ticket, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	tk, ok := t.db.tickets[id]
	if !ok {
		return nil, nil
	}
	tk.Status = status
	t.db.tickets[id] = tk
	return &tk, nil
}

// ---------- Calendar ----------

// Calendar implements calendar.Repository.
type Calendar struct{ db *DB }

// NewCalendar returns the calendar repository over db.
func NewCalendar(db *DB) *Calendar { return &Calendar{db: db} }

func (c *Calendar) Create(_ context.Context, evt *model.CalendarEvent) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.events = append(c.db.events, *evt)
	return nil
}

func (c *Calendar) List(_ context.Context) ([]model.CalendarEvent, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()
	out := append([]model.CalendarEvent{}, c.db.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
