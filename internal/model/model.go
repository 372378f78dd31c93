package model

import "time"

// DateLayout is the calendar-date format used on the wire.
const DateLayout = "2006-01-02"

// Percentage returns part/total on a 0-100 scale, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Summary holds a student's lifetime attendance counters.
type Summary struct {
	TotalAttended     int     `json:"totalAttended"`
	TotalClasses      int     `json:"totalClasses"`
	AbsentClasses     int     `json:"absentClasses"`
	OverallPercentage float64 `json:"overallPercentage"`
}

// Apply counts one more class session.
func (s *Summary) Apply(attended bool) {
	s.TotalClasses++
	if attended {
		s.TotalAttended++
	} else {
		s.AbsentClasses++
	}
	s.OverallPercentage = Percentage(s.TotalAttended, s.TotalClasses)
}

// User is an account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Section      string    `json:"section"`
	Role         string    `json:"role"`
	RollNo       string    `json:"rollNo"`
	Attendance   Summary   `json:"attendance"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Subject is a directory entry.
type Subject struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Sections  []string  `json:"sections"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasSection reports whether the subject is taught to section.
func (s Subject) HasSection(section string) bool {
	for _, sec := range s.Sections {
		if sec == section {
			return true
		}
	}
	return false
}

// SubjectRef is the subject as snapshotted onto an attendance record.
type SubjectRef struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// AttendanceStatus is the outcome of the latest submission for a record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
)

// StatusFor maps an attended flag to a status.
func StatusFor(attended bool) AttendanceStatus {
	if attended {
		return StatusPresent
	}
	return StatusAbsent
}

// AttendanceRecord is the tally for one (student, subject, date).
type AttendanceRecord struct {
	ID                   string           `json:"id"`
	StudentID            string           `json:"studentId"`
	Subject              SubjectRef       `json:"subject"`
	Date                 time.Time        `json:"date"`
	AttendedClasses      int              `json:"attendedClasses"`
	TotalClasses         int              `json:"totalClasses"`
	IndividualPercentage float64          `json:"individualPercentage"`
	Status               AttendanceStatus `json:"status"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// Apply counts one more class session on the record.
func (r *AttendanceRecord) Apply(attended bool) {
	r.TotalClasses++
	if attended {
		r.AttendedClasses++
	}
	r.IndividualPercentage = Percentage(r.AttendedClasses, r.TotalClasses)
	r.Status = StatusFor(attended)
}

// TicketStatus is the approval state of a ticket.
type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketApproved TicketStatus = "approved"
	TicketRejected TicketStatus = "rejected"
)

// Ticket is a student document submitted for approval.
type Ticket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	RollNo    string       `json:"rollNo"`
	Section   string       `json:"section"`
	Document  string       `json:"document"`
	FileName  string       `json:"file,omitempty"`
	FileURL   string       `json:"fileUrl,omitempty"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// HasFile reports whether an attachment was uploaded.
func (t Ticket) HasFile() bool { return t.FileName != "" }

// Alert is a short-lived broadcast message.
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CalendarEvent is an entry on the shared calendar.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}
