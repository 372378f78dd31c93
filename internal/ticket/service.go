package ticket

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attendease/internal/apperr"
	"attendease/internal/auth"
	"attendease/internal/filestore"
	"attendease/internal/metrics"
	"attendease/internal/model"
)

// UserFinder resolves the submitting student.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Upload is an optional attachment.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service handles ticket submission and review.
type Service struct {
	repo     Repository
	users    UserFinder
	files    filestore.Store
	maxBytes int64
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewService(repo Repository, users UserFinder, files filestore.Store, maxBytes int64, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{repo: repo, users: users, files: files, maxBytes: maxBytes, metrics: m, log: log}
}

// Create files a pending ticket for the acting student. Roll number and
// section are taken from the account.
func (s *Service) Create(ctx context.Context, actor auth.Principal, document string, up *Upload) (*model.Ticket, error) {
	if actor.Role != auth.RoleStudent {
		return nil, apperr.Forbidden("only students can submit tickets")
	}
	document = strings.TrimSpace(document)
	if document == "" {
		return nil, apperr.Validation("document is required")
	}
	u, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}

	t := &model.Ticket{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		RollNo:    u.RollNo,
		Section:   u.Section,
		Document:  document,
		Status:    model.TicketPending,
		CreatedAt: time.Now().UTC(),
	}
	if up != nil {
		name, err := filestore.Check(up.Filename, up.ContentType, up.Size, s.maxBytes)
		if err != nil {
			return nil, err
		}
		url, err := s.files.Save(ctx, name, up.ContentType, up.Body)
		if err != nil {
			return nil, err
		}
		t.FileName, t.FileURL = name, url
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, apperr.Store(err)
	}
	s.log.Info().Str("ticket", t.ID).Str("user", t.UserID).Bool("file", t.HasFile()).Msg("ticket submitted")
	return t, nil
}

// List returns every ticket to teachers and the actor's own to students.
func (s *Service) List(ctx context.Context, actor auth.Principal) ([]model.Ticket, error) {
	userID := actor.UserID
	if actor.IsTeacher() {
		userID = ""
	}
	tickets, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return tickets, nil
}

// Approve marks a ticket approved.
func (s *Service) Approve(ctx context.Context, actor auth.Principal, id string) (*model.Ticket, error) {
	return s.decide(ctx, actor, id, model.TicketApproved)
}

// Reject marks a ticket rejected.
func (s *Service) Reject(ctx context.Context, actor auth.Principal, id string) (*model.Ticket, error) {
	return s.decide(ctx, actor, id, model.TicketRejected)
}

func (s *Service) decide(ctx context.Context, actor auth.Principal, id string, status model.TicketStatus) (*model.Ticket, error) {
	if !actor.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can review tickets")
	}
	t, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if t == nil {
		return nil, apperr.NotFound("ticket not found")
	}
	s.metrics.ObserveTicketDecision(string(status))
	s.log.Info().Str("ticket", id).Str("status", string(status)).Str("by", actor.UserID).Msg("ticket reviewed")
	return t, nil
}

// File opens a ticket's attachment for its owner or a teacher. When the
// store serves files remotely the returned reader is nil and the ticket's
// FileURL should be followed instead.
func (s *Service) File(ctx context.Context, actor auth.Principal, id string) (*model.Ticket, io.ReadCloser, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, apperr.Store(err)
	}
	if t == nil {
		return nil, nil, apperr.NotFound("ticket not found")
	}
	if !actor.CanAccess(t.UserID) {
		return nil, nil, apperr.Forbidden("cannot view another user's ticket")
	}
	if !t.HasFile() {
		return nil, nil, apperr.NotFound("ticket has no file")
	}
	rc, err := s.files.Open(ctx, t.FileName)
	if errors.Is(err, filestore.ErrRemote) {
		return t, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return t, rc, nil
}
