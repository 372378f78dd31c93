package subject

import (
	"context"
	"strings"
	"time"

	"attendease/internal/apperr"
	"attendease/internal/auth"
	"attendease/internal/model"
)

// CreateInput is the body of a new subject.
type CreateInput struct {
	Name     string   `json:"name"`
	Code     string   `json:"code"`
	Sections []string `json:"sections"`
}

// Service manages the subject directory.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a subject. Only teachers may do this.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (*model.Subject, error) {
	if !actor.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can create subjects")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if in.Name == "" || in.Code == "" {
		return nil, apperr.Validation("name and code are required")
	}

	sections := make([]string, 0, len(in.Sections))
	seen := map[string]bool{}
	for _, sec := range in.Sections {
		sec = strings.TrimSpace(sec)
		if sec == "" || seen[sec] {
			continue
		}
		seen[sec] = true
		sections = append(sections, sec)
	}

	sub := &model.Subject{Code: in.Code, Name: in.Name, Sections: sections, CreatedAt: time.Now().UTC()}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, apperr.Store(err)
	}
	return sub, nil
}

// FindByCode returns nil when the subject does not exist.
func (s *Service) FindByCode(ctx context.Context, code string) (*model.Subject, error) {
	sub, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return sub, nil
}

// List returns every subject.
func (s *Service) List(ctx context.Context) ([]model.Subject, error) {
	return s.ListForSection(ctx, "")
}

// ListForSection returns the subjects taught to a section.
func (s *Service) ListForSection(ctx context.Context, section string) ([]model.Subject, error) {
	subs, err := s.repo.List(ctx, section)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return subs, nil
}
