package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"attendease/internal/apperr"
	"attendease/internal/auth"
	"attendease/internal/model"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Section  string `json:"section"`
	Role     string `json:"role"`
	RollNo   string `json:"rollNo"`
}

// LoginInput is the sign-in form. Section, role and roll number must match
// the account.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Section  string `json:"section"`
	Role     string `json:"role"`
	RollNo   string `json:"rollNo"`
}

// UpdateInput holds the editable profile fields; empty fields are left as is.
type UpdateInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Section string `json:"section"`
}

// Profile is the directory projection returned by listings.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Section string `json:"section"`
	RollNo  string `json:"rollNo"`
}

// Service manages accounts.
type Service struct {
	repo       Repository
	tokens     *auth.Issuer
	log        zerolog.Logger
	bcryptCost int
}

// NewService creates a user service.
func NewService(repo Repository, tokens *auth.Issuer, log zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, log: log, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Section == "" || in.RollNo == "" {
		return nil, apperr.Validation("name, email, password, section and rollNo are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperr.Validation("invalid email")
	}
	if in.Role == "" {
		in.Role = auth.RoleStudent
	}
	if in.Role != auth.RoleStudent && in.Role != auth.RoleTeacher {
		return nil, apperr.Validation("invalid role %q", in.Role)
	}

	existing, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if existing != nil {
		return nil, apperr.Conflict("user already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Section:      in.Section,
		Role:         in.Role,
		RollNo:       in.RollNo,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, apperr.Store(err)
	}
	s.log.Info().Str("user", u.ID).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Login checks credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (auth.TokenPair, *model.User, error) {
	u, err := s.repo.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		return auth.TokenPair{}, nil, apperr.Store(err)
	}
	if u == nil {
		return auth.TokenPair{}, nil, apperr.NotFound("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return auth.TokenPair{}, nil, apperr.Unauthenticated("invalid password")
		}
		return auth.TokenPair{}, nil, err
	}
	switch {
	case u.Section != in.Section:
		return auth.TokenPair{}, nil, apperr.Unauthenticated("invalid section")
	case u.Role != in.Role:
		return auth.TokenPair{}, nil, apperr.Unauthenticated("invalid role")
	case u.RollNo != in.RollNo:
		return auth.TokenPair{}, nil, apperr.Unauthenticated("invalid rollNo")
	}

	pair, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return auth.TokenPair{}, nil, err
	}
	return pair, u, nil
}

// Get returns one user. Students may only read their own account.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (*model.User, error) {
	if !actor.CanAccess(id) {
		return nil, apperr.Forbidden("cannot view another user")
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// List returns the public directory, optionally restricted to one section.
func (s *Service) List(ctx context.Context, section string) ([]Profile, error) {
	users, err := s.repo.List(ctx, section)
	if err != nil {
		return nil, apperr.Store(err)
	}
	out := make([]Profile, 0, len(users))
	for _, u := range users {
		out = append(out, Profile{ID: u.ID, Name: u.Name, Section: u.Section, RollNo: u.RollNo})
	}
	return out, nil
}

// Update edits profile fields of the actor's own account, or any account for
// a teacher.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, in UpdateInput) (*model.User, error) {
	u, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(in.Name); v != "" {
		u.Name = v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		if _, err := mail.ParseAddress(v); err != nil {
			return nil, apperr.Validation("invalid email")
		}
		u.Email = v
	}
	if v := strings.TrimSpace(in.Section); v != "" {
		u.Section = v
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, apperr.Store(err)
	}
	return u, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(refreshToken string) (auth.TokenPair, error) {
	pair, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return auth.TokenPair{}, apperr.Unauthenticated("invalid refresh token")
	}
	return pair, nil
}
