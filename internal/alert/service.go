// Package alert broadcasts short-lived messages from teachers.
package alert

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendease/internal/apperr"
	"attendease/internal/auth"
	"attendease/internal/metrics"
	"attendease/internal/model"
)

// DefaultTTL is how long an alert stays visible when no TTL is configured.
const DefaultTTL = 300 * time.Second

type Service struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store Store, ttl time.Duration, m *metrics.Metrics) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, metrics: m, now: time.Now}
}

// Create publishes a message until the TTL elapses.
func (s *Service) Create(ctx context.Context, actor auth.Principal, message string) (*model.Alert, error) {
	if !actor.IsTeacher() {
		return nil, apperr.Forbidden("only teachers can create alerts")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}
	now := s.now().UTC()
	a := model.Alert{ID: uuid.NewString(), Message: message, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.store.Add(ctx, a); err != nil {
		return nil, apperr.Store(err)
	}
	s.metrics.ObserveAlert()
	return &a, nil
}

// ListActive returns unexpired alerts, newest first.
func (s *Service) ListActive(ctx context.Context) ([]model.Alert, error) {
	alerts, err := s.store.Active(ctx, s.now().UTC())
	if err != nil {
		return nil, apperr.Store(err)
	}
	return alerts, nil
}
