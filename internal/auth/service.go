package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkeloo/loyalty-program/internal/shared"
)

// DefaultCallTimeout bounds each authenticate/authorize round trip when no
// timeout is configured.
const DefaultCallTimeout = 5 * time.Second

// Service wraps authentication and authorization business rules.
type Service struct {
	repo        Repository
	callTimeout time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, callTimeout time.Duration) *Service {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Service{repo: repo, callTimeout: callTimeout}
}

// Authenticate validates email/password credentials. Step 1 of the login
// flow: no session state is touched here, and a hung lookup expires into the
// same failure branch as rejected credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Authorize checks the role bound to the subject identity returned by
// Authenticate. Step 2 of the login flow: a lookup error, a missing row and
// a non-admin role are all shared.ErrNoAccess — authorization fails closed.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	role, err := s.repo.FindRole(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNoAccess
		}
		return fmt.Errorf("%w: role lookup: %v", shared.ErrNoAccess, err)
	}
	if role != RoleAdmin {
		return shared.ErrNoAccess
	}
	return nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres. Idempotent.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
