package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/hashing"
	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"
	"identity-service/internal/util"

	"github.com/google/uuid"
)

// LoginResult is what a successful authentication reports back.
type LoginResult struct {
	UserID                 uuid.UUID
	Email                  string
	Name                   string
	Role                   models.Role
	RequiresPasswordChange bool
}

// Login validates a submitted (email, password) pair. With a non-empty
// allowedRoles set the lookup is restricted to those roles, which is how the
// staff-only entry point shuts clients out.
//
// An unexpired temporary credential takes precedence over the permanent
// hash and forces a password change on success. Every failure collapses to
// ErrInvalidCredentials; the caller never learns which check failed.
func (s *AuthService) Login(ctx context.Context, email, password string, allowedRoles []models.Role) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	email = util.NormalizeEmail(email)

	user, err := s.users.FindByEmailAndRoles(ctx, email, allowedRoles)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.loginFailed(ctx, email, "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login lookup failed: %w", err)
	}

	now := time.Now().UTC()

	if user.HasActiveTempPassword(now) && hashing.ConstantTimeEquals(password, *user.TempPassword) {
		s.logger.Info("Login with temporary credential",
			util.String("user_id", user.ID.String()),
			util.String("role", user.Role.String()))
		s.publish(ctx, models.AuthEvent{
			EventType: models.EventLoginSucceeded,
			UserID:    user.ID.String(),
			Email:     user.Email,
			Details:   "temporary credential",
		})
		return &LoginResult{
			UserID:                 user.ID,
			Email:                  user.Email,
			Name:                   user.DisplayName(),
			Role:                   user.Role,
			RequiresPasswordChange: true,
		}, nil
	}

	if user.PasswordHash != "" {
		ok, err := s.hasher.Verify(password, user.PasswordHash)
		if err != nil {
			// Malformed stored hash. Log the condition, not the digests.
			s.logger.Error("Stored credential hash is unreadable",
				util.String("user_id", user.ID.String()),
				util.ErrorField(err))
			return nil, ErrInvalidCredentials
		}
		if ok {
			s.publish(ctx, models.AuthEvent{
				EventType: models.EventLoginSucceeded,
				UserID:    user.ID.String(),
				Email:     user.Email,
			})
			return &LoginResult{
				UserID:                 user.ID,
				Email:                  user.Email,
				Name:                   user.DisplayName(),
				Role:                   user.Role,
				RequiresPasswordChange: user.ForcePasswordChange,
			}, nil
		}
	}

	s.loginFailed(ctx, email, "credential mismatch")
	return nil, ErrInvalidCredentials
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) {
	s.logger.Warn("Login failed", util.String("email", email))
	s.publish(ctx, models.AuthEvent{
		EventType: models.EventLoginFailed,
		Email:     email,
		Details:   reason,
	})
}
