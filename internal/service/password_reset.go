package service

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"
	"identity-service/internal/util"
)

// ResetPassword consumes a single-use reset token and rotates the owning
// user's credential. Input is validated before any store access. Not-found,
// already-used and expired tokens are indistinguishable to the caller.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return fmt.Errorf("%w: token and new password are required", ErrInvalidInput)
	}
	if len(newPassword) < s.passwordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.passwordMinLength)
	}

	reset, err := s.tokens.FindActive(ctx, token)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("reset token lookup failed: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	// Token invalidation and credential rotation commit together; a token
	// that raced another consume comes back as not found.
	if err := s.tokens.Consume(ctx, reset.ID, reset.UserID, hash); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	s.logger.Info("Password reset completed",
		util.String("user_id", reset.UserID.String()))
	s.publish(ctx, models.AuthEvent{
		EventType: models.EventPasswordReset,
		UserID:    reset.UserID.String(),
	})

	return nil
}
