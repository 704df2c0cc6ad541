package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/models"
	"identity-service/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ResetTokenRepository is the persistence contract for password reset
// tokens. Tokens are created out-of-band; this service only consumes them.
type ResetTokenRepository interface {
	FindActive(ctx context.Context, token string) (*models.PasswordResetToken, error)
	Consume(ctx context.Context, tokenID, userID uuid.UUID, newPasswordHash string) error
}

type resetTokenRepository struct {
	db DB
}

func NewResetTokenRepository(db DB) ResetTokenRepository {
	return &resetTokenRepository{db: db}
}

// FindActive returns the token only when it is unused and unexpired.
// Not-found, already-used and expired all collapse to ErrNotFound.
func (r *resetTokenRepository) FindActive(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, token, user_id, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token = $1 AND used = false AND expires_at > $2
	`, token, time.Now().UTC())

	var t models.PasswordResetToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reset token: %w", err)
	}
	return &t, nil
}

// Consume rotates the user's credential and burns the token in a single
// transaction. The token flip guards on used=false so a concurrent consume
// of the same token loses and rolls the credential write back.
func (r *resetTokenRepository) Consume(ctx context.Context, tokenID, userID uuid.UUID, newPasswordHash string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used = true
		WHERE id = $1 AND used = false
	`, tokenID)
	if err != nil {
		util.Error("Failed to mark reset token used", util.ErrorField(err))
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	tag, err = tx.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
		    temp_password = NULL,
		    temp_password_expires_at = NULL,
		    force_password_change = false,
		    updated_at = $3
		WHERE id = $1
	`, userID, newPasswordHash, time.Now().UTC())
	if err != nil {
		util.Error("Failed to rotate user credential", util.ErrorField(err))
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

var _ ResetTokenRepository = (*resetTokenRepository)(nil)
