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

// OTPRepository is the persistence contract for staged OTP verification
// records, keyed by (email, phone).
type OTPRepository interface {
	FindPending(ctx context.Context, email, phone string) (*models.OTPVerification, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type otpRepository struct {
	db DB
}

func NewOTPRepository(db DB) OTPRepository {
	return &otpRepository{db: db}
}

// FindPending only returns records whose OTP window is still open.
func (r *otpRepository) FindPending(ctx context.Context, email, phone string) (*models.OTPVerification, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, email, phone, email_otp, otp_expires_at, attempts,
		       email_verified, phone_verified, first_name, last_name,
		       location, password, created_at
		FROM otp_verifications
		WHERE email = $1 AND phone = $2 AND otp_expires_at > $3
	`, email, phone, time.Now().UTC())

	var rec models.OTPVerification
	err := row.Scan(&rec.ID, &rec.Email, &rec.Phone, &rec.EmailOTP,
		&rec.OTPExpiresAt, &rec.Attempts, &rec.EmailVerified, &rec.PhoneVerified,
		&rec.FirstName, &rec.LastName, &rec.Location, &rec.Password, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan otp record: %w", err)
	}
	return &rec, nil
}

// IncrementAttempts bumps the counter in the database and returns the new
// total. The increment happens server-side so concurrent mismatches cannot
// lose updates and slip past the attempt cap.
func (r *otpRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE otp_verifications
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		util.Error("Failed to increment otp attempts", util.ErrorField(err))
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return attempts, nil
}

func (r *otpRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE otp_verifications
		SET email_verified = true, phone_verified = true
		WHERE id = $1
	`, id)
	if err != nil {
		util.Error("Failed to mark otp verified", util.ErrorField(err))
		return fmt.Errorf("failed to mark otp verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record outright. Verification is single-use at whole
// record granularity.
func (r *otpRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM otp_verifications WHERE id = $1`, id)
	if err != nil {
		util.Error("Failed to delete otp record", util.ErrorField(err))
		return fmt.Errorf("failed to delete otp record: %w", err)
	}
	return nil
}

var _ OTPRepository = (*otpRepository)(nil)
