package service

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"
	"identity-service/internal/util"

	"github.com/google/uuid"
)

// VerifyOTPRequest carries the submitted code plus optional profile fields.
// Any profile field left empty falls back to the value staged on the OTP
// record when the code was issued.
type VerifyOTPRequest struct {
	Email     string
	Phone     string
	EmailOTP  string
	FirstName string
	LastName  string
	Location  string
	Password  string
}

type VerifyOTPResult struct {
	UserID uuid.UUID
	Email  string
	Phone  string
}

// VerifyOTP walks the staged record through its state machine: attempt cap,
// exact code match, promotion into a permanent user (+ client profile for a
// first-time registration), then unconditional record consumption.
func (s *AuthService) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*VerifyOTPResult, error) {
	if req.Email == "" || req.Phone == "" || req.EmailOTP == "" {
		return nil, fmt.Errorf("%w: email, phone and verification code are required", ErrInvalidInput)
	}
	email := util.NormalizeEmail(req.Email)
	phone := util.NormalizePhone(req.Phone)

	rec, err := s.otps.FindPending(ctx, email, phone)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("otp lookup failed: %w", err)
	}

	// The cap gates before the code is even compared.
	if rec.Attempts >= models.MaxOTPAttempts {
		s.publish(ctx, models.AuthEvent{
			EventType: models.EventOTPAttemptsExhausted,
			Email:     email,
		})
		return nil, ErrOTPAttemptsExceeded
	}

	if req.EmailOTP != rec.EmailOTP {
		attempts, err := s.otps.IncrementAttempts(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to record otp attempt: %w", err)
		}
		remaining := models.MaxOTPAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		s.logger.Warn("OTP mismatch",
			util.String("email", email),
			util.Int("attempts", attempts))
		return nil, &InvalidOTPError{AttemptsRemaining: remaining}
	}

	if err := s.otps.MarkVerified(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("failed to mark otp verified: %w", err)
	}

	firstName := fallback(req.FirstName, rec.FirstName)
	lastName := fallback(req.LastName, rec.LastName)
	location := fallback(req.Location, rec.Location)
	password := fallback(req.Password, rec.Password)

	userID, err := s.promoteVerifiedUser(ctx, email, phone, firstName, lastName, location, password)
	if err != nil {
		return nil, err
	}

	// Single use, whole record. A repeat submission must come back empty.
	if err := s.otps.Delete(ctx, rec.ID); err != nil {
		// The user is already promoted; surface the inconsistency in logs
		// rather than failing a verification that did succeed.
		s.logger.Error("Failed to delete consumed otp record",
			util.String("otp_id", rec.ID.String()),
			util.ErrorField(err))
	}

	s.publish(ctx, models.AuthEvent{
		EventType: models.EventClientVerified,
		UserID:    userID.String(),
		Email:     email,
	})

	return &VerifyOTPResult{UserID: userID, Email: email, Phone: phone}, nil
}

// promoteVerifiedUser updates an existing user in place, or inserts a new
// client user plus its profile in one transaction.
func (s *AuthService) promoteVerifiedUser(ctx context.Context, email, phone, firstName, lastName, location, password string) (uuid.UUID, error) {
	var passwordHash *string
	if password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = &hash
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		upd := postgres.UserProfileUpdate{
			FirstName:    optional(firstName),
			LastName:     optional(lastName),
			Location:     optional(location),
			Phone:        optional(phone),
			PasswordHash: passwordHash,
		}
		if err := s.users.UpdateProfile(ctx, existing.ID, upd); err != nil {
			return uuid.Nil, fmt.Errorf("failed to update verified user: %w", err)
		}
		return existing.ID, nil
	}
	if !errors.Is(err, postgres.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("user lookup failed: %w", err)
	}

	if passwordHash == nil {
		return uuid.Nil, fmt.Errorf("%w: password is required for registration", ErrInvalidInput)
	}

	user := &models.User{
		Email:     email,
		Phone:     phone,
		FirstName: firstName,
		LastName:  lastName,
		Role:      models.RoleClient,
		Location:  location,
		Avatar:    avatarInitials(firstName + " " + lastName),
	}
	user.PasswordHash = *passwordHash

	if err := s.users.CreateClientUser(ctx, user); err != nil {
		if errors.Is(err, postgres.ErrDuplicateEmail) {
			// Lost a race with a concurrent verification for the same email.
			return uuid.Nil, ErrEmailExists
		}
		return uuid.Nil, fmt.Errorf("failed to create client user: %w", err)
	}

	s.logger.Info("Client registered via OTP verification",
		util.String("user_id", user.ID.String()))

	return user.ID, nil
}

func fallback(submitted, staged string) string {
	if submitted != "" {
		return submitted
	}
	return staged
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
