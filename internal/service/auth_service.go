package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-service/internal/config"
	"identity-service/internal/events"
	"identity-service/internal/hashing"
	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"

	"go.uber.org/zap"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials covers user-absent, wrong-secret and
	// expired-temp-secret alike so responses cannot be used to enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrInvalidAdminCredentials = errors.New("invalid admin credentials")
	ErrTokenInvalid            = errors.New("invalid or expired reset token")
	ErrOTPNotFound             = errors.New("no pending verification found or code expired")
	ErrOTPAttemptsExceeded     = errors.New("maximum verification attempts exceeded")
	ErrInvalidOTP              = errors.New("invalid verification code")
	ErrEmailExists             = errors.New("email already registered")
)

// AnyRole places no role restriction on a login lookup.
var AnyRole []models.Role

// StaffOnly restricts a login lookup to the privileged roles.
var StaffOnly = models.StaffRoles

// InvalidOTPError carries the remaining attempt budget alongside the
// sentinel so handlers can report it.
type InvalidOTPError struct {
	AttemptsRemaining int
}

func (e *InvalidOTPError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidOTPError) Unwrap() error { return ErrInvalidOTP }

// AuthService implements the credential and OTP verification flows. It is
// stateless per request; all coordination goes through the store.
type AuthService struct {
	users     postgres.UserRepository
	tokens    postgres.ResetTokenRepository
	otps      postgres.OTPRepository
	hasher    *hashing.Hasher
	publisher events.Publisher
	logger    *zap.Logger

	passwordMinLength int
}

func NewAuthService(
	users postgres.UserRepository,
	tokens postgres.ResetTokenRepository,
	otps postgres.OTPRepository,
	hasher *hashing.Hasher,
	publisher events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &AuthService{
		users:             users,
		tokens:            tokens,
		otps:              otps,
		hasher:            hasher,
		publisher:         publisher,
		logger:            logger,
		passwordMinLength: cfg.Auth.PasswordMinLength,
	}
}

// publish emits an audit event; the publisher itself is best effort.
func (s *AuthService) publish(ctx context.Context, event models.AuthEvent) {
	s.publisher.Publish(ctx, event)
}

// UserTypeForRole collapses the role enum into the coarse type the unified
// login endpoint reports: exactly client maps to "client".
func UserTypeForRole(role models.Role) string {
	if role == models.RoleClient {
		return "client"
	}
	return "staff"
}

// avatarInitials derives the stored avatar abbreviation from the uppercased
// initials of the name's space-separated parts, at most two characters.
func avatarInitials(name string) string {
	var initials []rune
	for _, part := range strings.Fields(name) {
		initials = append(initials, []rune(strings.ToUpper(part))[0])
		if len(initials) == 2 {
			break
		}
	}
	return string(initials)
}

// splitName stores a single provided name as first name plus remainder.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
