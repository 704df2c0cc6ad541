package service

import (
	"context"
	"errors"
	"fmt"

	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"
	"identity-service/internal/util"
)

// RegisterStaffRequest carries the new account fields plus the second,
// distinct administrator identity that must authorize the provisioning.
type RegisterStaffRequest struct {
	Email         string
	Name          string
	Password      string
	Role          string
	Phone         string
	AdminEmail    string
	AdminPassword string
}

// RegisterStaff creates a staff account after an independent administrator
// credential check. Validation order matters: field presence and the staff
// role gate come before the admin check, which comes before the duplicate
// email check.
func (s *AuthService) RegisterStaff(ctx context.Context, req RegisterStaffRequest) (*models.User, error) {
	if req.Email == "" || req.Name == "" || req.Password == "" || req.Role == "" {
		return nil, fmt.Errorf("%w: email, name, password and role are required", ErrInvalidInput)
	}
	if req.AdminEmail == "" || req.AdminPassword == "" {
		return nil, fmt.Errorf("%w: admin credentials are required", ErrInvalidInput)
	}

	role := models.Role(req.Role)
	if !role.IsStaff() {
		return nil, fmt.Errorf("%w: invalid role", ErrInvalidInput)
	}
	if len(req.Password) < s.passwordMinLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.passwordMinLength)
	}

	if err := s.verifyAdmin(ctx, req.AdminEmail, req.AdminPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	first, last := splitName(req.Name)
	user := &models.User{
		Email:               util.NormalizeEmail(req.Email),
		Phone:               util.NormalizePhone(req.Phone),
		FirstName:           first,
		LastName:            last,
		Role:                role,
		PasswordHash:        hash,
		ForcePasswordChange: false,
		Avatar:              avatarInitials(req.Name),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, postgres.ErrDuplicateEmail) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create staff user: %w", err)
	}

	s.logger.Info("Staff account provisioned",
		util.String("user_id", user.ID.String()),
		util.String("role", user.Role.String()))
	s.publish(ctx, models.AuthEvent{
		EventType: models.EventStaffCreated,
		UserID:    user.ID.String(),
		Email:     user.Email,
		Details:   user.Role.String(),
	})

	return user, nil
}

// verifyAdmin checks the authorizing identity against the admin-capable
// roles. Every failure mode collapses to ErrInvalidAdminCredentials.
func (s *AuthService) verifyAdmin(ctx context.Context, email, password string) error {
	admin, err := s.users.FindByEmailAndRoles(ctx, util.NormalizeEmail(email), models.AdminRoles)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrInvalidAdminCredentials
		}
		return fmt.Errorf("admin lookup failed: %w", err)
	}

	if admin.PasswordHash == "" {
		return ErrInvalidAdminCredentials
	}
	ok, err := s.hasher.Verify(password, admin.PasswordHash)
	if err != nil {
		s.logger.Error("Stored admin credential hash is unreadable",
			util.String("user_id", admin.ID.String()),
			util.ErrorField(err))
		return ErrInvalidAdminCredentials
	}
	if !ok {
		s.logger.Warn("Staff provisioning rejected",
			util.String("admin_email", admin.Email))
		return ErrInvalidAdminCredentials
	}
	return nil
}
