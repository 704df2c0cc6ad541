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
	"github.com/jackc/pgx/v5/pgconn"
)

// UserRepository is the persistence contract for user records.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailAndRoles(ctx context.Context, email string, roles []models.Role) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	CreateClientUser(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id uuid.UUID, upd UserProfileUpdate) error
}

// UserProfileUpdate carries the fields the OTP flow may rewrite on an
// existing user. Nil pointers leave the stored value untouched.
type UserProfileUpdate struct {
	FirstName    *string
	LastName     *string
	Location     *string
	Phone        *string
	PasswordHash *string
}

const userColumns = `id, email, phone, first_name, last_name, role, password_hash,
		temp_password, temp_password_expires_at, force_password_change,
		location, avatar, created_at, updated_at`

type userRepository struct {
	db DB
}

func NewUserRepository(db DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, email)

	return scanUser(row)
}

func (r *userRepository) FindByEmailAndRoles(ctx context.Context, email string, roles []models.Role) (*models.User, error) {
	if len(roles) == 0 {
		return r.FindByEmail(ctx, email)
	}

	roleStrs := make([]string, len(roles))
	for i, role := range roles {
		roleStrs[i] = role.String()
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND role = ANY($2)
	`, email, roleStrs)

	return scanUser(row)
}

// Create inserts a new user. The duplicate-email check is explicit rather
// than relying on the unique constraint so the caller gets a stable error.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.checkEmailFree(ctx, r.db, user.Email); err != nil {
		return err
	}

	if err := insertUser(ctx, r.db, user); err != nil {
		util.Error("Failed to insert user", util.ErrorField(err))
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateClientUser inserts a user and its 1:1 client profile in a single
// transaction so a profile-insert failure cannot leave an orphaned user.
func (r *userRepository) CreateClientUser(ctx context.Context, user *models.User) error {
	if err := r.checkEmailFree(ctx, r.db, user.Email); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertUser(ctx, tx, user); err != nil {
		util.Error("Failed to insert client user", util.ErrorField(err))
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO clients (id, user_id, created_at)
		VALUES ($1, $2, $3)
	`, uuid.New(), user.ID, user.CreatedAt)
	if err != nil {
		util.Error("Failed to insert client profile", util.ErrorField(err))
		return fmt.Errorf("failed to insert client profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit client user: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, upd UserProfileUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET first_name    = COALESCE($2, first_name),
		    last_name     = COALESCE($3, last_name),
		    location      = COALESCE($4, location),
		    phone         = COALESCE($5, phone),
		    password_hash = COALESCE($6, password_hash),
		    updated_at    = $7
		WHERE id = $1
	`, id, upd.FirstName, upd.LastName, upd.Location, upd.Phone, upd.PasswordHash, time.Now().UTC())
	if err != nil {
		util.Error("Failed to update user profile", util.ErrorField(err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *userRepository) checkEmailFree(ctx context.Context, q execQuerier, email string) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return ErrDuplicateEmail
	}
	return nil
}

func insertUser(ctx context.Context, q execQuerier, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := q.Exec(ctx, `
		INSERT INTO users (id, email, phone, first_name, last_name, role,
			password_hash, temp_password, temp_password_expires_at,
			force_password_change, location, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, user.ID, user.Email, user.Phone, user.FirstName, user.LastName,
		user.Role.String(), user.PasswordHash, user.TempPassword,
		user.TempPasswordExpiresAt, user.ForcePasswordChange,
		user.Location, user.Avatar, user.CreatedAt)
	return err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
		&role, &u.PasswordHash, &u.TempPassword, &u.TempPasswordExpiresAt,
		&u.ForcePasswordChange, &u.Location, &u.Avatar, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

var _ UserRepository = (*userRepository)(nil)
