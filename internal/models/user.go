package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles. It is enforced at the model
// boundary; handlers never pass a free-form string past validation.
type Role string

const (
	RoleOwner           Role = "owner"
	RoleAdmin           Role = "admin"
	RolePropertyAdvisor Role = "property_advisor"
	RoleClient          Role = "client"
)

// StaffRoles are the privileged roles allowed through the staff endpoints.
var StaffRoles = []Role{RoleOwner, RoleAdmin, RolePropertyAdvisor}

// AdminRoles may authorize staff provisioning.
var AdminRoles = []Role{RoleOwner, RoleAdmin}

// Valid reports whether r is one of the four enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RolePropertyAdvisor, RoleClient:
		return true
	}
	return false
}

// IsStaff reports whether r is a privileged (non-client) role.
func (r Role) IsStaff() bool {
	return r.Valid() && r != RoleClient
}

func (r Role) String() string { return string(r) }

type User struct {
	ID                    uuid.UUID  `db:"id"`
	Email                 string     `db:"email"`
	Phone                 string     `db:"phone"`
	FirstName             string     `db:"first_name"`
	LastName              string     `db:"last_name"`
	Role                  Role       `db:"role"`
	PasswordHash          string     `db:"password_hash"`
	TempPassword          *string    `db:"temp_password"`
	TempPasswordExpiresAt *time.Time `db:"temp_password_expires_at"`
	ForcePasswordChange   bool       `db:"force_password_change"`
	Location              string     `db:"location"`
	Avatar                string     `db:"avatar"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             *time.Time `db:"updated_at"`
}

// DisplayName joins the stored name parts; staff accounts created from a
// single name string keep the whole name in FirstName.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasActiveTempPassword reports whether a temporary credential exists and
// its expiry is still in the future.
func (u *User) HasActiveTempPassword(now time.Time) bool {
	return u.TempPassword != nil && *u.TempPassword != "" &&
		u.TempPasswordExpiresAt != nil && u.TempPasswordExpiresAt.After(now)
}
