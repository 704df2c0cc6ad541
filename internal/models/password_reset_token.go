package models

import (
	"time"

	"github.com/google/uuid"
)

// PasswordResetToken is a single-use, time-limited reset credential. Tokens
// are issued outside this service; it only consumes them.
type PasswordResetToken struct {
	ID        uuid.UUID `db:"id"`
	Token     string    `db:"token"`
	UserID    uuid.UUID `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
}
