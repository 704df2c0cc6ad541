package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is the 1:1 profile record behind every user with RoleClient.
// Created exactly once, at first successful OTP verification.
type Client struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
