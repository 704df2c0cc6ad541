package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxOTPAttempts is the hard cap on recorded failed verifications for a
// single staged record. Once reached, further checks are rejected before
// the submitted code is even compared.
const MaxOTPAttempts = 5

// OTPVerification is a staged registration/verification record keyed by
// (email, phone). The profile fields hold values captured when the code was
// issued and are only used if no user exists yet at verification time.
type OTPVerification struct {
	ID            uuid.UUID `db:"id"`
	Email         string    `db:"email"`
	Phone         string    `db:"phone"`
	EmailOTP      string    `db:"email_otp"`
	OTPExpiresAt  time.Time `db:"otp_expires_at"`
	Attempts      int       `db:"attempts"`
	EmailVerified bool      `db:"email_verified"`
	PhoneVerified bool      `db:"phone_verified"`
	FirstName     string    `db:"first_name"`
	LastName      string    `db:"last_name"`
	Location      string    `db:"location"`
	Password      string    `db:"password"`
	CreatedAt     time.Time `db:"created_at"`
}
