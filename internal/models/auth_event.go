package models

import "time"

// Auth event types published to the event stream. Consumers downstream use
// these for alerting and audit; none of them carry credential material.
const (
	EventLoginFailed          = "login_failed"
	EventLoginSucceeded       = "login_succeeded"
	EventPasswordReset        = "password_reset"
	EventStaffCreated         = "staff_created"
	EventClientVerified       = "client_verified"
	EventOTPAttemptsExhausted = "otp_attempts_exhausted"
)

type AuthEvent struct {
	EventType string    `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Details   string    `json:"details,omitempty"`
}
