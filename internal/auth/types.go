// Package auth is a thin client adapter over the remote identity service:
// sign-up, sign-in, sign-out, profile updates, and session-change
// subscriptions. Failures come back as structured *Error values so callers
// branch on results instead of catching panics.
package auth

import (
	"time"

	"github.com/interviewly/voicekit/internal/shared"
)

type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Name     string         `json:"name,omitempty"`
	Role     shared.Role    `json:"role,omitempty"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the authenticated state delivered to subscribers. A nil session
// means signed out.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Error is the structured failure the identity service reported, or a local
// code for transport-level problems.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

const (
	// ProfileData keys understood by the interview platform.
	ProfileKeyName = "name"
	ProfileKeyRole = "role"
)
