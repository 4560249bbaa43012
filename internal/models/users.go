package models

import "time"

const (
	ProviderCredential = "credential"
	ProviderGoogle     = "google"
)

type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name,omitempty"`
	Image         *string        `json:"image,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Account links a user to a sign-in method. Password is only set for the
// credential provider.
type Account struct {
	ID         string
	UserID     string
	ProviderID string
	AccountID  string
	Password   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
