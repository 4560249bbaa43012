package models

import "time"

const VerificationMethodIdentity = "identity_verification"

type Verification struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	DebtorID           *string    `json:"debtor_id"`
	Verified           bool       `json:"verified"`
	VerificationDate   *time.Time `json:"verification_date,omitempty"`
	VerificationMethod *string    `json:"verification_method,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

type UserProfile struct {
	ID         string     `json:"id"`
	Email      *string    `json:"email,omitempty"`
	FullName   *string    `json:"full_name,omitempty"`
	AvatarURL  *string    `json:"avatar_url,omitempty"`
	LastSignIn *time.Time `json:"last_sign_in,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}
