package gatekeeper

import (
	"context"
	"errors"
	"log"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/services/auth"
)

// Identity is what the request handlers know about the caller.
type Identity struct {
	UserID   string
	Email    string
	DebtorID string
	State    State
	Profile  *models.UserProfile
	Session  *auth.SessionData
}

type SessionSource interface {
	GetSession(ctx context.Context, token string) (*auth.SessionData, error)
}

type VerificationSource interface {
	FindVerified(ctx context.Context, userID string) (*models.Verification, error)
}

type ProfileSource interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
}

type Resolver struct {
	sessions      SessionSource
	verifications VerificationSource
	profiles      ProfileSource
}

func NewResolver(sessions SessionSource, verifications VerificationSource, profiles ProfileSource) *Resolver {
	return &Resolver{sessions: sessions, verifications: verifications, profiles: profiles}
}

// Resolve never fails: anything it cannot establish lowers the state instead.
func (r *Resolver) Resolve(ctx context.Context, token string) Identity {
	if token == "" {
		return Identity{State: Unauthenticated}
	}

	data, err := r.sessions.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrSessionNotFound) && !errors.Is(err, auth.ErrSessionExpired) {
			log.Printf("[GATE][ERR] session lookup: %v", err)
		}
		return Identity{State: Unauthenticated}
	}

	id := Identity{
		UserID:  data.User.ID,
		Email:   data.User.Email,
		State:   Next(Unauthenticated, SignedIn),
		Session: data,
	}

	v, err := r.verifications.FindVerified(ctx, id.UserID)
	switch {
	case err == nil && v.Verified && v.DebtorID != nil:
		id.DebtorID = *v.DebtorID
		id.State = Next(id.State, IdentityVerified)
	case err != nil && !errors.Is(err, ports.ErrNotFound):
		log.Printf("[GATE][ERR] verification lookup user=%s: %v", id.UserID, err)
	}

	if id.State == Verified && r.profiles != nil {
		if p, err := r.profiles.Get(ctx, id.UserID); err == nil {
			id.Profile = p
		} else if !errors.Is(err, ports.ErrNotFound) {
			log.Printf("[GATE][WARN] profile lookup user=%s: %v", id.UserID, err)
		}
	}

	return id
}
