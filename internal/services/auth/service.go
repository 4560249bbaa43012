package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("an account with this email already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidPassword    = errors.New("password must be between 8 and 128 characters")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	MergeMetadata(ctx context.Context, userID string, patch map[string]any) (map[string]any, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, providerID, accountID string) (*models.Account, error)
	GetUserAccount(ctx context.Context, userID, providerID string) (*models.Account, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
}

type SessionData struct {
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
}

// Result is returned by every sign-in path. Token is shown to the client once.
type Result struct {
	SessionData
	Token string `json:"-"`
}

// ProviderProfile is what a third-party sign-in yields about the user.
type ProviderProfile struct {
	ProviderID string
	AccountID  string
	Email      string
	Name       string
	Picture    string
}

type Options struct {
	SessionMaxAge time.Duration
	Cache         *SessionCache
	Hasher        PasswordHasher
}

type Service struct {
	users    UserStore
	sessions SessionStore
	hasher   PasswordHasher
	cache    *SessionCache
	maxAge   time.Duration
	events   notifier
	now      func() time.Time
}

func NewService(users UserStore, sessions SessionStore, opts Options) *Service {
	if opts.SessionMaxAge <= 0 {
		opts.SessionMaxAge = 24 * time.Hour
	}
	if opts.Hasher == nil {
		opts.Hasher = NewArgon2()
	}
	if opts.Cache == nil {
		opts.Cache = NewSessionCache(0, 0)
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   opts.Hasher,
		cache:    opts.Cache,
		maxAge:   opts.SessionMaxAge,
		now:      time.Now,
	}
}

// Subscribe registers fn for session change events and returns its unsubscribe func.
func (s *Service) Subscribe(fn Listener) func() {
	return s.events.subscribe(fn)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) SignUp(ctx context.Context, email, password, name, ip, ua string) (*Result, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if n := len(password); n < minPasswordLen || n > maxPasswordLen {
		return nil, ErrInvalidPassword
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Email: email, Name: strings.TrimSpace(name)}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	// the credential account id is the user id
	if err := s.users.CreateAccount(ctx, &models.Account{
		UserID:     user.ID,
		ProviderID: models.ProviderCredential,
		AccountID:  user.ID,
		Password:   &hashed,
	}); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	res, err := s.startSession(ctx, user, ip, ua)
	if err != nil {
		return nil, err
	}
	log.Printf("[AUTH][SIGNUP] user=%s", user.ID)
	s.events.publish(Event{Kind: EventSignedUp, UserID: user.ID})
	return res, nil
}

func (s *Service) SignIn(ctx context.Context, email, password, ip, ua string) (*Result, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	account, err := s.users.GetUserAccount(ctx, user.ID, models.ProviderCredential)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account.Password == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, *account.Password)
	if err != nil {
		log.Printf("[AUTH][ERR] verify password user=%s: %v", user.ID, err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	res, err := s.startSession(ctx, user, ip, ua)
	if err != nil {
		return nil, err
	}
	s.events.publish(Event{Kind: EventSignedIn, UserID: user.ID})
	return res, nil
}

// SignInWithProvider finds or creates the user behind a third-party account.
// An existing user with the same email gets the provider account linked.
func (s *Service) SignInWithProvider(ctx context.Context, p ProviderProfile, ip, ua string) (*Result, error) {
	if p.ProviderID == "" || p.AccountID == "" {
		return nil, ErrInvalidCredentials
	}

	var user *models.User
	account, err := s.users.GetAccount(ctx, p.ProviderID, p.AccountID)
	switch {
	case err == nil:
		user, err = s.users.GetUserByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
	case errors.Is(err, ports.ErrNotFound):
		user, err = s.linkProviderUser(ctx, p)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("find provider account: %w", err)
	}

	res, err := s.startSession(ctx, user, ip, ua)
	if err != nil {
		return nil, err
	}
	s.events.publish(Event{Kind: EventSignedIn, UserID: user.ID})
	return res, nil
}

func (s *Service) linkProviderUser(ctx context.Context, p ProviderProfile) (*models.User, error) {
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ports.ErrNotFound) {
		user = &models.User{Email: email, Name: p.Name, EmailVerified: true}
		if p.Picture != "" {
			pic := p.Picture
			user.Image = &pic
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		log.Printf("[AUTH][SIGNUP] user=%s provider=%s", user.ID, p.ProviderID)
		s.events.publish(Event{Kind: EventSignedUp, UserID: user.ID})
	} else if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.users.CreateAccount(ctx, &models.Account{
		UserID:     user.ID,
		ProviderID: p.ProviderID,
		AccountID:  p.AccountID,
	}); err != nil && !errors.Is(err, ports.ErrDuplicate) {
		return nil, fmt.Errorf("link account: %w", err)
	}
	return user, nil
}

func (s *Service) startSession(ctx context.Context, user *models.User, ip, ua string) (*Result, error) {
	token, hash, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC()
	sess := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hash,
		IPAddress: ip,
		UserAgent: ua,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	data := SessionData{User: user, Session: sess}
	s.cache.Set(hash, &data)
	return &Result{SessionData: data, Token: token}, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return ErrSessionNotFound
	}
	hash := HashToken(token)

	var userID string
	if data, ok := s.cache.Get(hash); ok {
		userID = data.User.ID
	} else if sess, err := s.sessions.GetSessionByHash(ctx, hash); err == nil {
		userID = sess.UserID
	}

	s.cache.Delete(hash)
	if err := s.sessions.DeleteSessionByHash(ctx, hash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if userID != "" {
		s.events.publish(Event{Kind: EventSignedOut, UserID: userID})
	}
	return nil
}

func (s *Service) GetSession(ctx context.Context, token string) (*SessionData, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	hash := HashToken(token)

	if data, ok := s.cache.Get(hash); ok {
		return data, nil
	}

	sess, err := s.sessions.GetSessionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if !s.now().Before(sess.ExpiresAt) {
		if err := s.sessions.DeleteSessionByHash(ctx, hash); err != nil {
			log.Printf("[AUTH][WARN] delete expired session %s: %v", sess.ID, err)
		}
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	data := &SessionData{User: user, Session: sess}
	s.cache.Set(hash, data)
	return data, nil
}

// UpdateMetadata merges patch into the user's metadata. Cached sessions of the
// user are dropped so the next lookup sees the new values.
func (s *Service) UpdateMetadata(ctx context.Context, userID string, patch map[string]any) (map[string]any, error) {
	if len(patch) == 0 {
		u, err := s.users.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		return u.Metadata, nil
	}

	merged, err := s.users.MergeMetadata(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("merge metadata: %w", err)
	}
	s.cache.DeleteUser(userID)
	s.events.publish(Event{Kind: EventMetadataUpdated, UserID: userID})
	return merged, nil
}
