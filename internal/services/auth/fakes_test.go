package auth

import (
	"context"
	"fmt"
	"sync"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
)

// fakeStore keeps users, accounts and sessions in maps and lets tests inject errors.
type fakeStore struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*models.User
	accounts []*models.Account
	sessions map[string]*models.Session

	getSessionCalls int
	createSessErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ports.ErrDuplicate
		}
	}
	f.seq++
	u.ID = fmt.Sprintf("user-%d", f.seq)
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeStore) MergeMetadata(_ context.Context, userID string, patch map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}
	for k, v := range patch {
		u.Metadata[k] = v
	}
	out := map[string]any{}
	for k, v := range u.Metadata {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) CreateAccount(_ context.Context, a *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.ProviderID == a.ProviderID && existing.AccountID == a.AccountID {
			return ports.ErrDuplicate
		}
	}
	cp := *a
	f.accounts = append(f.accounts, &cp)
	return nil
}

func (f *fakeStore) GetAccount(_ context.Context, providerID, accountID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ProviderID == providerID && a.AccountID == accountID {
			return a, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeStore) GetUserAccount(_ context.Context, userID, providerID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.UserID == userID && a.ProviderID == providerID {
			return a, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeStore) CreateSession(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSessErr != nil {
		return f.createSessErr
	}
	f.sessions[s.TokenHash] = s
	return nil
}

func (f *fakeStore) GetSessionByHash(_ context.Context, hash string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getSessionCalls++
	s, ok := f.sessions[hash]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) DeleteSessionByHash(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, hash)
	return nil
}

// cheap parameters keep the tests fast
func testHasher() *Argon2 {
	return &Argon2{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}
