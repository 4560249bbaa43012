package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/repository/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDebtors struct {
	debtors []models.Debtor
	err     error
}

func (f *fakeDebtors) find(match func(models.Debtor) bool) (*models.Debtor, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, d := range f.debtors {
		if match(d) {
			d := d
			return &d, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (f *fakeDebtors) FindByLoanNumber(_ context.Context, loan string, birthday time.Time) (*models.Debtor, error) {
	return f.find(func(d models.Debtor) bool {
		return d.LoanNumber == loan && d.Birthday != nil && d.Birthday.Equal(birthday)
	})
}

func (f *fakeDebtors) FindByPhone(_ context.Context, phone string, birthday time.Time) (*models.Debtor, error) {
	return f.find(func(d models.Debtor) bool {
		return d.Phone == phone && d.Birthday != nil && d.Birthday.Equal(birthday)
	})
}

type fakeVerifications struct {
	rows      map[string]models.Verification
	upsertErr error
}

func (f *fakeVerifications) FindVerified(_ context.Context, userID string) (*models.Verification, error) {
	v, ok := f.rows[userID]
	if !ok || !v.Verified {
		return nil, ports.ErrNotFound
	}
	return &v, nil
}

func (f *fakeVerifications) Upsert(_ context.Context, v models.Verification) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[v.UserID] = v
	return nil
}

type fakeProfiles struct {
	rows      map[string]models.UserProfile
	upsertErr error
}

func (f *fakeProfiles) Upsert(_ context.Context, p models.UserProfile) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[p.ID] = p
	return nil
}

type fakeMetadata struct {
	patches []map[string]any
}

func (f *fakeMetadata) UpdateMetadata(_ context.Context, _ string, patch map[string]any) (map[string]any, error) {
	f.patches = append(f.patches, patch)
	return patch, nil
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts []events.Attempt
	countErr error
}

func (f *fakeAttempts) LogAttempt(_ context.Context, a events.Attempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
}

func (f *fakeAttempts) CountRecentFailures(_ context.Context, userID string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, a := range f.attempts {
		failed := a.Result == events.AttemptNotFound || a.Result == events.AttemptEmailMismatch
		if a.UserID == userID && failed && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fixture struct {
	svc      *Service
	debtors  *fakeDebtors
	verif    *fakeVerifications
	profiles *fakeProfiles
	meta     *fakeMetadata
	attempts *fakeAttempts
}

func newFixture(throttle Throttle) *fixture {
	birthday := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fixture{
		debtors: &fakeDebtors{debtors: []models.Debtor{{
			ID:         "debtor-1",
			FirstName:  "Jane",
			LastName:   "Doe",
			Email:      "Jane@Example.com",
			Phone:      "5550102000",
			Birthday:   &birthday,
			LoanNumber: "L1",
		}}},
		verif:    &fakeVerifications{rows: map[string]models.Verification{}},
		profiles: &fakeProfiles{rows: map[string]models.UserProfile{}},
		meta:     &fakeMetadata{},
		attempts: &fakeAttempts{},
	}
	f.svc = NewService(f.debtors, f.verif, f.profiles, f.meta, f.attempts, nil, throttle)
	return f
}

func TestVerify_LoanNumberMatch(t *testing.T) {
	f := newFixture(Throttle{})
	ctx := context.Background()

	res, err := f.svc.Verify(ctx, "user-1", "jane@example.com", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "debtor-1", res.DebtorID)
	assert.Equal(t, "/dashboard", res.Redirect)

	v := f.verif.rows["user-1"]
	assert.True(t, v.Verified)
	require.NotNil(t, v.DebtorID)
	assert.Equal(t, "debtor-1", *v.DebtorID)
	require.NotNil(t, v.VerificationMethod)
	assert.Equal(t, models.VerificationMethodIdentity, *v.VerificationMethod)

	p := f.profiles.rows["user-1"]
	require.NotNil(t, p.FullName)
	assert.Equal(t, "Jane Doe", *p.FullName)

	require.Len(t, f.meta.patches, 1)
	assert.Equal(t, "debtor-1", f.meta.patches[0]["debtor_id"])

	verified, debtorID, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "debtor-1", debtorID)
}

func TestVerify_PhoneAndSlashBirthday(t *testing.T) {
	f := newFixture(Throttle{})
	res, err := f.svc.Verify(context.Background(), "user-1", "", Request{Phone: "5550102000", Birthday: "01/01/1990"})
	require.NoError(t, err)
	assert.Equal(t, "debtor-1", res.DebtorID)
}

func TestVerify_MismatchWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"wrong loan", Request{LoanNumber: "L2", Birthday: "1990-01-01"}, ErrDebtorNotFound},
		{"wrong birthday", Request{LoanNumber: "L1", Birthday: "1990-01-02"}, ErrDebtorNotFound},
		{"wrong email", Request{LoanNumber: "L1", Birthday: "1990-01-01", Email: "other@example.com"}, ErrEmailMismatch},
		{"missing birthday", Request{LoanNumber: "L1"}, ErrMissingFields},
		{"missing keys", Request{Birthday: "1990-01-01"}, ErrMissingFields},
		{"bad birthday", Request{LoanNumber: "L1", Birthday: "yesterday"}, ErrInvalidBirthday},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(Throttle{})
			_, err := f.svc.Verify(context.Background(), "user-1", "", tc.req)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.verif.rows)
			assert.Empty(t, f.profiles.rows)
			assert.Empty(t, f.meta.patches)
		})
	}
}

func TestVerify_EmailCaseInsensitive(t *testing.T) {
	f := newFixture(Throttle{})
	_, err := f.svc.Verify(context.Background(), "user-1", "", Request{LoanNumber: "L1", Birthday: "1990-01-01", Email: " JANE@example.COM "})
	require.NoError(t, err)
}

func TestVerify_StoreWriteFailure(t *testing.T) {
	f := newFixture(Throttle{})
	f.verif.upsertErr = errors.New("connection reset")

	_, err := f.svc.Verify(context.Background(), "user-1", "", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.ErrorIs(t, err, ErrStoreWrite)
	assert.Equal(t, "An error occurred while verifying your identity.", Message(err))
}

func TestVerify_ProfileWriteFailureStillVerifies(t *testing.T) {
	f := newFixture(Throttle{})
	f.profiles.upsertErr = errors.New("connection reset")
	ctx := context.Background()

	res, err := f.svc.Verify(ctx, "user-1", "jane@example.com", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "debtor-1", res.DebtorID)
	assert.Equal(t, "/dashboard", res.Redirect)
	assert.Empty(t, f.profiles.rows)
	require.Len(t, f.meta.patches, 1)

	last := f.attempts.attempts[len(f.attempts.attempts)-1]
	assert.Equal(t, events.AttemptSuccess, last.Result)

	verified, debtorID, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "debtor-1", debtorID)
}

func TestVerify_FailureWindowThrottles(t *testing.T) {
	f := newFixture(Throttle{MaxFailures: 2, Window: time.Minute})
	ctx := context.Background()
	bad := Request{LoanNumber: "nope", Birthday: "1990-01-01"}

	for i := 0; i < 2; i++ {
		_, err := f.svc.Verify(ctx, "user-1", "", bad)
		require.ErrorIs(t, err, ErrDebtorNotFound)
	}

	_, err := f.svc.Verify(ctx, "user-1", "", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// other users are unaffected
	_, err = f.svc.Verify(ctx, "user-2", "", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.NoError(t, err)

	// the window slides
	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = f.svc.Verify(ctx, "user-1", "", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.NoError(t, err)
}

func TestVerify_RateLimit(t *testing.T) {
	f := newFixture(Throttle{Rate: 0.001, Burst: 1})
	ctx := context.Background()
	req := Request{LoanNumber: "L1", Birthday: "1990-01-01"}

	_, err := f.svc.Verify(ctx, "user-1", "", req)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, "user-1", "", req)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	last := f.attempts.attempts[len(f.attempts.attempts)-1]
	assert.Equal(t, events.AttemptThrottled, last.Result)
}

func TestVerify_AttemptLogDownDoesNotBlock(t *testing.T) {
	f := newFixture(Throttle{MaxFailures: 1, Window: time.Minute})
	f.attempts.countErr = errors.New("mongo unavailable")

	_, err := f.svc.Verify(context.Background(), "user-1", "", Request{LoanNumber: "L1", Birthday: "1990-01-01"})
	require.NoError(t, err)
}

func TestStatus_NotVerified(t *testing.T) {
	f := newFixture(Throttle{})
	verified, debtorID, err := f.svc.Status(context.Background(), "user-x")
	require.NoError(t, err)
	assert.False(t, verified)
	assert.Empty(t, debtorID)
}
