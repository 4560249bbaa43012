package verification

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"debtster_portal/internal/metrics"
	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/repository/events"
	"debtster_portal/internal/utils"
)

var (
	ErrMissingFields   = errors.New("loan number or phone and date of birth are required")
	ErrInvalidBirthday = errors.New("invalid date of birth")
	ErrDebtorNotFound  = errors.New("debtor not found")
	ErrEmailMismatch   = errors.New("email does not match")
	ErrStoreWrite      = errors.New("verification store failure")
	ErrTooManyAttempts = errors.New("too many verification attempts")
)

// Message is the text shown to the user for err. The not-found text stays
// vague so a caller cannot tell which field was wrong.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "Please enter your loan number or phone number and your date of birth."
	case errors.Is(err, ErrInvalidBirthday):
		return "Please enter your date of birth as YYYY-MM-DD."
	case errors.Is(err, ErrDebtorNotFound):
		return "We could not verify your identity. Please check your information and try again."
	case errors.Is(err, ErrEmailMismatch):
		return "The email provided does not match our records."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many verification attempts. Please wait a few minutes and try again."
	default:
		return "An error occurred while verifying your identity."
	}
}

const (
	MethodLoanNumber = "loan_number"
	MethodPhone      = "phone"
)

type Request struct {
	LoanNumber string `json:"loan_number"`
	Phone      string `json:"phone"`
	Birthday   string `json:"birthday"`
	Email      string `json:"email"`
}

type Result struct {
	DebtorID string `json:"debtor_id"`
	Redirect string `json:"redirect"`
}

type DebtorFinder interface {
	FindByLoanNumber(ctx context.Context, loanNumber string, birthday time.Time) (*models.Debtor, error)
	FindByPhone(ctx context.Context, phone string, birthday time.Time) (*models.Debtor, error)
}

type VerificationStore interface {
	FindVerified(ctx context.Context, userID string) (*models.Verification, error)
	Upsert(ctx context.Context, v models.Verification) error
}

type ProfileStore interface {
	Upsert(ctx context.Context, p models.UserProfile) error
}

type MetadataWriter interface {
	UpdateMetadata(ctx context.Context, userID string, patch map[string]any) (map[string]any, error)
}

type AttemptLog interface {
	LogAttempt(ctx context.Context, a events.Attempt)
	CountRecentFailures(ctx context.Context, userID string, since time.Time) (int64, error)
}

type Throttle struct {
	MaxFailures int
	Window      time.Duration
	Rate        float64
	Burst       int
}

type Service struct {
	debtors       DebtorFinder
	verifications VerificationStore
	profiles      ProfileStore
	metadata      MetadataWriter
	attempts      AttemptLog
	metrics       *metrics.Metrics

	throttle Throttle
	limiters *limiters
	now      func() time.Time
}

func NewService(
	debtors DebtorFinder,
	verifications VerificationStore,
	profiles ProfileStore,
	metadata MetadataWriter,
	attempts AttemptLog,
	m *metrics.Metrics,
	throttle Throttle,
) *Service {
	return &Service{
		debtors:       debtors,
		verifications: verifications,
		profiles:      profiles,
		metadata:      metadata,
		attempts:      attempts,
		metrics:       m,
		throttle:      throttle,
		limiters:      newLimiters(throttle.Rate, throttle.Burst),
		now:           time.Now,
	}
}

// Status reports whether userID already has a verified debtor link.
func (s *Service) Status(ctx context.Context, userID string) (verified bool, debtorID string, err error) {
	v, err := s.verifications.FindVerified(ctx, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if v.DebtorID == nil {
		return false, "", nil
	}
	return v.Verified, *v.DebtorID, nil
}

func (s *Service) Verify(ctx context.Context, userID, displayEmail string, req Request) (*Result, error) {
	method := MethodLoanNumber
	if strings.TrimSpace(req.LoanNumber) == "" {
		method = MethodPhone
	}

	if err := s.checkThrottle(ctx, userID); err != nil {
		s.record(ctx, userID, method, events.AttemptThrottled)
		return nil, err
	}

	birthday, err := ParseBirthday(req.Birthday)
	if err != nil {
		return nil, err
	}
	if method == MethodPhone && strings.TrimSpace(req.Phone) == "" {
		return nil, ErrMissingFields
	}

	var debtor *models.Debtor
	if method == MethodLoanNumber {
		debtor, err = s.debtors.FindByLoanNumber(ctx, req.LoanNumber, birthday)
	} else {
		debtor, err = s.debtors.FindByPhone(ctx, req.Phone, birthday)
	}
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.record(ctx, userID, method, events.AttemptNotFound)
			return nil, ErrDebtorNotFound
		}
		log.Printf("[VERIFY][ERR] user=%s lookup: %v", userID, err)
		s.record(ctx, userID, method, events.AttemptError)
		return nil, ErrStoreWrite
	}

	if email := utils.NormalizeEmail(req.Email); email != "" && email != utils.NormalizeEmail(debtor.Email) {
		s.record(ctx, userID, method, events.AttemptEmailMismatch)
		return nil, ErrEmailMismatch
	}

	now := s.now().UTC()
	vMethod := models.VerificationMethodIdentity
	if err := s.verifications.Upsert(ctx, models.Verification{
		UserID:             userID,
		DebtorID:           &debtor.ID,
		Verified:           true,
		VerificationDate:   &now,
		VerificationMethod: &vMethod,
	}); err != nil {
		log.Printf("[VERIFY][ERR] user=%s upsert verification: %v", userID, err)
		s.record(ctx, userID, method, events.AttemptError)
		return nil, ErrStoreWrite
	}

	profile := models.UserProfile{ID: userID}
	if e := utils.NormalizeEmail(displayEmail); e != "" {
		profile.Email = &e
	} else if debtor.Email != "" {
		e := debtor.Email
		profile.Email = &e
	}
	if name := utils.FullName(debtor.FirstName, debtor.LastName); name != "" {
		profile.FullName = &name
	}
	// the verification row is committed; the display profile is best effort
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		log.Printf("[VERIFY][WARN] user=%s upsert profile: %v", userID, err)
	}

	if s.metadata != nil {
		if _, err := s.metadata.UpdateMetadata(ctx, userID, map[string]any{
			"debtor_id": debtor.ID,
			"verified":  true,
		}); err != nil {
			log.Printf("[VERIFY][WARN] user=%s session metadata: %v", userID, err)
		}
	}

	s.record(ctx, userID, method, events.AttemptSuccess)
	log.Printf("[VERIFY][OK] user=%s debtor=%s method=%s", userID, debtor.ID, method)
	return &Result{DebtorID: debtor.ID, Redirect: "/dashboard"}, nil
}

func (s *Service) checkThrottle(ctx context.Context, userID string) error {
	if !s.limiters.allow(userID) {
		return ErrTooManyAttempts
	}
	if s.throttle.MaxFailures <= 0 || s.throttle.Window <= 0 || s.attempts == nil {
		return nil
	}

	since := s.now().Add(-s.throttle.Window)
	n, err := s.attempts.CountRecentFailures(ctx, userID, since)
	if err != nil {
		// the audit store being down must not lock users out
		log.Printf("[VERIFY][WARN] user=%s count failures: %v", userID, err)
		return nil
	}
	if n >= int64(s.throttle.MaxFailures) {
		return ErrTooManyAttempts
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID, method, result string) {
	s.metrics.VerificationAttempt(result)
	if s.attempts != nil {
		s.attempts.LogAttempt(ctx, events.Attempt{
			UserID:    userID,
			Method:    method,
			Result:    result,
			CreatedAt: s.now().UTC(),
		})
	}
}

// ParseBirthday accepts YYYY-MM-DD and MM/DD/YYYY.
func ParseBirthday(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingFields
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidBirthday
}
