package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"debtster_portal/internal/metrics"
	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/repository/database"
	"debtster_portal/internal/repository/events"

	"github.com/shopspring/decimal"
)

var (
	ErrNoAccounts           = errors.New("no debt accounts")
	ErrDebtNotFound         = errors.New("debt account not found")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAmountExceedsBalance = errors.New("amount exceeds balance")
	ErrCaptureFailed        = errors.New("payment capture failed")
	ErrRecordFailed         = errors.New("payment record failed")
)

// Message is the text shown to the user for err.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNoAccounts):
		return "No debt accounts found"
	case errors.Is(err, ErrDebtNotFound):
		return "The selected account could not be found."
	case errors.Is(err, ErrInvalidAmount):
		return "Please enter a valid amount"
	case errors.Is(err, ErrAmountExceedsBalance):
		return "Amount cannot exceed the current balance"
	case errors.Is(err, ErrCaptureFailed):
		return "The payment could not be completed. Please try again."
	case errors.Is(err, ErrRecordFailed):
		return "Your payment was received but could not be recorded yet. It will be applied shortly."
	default:
		return "An error occurred while processing your payment."
	}
}

type DebtStore interface {
	ListByDebtor(ctx context.Context, debtorID string) ([]models.Debt, error)
	GetForDebtor(ctx context.Context, debtorID, debtID string) (*models.Debt, error)
}

type PaymentStore interface {
	RecordPayment(ctx context.Context, p models.Payment) (database.RecordResult, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
}

type EventLog interface {
	InsertCaptured(ctx context.Context, e events.PaymentEvent) (string, error)
	MarkRecorded(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error, retryAt time.Time) error
	MarkAbandoned(ctx context.Context, eventID string, cause error) error
	ListUnrecorded(ctx context.Context, cutoff, now time.Time, limit int64) ([]events.PaymentEvent, error)
}

const (
	recordAttempts = 3
	recordBackoff  = 200 * time.Millisecond

	reconcileBatch       = 500
	maxReconcileAttempts = 8
	retryBase            = time.Minute
	retryMax             = 6 * time.Hour
)

// retryDelay is the wait before reconcile attempt n+1 of a failed event.
func retryDelay(attempt int) time.Duration {
	d := retryBase
	for i := 1; i < attempt && d < retryMax; i++ {
		d *= 2
	}
	return min(d, retryMax)
}

type Service struct {
	debts    DebtStore
	payments PaymentStore
	gateway  ports.PaymentGateway
	events   EventLog
	receipts ports.ReceiptStore
	metrics  *metrics.Metrics
	currency string
	now      func() time.Time

	recordAttempts int
	recordBackoff  time.Duration

	// pending holds captures that neither Postgres nor the event log accepted.
	pendingMu sync.Mutex
	pending   []events.PaymentEvent
}

func NewService(
	debts DebtStore,
	payments PaymentStore,
	gateway ports.PaymentGateway,
	eventLog EventLog,
	receipts ports.ReceiptStore,
	m *metrics.Metrics,
	currency string,
) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		debts:    debts,
		payments: payments,
		gateway:  gateway,
		events:   eventLog,
		receipts: receipts,
		metrics:  m,
		currency: currency,
		now:      time.Now,

		recordAttempts: recordAttempts,
		recordBackoff:  recordBackoff,
	}
}

type AccountsView struct {
	Accounts      []models.Debt   `json:"accounts"`
	SelectedID    string          `json:"selected_id"`
	DefaultAmount decimal.Decimal `json:"default_amount"`
}

// Accounts lists the debtor's debts; the first one is preselected with its amount due.
func (s *Service) Accounts(ctx context.Context, debtorID string) (*AccountsView, error) {
	debts, err := s.debts.ListByDebtor(ctx, debtorID)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	if len(debts) == 0 {
		return nil, ErrNoAccounts
	}
	return &AccountsView{
		Accounts:      debts,
		SelectedID:    debts[0].ID,
		DefaultAmount: debts[0].AmountDue,
	}, nil
}

func (s *Service) Account(ctx context.Context, debtorID, debtID string) (*models.Debt, error) {
	d, err := s.debts.GetForDebtor(ctx, debtorID, debtID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, ErrDebtNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load debt: %w", err)
	}
	return d, nil
}

func (s *Service) payable(ctx context.Context, debtorID, debtID string, amount decimal.Decimal) (*models.Debt, error) {
	if !amount.IsPositive() || amount.Exponent() < -2 {
		return nil, ErrInvalidAmount
	}
	d, err := s.Account(ctx, debtorID, debtID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(d.Balance) {
		return nil, ErrAmountExceedsBalance
	}
	return d, nil
}

type OrderResult struct {
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

func (s *Service) CreateOrder(ctx context.Context, debtorID, debtID string, amount decimal.Decimal) (*OrderResult, error) {
	d, err := s.payable(ctx, debtorID, debtID, amount)
	if err != nil {
		return nil, err
	}

	desc := "Payment for " + d.Label()
	order, err := s.gateway.CreateOrder(ctx, ports.OrderRequest{
		Amount:      amount,
		Currency:    s.currency,
		Description: desc,
		ReferenceID: d.ID,
	})
	if err != nil {
		log.Printf("[PAY][ORDER][ERR] debt=%s: %v", d.ID, err)
		s.metrics.Payment("order_failed")
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	log.Printf("[PAY][ORDER][OK] debt=%s order=%s amount=%s", d.ID, order.ID, amount.StringFixed(2))
	return &OrderResult{
		OrderID:     order.ID,
		Amount:      amount,
		Currency:    s.currency,
		Description: desc,
	}, nil
}

type CaptureRequest struct {
	DebtorID       string
	UserEmail      string
	DebtID         string
	OrderID        string
	Amount         decimal.Decimal
	IdempotencyKey string
}

type CaptureResult struct {
	Payment    models.Payment  `json:"payment"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Duplicate  bool            `json:"duplicate"`
	Redirect   string          `json:"redirect"`
}

func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, ErrCaptureFailed
	}

	if req.IdempotencyKey != "" {
		if res, ok := s.replayed(ctx, req); ok {
			return res, nil
		}
	}

	if _, err := s.payable(ctx, req.DebtorID, req.DebtID, req.Amount); err != nil {
		return nil, err
	}

	capture, err := s.gateway.CaptureOrder(ctx, req.OrderID)
	if err == nil {
		err = capture.Validate(req.Amount, s.currency)
	}
	if err != nil {
		log.Printf("[PAY][CAPTURE][ERR] debt=%s order=%s: %v", req.DebtID, req.OrderID, err)
		s.metrics.Payment("capture_failed")
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	// the money has moved; a client that goes away must not cancel the writes
	ctx = context.WithoutCancel(ctx)

	event := events.PaymentEvent{
		TransactionID:  capture.TransactionID,
		OrderID:        capture.OrderID,
		DebtorID:       req.DebtorID,
		DebtID:         req.DebtID,
		UserEmail:      req.UserEmail,
		Amount:         req.Amount.StringFixed(2),
		Currency:       s.currency,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.now().UTC(),
	}
	eventID, err := s.events.InsertCaptured(ctx, event)
	if err != nil {
		log.Printf("[PAY][MONGO][WARN] transaction=%s captured event: %v", capture.TransactionID, err)
	}

	rec, err := s.record(ctx, s.paymentFrom(event))
	if err != nil {
		log.Printf("[PAY][RECORD][ERR] transaction=%s debt=%s: %v", capture.TransactionID, req.DebtID, err)
		s.metrics.Payment("record_failed")
		s.keepForReconcile(ctx, eventID, event, err)
		return nil, ErrRecordFailed
	}

	if eventID != "" {
		if mErr := s.events.MarkRecorded(ctx, eventID); mErr != nil {
			log.Printf("[PAY][MONGO][ERR] mark recorded %s: %v", eventID, mErr)
		}
	}
	s.storeReceipt(ctx, req.DebtorID, rec)

	if rec.Duplicate {
		s.metrics.Payment("duplicate")
	} else {
		s.metrics.Payment("recorded")
	}
	log.Printf("[PAY][OK] transaction=%s debt=%s amount=%s balance=%s duplicate=%v",
		rec.Payment.TransactionID, req.DebtID, rec.Payment.Amount.StringFixed(2), rec.NewBalance.StringFixed(2), rec.Duplicate)

	return &CaptureResult{
		Payment:    rec.Payment,
		NewBalance: rec.NewBalance,
		Duplicate:  rec.Duplicate,
		Redirect:   ConfirmationURL(rec.Payment),
	}, nil
}

// record runs RecordPayment, retrying transient failures with a doubling backoff.
func (s *Service) record(ctx context.Context, p models.Payment) (database.RecordResult, error) {
	attempts := max(s.recordAttempts, 1)
	wait := s.recordBackoff
	var err error
	for i := 0; i < attempts; i++ {
		var rec database.RecordResult
		if rec, err = s.payments.RecordPayment(ctx, p); err == nil {
			return rec, nil
		}
		if errors.Is(err, ports.ErrNotFound) || i == attempts-1 {
			break
		}
		log.Printf("[PAY][RECORD][RETRY] transaction=%s attempt=%d: %v", p.TransactionID, i+1, err)
		select {
		case <-ctx.Done():
			return database.RecordResult{}, errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return database.RecordResult{}, err
}

// keepForReconcile leaves an unrecorded capture where Reconcile will find it.
// If the event log refuses it as well, the capture is held in process.
func (s *Service) keepForReconcile(ctx context.Context, eventID string, e events.PaymentEvent, cause error) {
	retryAt := s.now().Add(retryDelay(1))
	if eventID == "" {
		id, err := s.events.InsertCaptured(ctx, e)
		if err != nil {
			s.holdPending(e)
			log.Printf("[PAY][PENDING] transaction=%s order=%s debt=%s amount=%s held in memory: event log: %v",
				e.TransactionID, e.OrderID, e.DebtID, e.Amount, err)
			return
		}
		eventID = id
	}
	if err := s.events.MarkFailed(ctx, eventID, cause, retryAt); err != nil {
		log.Printf("[PAY][MONGO][ERR] mark failed %s: %v", eventID, err)
	}
}

func (s *Service) takePending() []events.PaymentEvent {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *Service) holdPending(e events.PaymentEvent) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = append(s.pending, e)
}

// replayed answers a resubmitted capture from the payment already stored under its key.
func (s *Service) replayed(ctx context.Context, req CaptureRequest) (*CaptureResult, bool) {
	p, err := s.payments.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			log.Printf("[PAY][WARN] idempotency lookup key=%s: %v", req.IdempotencyKey, err)
		}
		return nil, false
	}
	d, err := s.Account(ctx, req.DebtorID, p.DebtID)
	if err != nil {
		return nil, false
	}
	s.metrics.Payment("duplicate")
	return &CaptureResult{
		Payment:    *p,
		NewBalance: d.Balance,
		Duplicate:  true,
		Redirect:   ConfirmationURL(*p),
	}, true
}

func (s *Service) paymentFrom(e events.PaymentEvent) models.Payment {
	note := models.PaymentNotePortal
	p := models.Payment{
		DebtID:        e.DebtID,
		Amount:        decimal.RequireFromString(e.Amount),
		PaymentDate:   s.now().UTC(),
		PaymentMethod: models.PaymentMethodPayPal,
		TransactionID: e.TransactionID,
		Status:        models.PaymentStatusCompleted,
		Notes:         &note,
	}
	if e.IdempotencyKey != "" {
		key := e.IdempotencyKey
		p.IdempotencyKey = &key
	}
	if !e.CreatedAt.IsZero() {
		p.PaymentDate = e.CreatedAt.UTC()
	}
	return p
}

type receipt struct {
	TransactionID string    `json:"transaction_id"`
	DebtID        string    `json:"debt_id"`
	Amount        string    `json:"amount"`
	NewBalance    string    `json:"new_balance"`
	Method        string    `json:"payment_method"`
	Status        string    `json:"status"`
	PaidAt        time.Time `json:"paid_at"`
}

func (s *Service) storeReceipt(ctx context.Context, debtorID string, rec database.RecordResult) {
	if s.receipts == nil {
		return
	}
	body, err := json.Marshal(receipt{
		TransactionID: rec.Payment.TransactionID,
		DebtID:        rec.Payment.DebtID,
		Amount:        rec.Payment.Amount.StringFixed(2),
		NewBalance:    rec.NewBalance.StringFixed(2),
		Method:        rec.Payment.PaymentMethod,
		Status:        rec.Payment.Status,
		PaidAt:        rec.Payment.PaymentDate,
	})
	if err != nil {
		log.Printf("[PAY][RECEIPT][ERR] encode: %v", err)
		return
	}
	if _, err := s.receipts.Put(ctx, ports.ReceiptKey(debtorID, rec.Payment.TransactionID), body, "application/json"); err != nil {
		log.Printf("[PAY][RECEIPT][WARN] transaction=%s: %v", rec.Payment.TransactionID, err)
	}
}

func ConfirmationURL(p models.Payment) string {
	q := url.Values{}
	q.Set("amount", p.Amount.StringFixed(2))
	q.Set("transaction", p.TransactionID)
	return "/confirmation?" + q.Encode()
}

type ReconcileReport struct {
	Scanned    int
	Recorded   int
	Duplicates int
	Failed     int
	Abandoned  int
}

// Reconcile replays captures that never made it into Postgres: captures held
// in memory first, then captured events older than olderThan and failed events
// whose retry is due. RecordPayment is idempotent by transaction id, so events
// that were in fact recorded only get their status fixed. Events that cannot
// succeed are abandoned instead of being retried forever.
func (s *Service) Reconcile(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	var rep ReconcileReport
	now := s.now()

	s.reconcilePending(ctx, &rep)

	due, err := s.events.ListUnrecorded(ctx, now.Add(-olderThan), now, reconcileBatch)
	if err != nil {
		return rep, fmt.Errorf("list unrecorded events: %w", err)
	}

	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		id := e.ID.Hex()

		if _, err := decimal.NewFromString(e.Amount); err != nil || e.TransactionID == "" || e.DebtID == "" {
			rep.Abandoned++
			log.Printf("[RECONCILE][ABANDON] event=%s malformed: amount=%q transaction=%q", id, e.Amount, e.TransactionID)
			if mErr := s.events.MarkAbandoned(ctx, id, errors.New("malformed event")); mErr != nil {
				log.Printf("[RECONCILE][MONGO][ERR] event=%s: %v", id, mErr)
			}
			continue
		}

		rec, err := s.payments.RecordPayment(ctx, s.paymentFrom(e))
		if err != nil {
			s.reconcileFailed(ctx, &rep, e, err)
			continue
		}

		s.reconciled(ctx, &rep, e, rec)
		if mErr := s.events.MarkRecorded(ctx, id); mErr != nil {
			log.Printf("[RECONCILE][MONGO][ERR] event=%s: %v", id, mErr)
		}
	}

	log.Printf("[RECONCILE][DONE] scanned=%d recorded=%d duplicates=%d failed=%d abandoned=%d",
		rep.Scanned, rep.Recorded, rep.Duplicates, rep.Failed, rep.Abandoned)
	return rep, nil
}

func (s *Service) reconcilePending(ctx context.Context, rep *ReconcileReport) {
	for _, e := range s.takePending() {
		rep.Scanned++
		rec, err := s.payments.RecordPayment(ctx, s.paymentFrom(e))
		if err == nil {
			s.reconciled(ctx, rep, e, rec)
			if id, iErr := s.events.InsertCaptured(ctx, e); iErr == nil {
				_ = s.events.MarkRecorded(ctx, id)
			}
			continue
		}

		rep.Failed++
		log.Printf("[RECONCILE][ERR] pending transaction=%s: %v", e.TransactionID, err)
		// hand it to the event log as soon as that accepts it
		id, iErr := s.events.InsertCaptured(ctx, e)
		if iErr != nil {
			s.holdPending(e)
			continue
		}
		if mErr := s.events.MarkFailed(ctx, id, err, s.now().Add(retryDelay(1))); mErr != nil {
			log.Printf("[RECONCILE][MONGO][ERR] event=%s: %v", id, mErr)
		}
	}
}

func (s *Service) reconciled(ctx context.Context, rep *ReconcileReport, e events.PaymentEvent, rec database.RecordResult) {
	if rec.Duplicate {
		rep.Duplicates++
		return
	}
	rep.Recorded++
	s.storeReceipt(ctx, e.DebtorID, rec)
}

func (s *Service) reconcileFailed(ctx context.Context, rep *ReconcileReport, e events.PaymentEvent, cause error) {
	id := e.ID.Hex()
	attempt := e.Attempts + 1
	if errors.Is(cause, ports.ErrNotFound) || attempt >= maxReconcileAttempts {
		rep.Abandoned++
		log.Printf("[RECONCILE][ABANDON] event=%s transaction=%s attempts=%d: %v", id, e.TransactionID, attempt, cause)
		if mErr := s.events.MarkAbandoned(ctx, id, cause); mErr != nil {
			log.Printf("[RECONCILE][MONGO][ERR] event=%s: %v", id, mErr)
		}
		return
	}

	rep.Failed++
	log.Printf("[RECONCILE][ERR] event=%s transaction=%s attempt=%d: %v", id, e.TransactionID, attempt, cause)
	if mErr := s.events.MarkFailed(ctx, id, cause, s.now().Add(retryDelay(attempt))); mErr != nil {
		log.Printf("[RECONCILE][MONGO][ERR] event=%s: %v", id, mErr)
	}
}
