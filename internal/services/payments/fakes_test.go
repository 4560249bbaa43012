package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/repository/database"
	"debtster_portal/internal/repository/events"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeLedger plays both the debt and the payment store so balance updates and
// payment inserts stay consistent the way the Postgres transaction keeps them.
type fakeLedger struct {
	mu        sync.Mutex
	debts     map[string]*models.Debt
	payments  []models.Payment
	recordErr error
	// failNext fails that many RecordPayment calls before succeeding
	failNext    int
	recordCalls int
}

func newLedger(debts ...models.Debt) *fakeLedger {
	l := &fakeLedger{debts: map[string]*models.Debt{}}
	for i := range debts {
		d := debts[i]
		l.debts[d.ID] = &d
	}
	return l
}

func (l *fakeLedger) ListByDebtor(_ context.Context, debtorID string) ([]models.Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Debt
	for _, id := range []string{"debt-1", "debt-2", "debt-3"} {
		if d, ok := l.debts[id]; ok && d.DebtorID == debtorID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (l *fakeLedger) GetForDebtor(_ context.Context, debtorID, debtID string) (*models.Debt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.debts[debtID]
	if !ok || d.DebtorID != debtorID {
		return nil, ports.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (l *fakeLedger) RecordPayment(_ context.Context, p models.Payment) (database.RecordResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordCalls++
	if l.recordErr != nil {
		return database.RecordResult{}, l.recordErr
	}
	if l.failNext > 0 {
		l.failNext--
		return database.RecordResult{}, errors.New("deadlock detected")
	}
	d, ok := l.debts[p.DebtID]
	if !ok {
		return database.RecordResult{}, ports.ErrNotFound
	}
	for _, existing := range l.payments {
		sameKey := p.IdempotencyKey != nil && existing.IdempotencyKey != nil && *p.IdempotencyKey == *existing.IdempotencyKey
		if existing.TransactionID == p.TransactionID || sameKey {
			return database.RecordResult{Payment: existing, NewBalance: d.Balance, Duplicate: true}, nil
		}
	}
	p.ID = fmt.Sprintf("pay-%d", len(l.payments)+1)
	l.payments = append(l.payments, p)
	d.Balance = d.Balance.Sub(p.Amount)
	d.LastPaymentAmount = p.Amount
	return database.RecordResult{Payment: p, NewBalance: d.Balance}, nil
}

func (l *fakeLedger) FindByIdempotencyKey(_ context.Context, key string) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			cp := p
			return &cp, nil
		}
	}
	return nil, ports.ErrNotFound
}

type fakeGateway struct {
	captures   map[string]ports.Capture
	captureErr error
	orders     []ports.OrderRequest
	calls      int
}

func (g *fakeGateway) CreateOrder(_ context.Context, req ports.OrderRequest) (ports.Order, error) {
	g.orders = append(g.orders, req)
	return ports.Order{ID: fmt.Sprintf("ORDER-%d", len(g.orders)), Status: "CREATED", Amount: req.Amount}, nil
}

func (g *fakeGateway) CaptureOrder(_ context.Context, orderID string) (ports.Capture, error) {
	g.calls++
	if g.captureErr != nil {
		return ports.Capture{}, g.captureErr
	}
	c, ok := g.captures[orderID]
	if !ok {
		return ports.Capture{}, errors.New("unknown order")
	}
	return c, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	events    map[string]*events.PaymentEvent
	insertErr error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: map[string]*events.PaymentEvent{}}
}

func (f *fakeEvents) add(e events.PaymentEvent) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = primitive.NewObjectID()
	f.events[e.ID.Hex()] = &e
	return e.ID.Hex()
}

func (f *fakeEvents) InsertCaptured(_ context.Context, e events.PaymentEvent) (string, error) {
	f.mu.Lock()
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	e.Status = events.PaymentCaptured
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return f.add(e), nil
}

func (f *fakeEvents) MarkRecorded(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id].Status = events.PaymentRecorded
	return nil
}

func (f *fakeEvents) MarkFailed(_ context.Context, id string, cause error, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.events[id]
	e.Status = events.PaymentFailed
	e.Errors = cause.Error()
	e.Attempts++
	e.NextAttemptAt = retryAt
	return nil
}

func (f *fakeEvents) MarkAbandoned(_ context.Context, id string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[id].Status = events.PaymentAbandoned
	f.events[id].Errors = cause.Error()
	return nil
}

// ListUnrecorded mirrors the Mongo query: due events, oldest first, at most limit.
func (f *fakeEvents) ListUnrecorded(_ context.Context, cutoff, now time.Time, limit int64) ([]events.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.PaymentEvent
	for _, e := range f.events {
		captured := e.Status == events.PaymentCaptured && e.CreatedAt.Before(cutoff)
		retry := e.Status == events.PaymentFailed && !e.NextAttemptAt.After(now)
		if captured || retry {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEvents) status(txn string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.TransactionID == txn {
			return e.Status
		}
	}
	return ""
}

func (f *fakeEvents) statuses() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, e := range f.events {
		out[e.Status]++
	}
	return out
}

type fakeReceipts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeReceipts) Put(_ context.Context, key string, body []byte, contentType string) (ports.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	return ports.Meta{Key: key, Size: int64(len(body)), ContentType: contentType}, nil
}

func (f *fakeReceipts) Open(context.Context, string) (io.ReadCloser, ports.Meta, error) {
	return nil, ports.Meta{}, ports.ErrNotFound
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func completed(order, txn, amount string) ports.Capture {
	return ports.Capture{
		TransactionID: txn,
		OrderID:       order,
		Status:        ports.CaptureStatusCompleted,
		Amount:        dec(amount),
		Currency:      "USD",
	}
}
