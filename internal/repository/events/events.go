package events

import (
	"context"
	"fmt"
	"log"
	"time"

	mg "debtster_portal/internal/config/connections/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	VerificationAttemptsCollection = "verification_attempts"
	PaymentEventsCollection        = "payment_events"
)

const (
	AttemptSuccess       = "success"
	AttemptNotFound      = "not_found"
	AttemptEmailMismatch = "email_mismatch"
	AttemptError         = "error"
	AttemptThrottled     = "throttled"
)

const (
	PaymentCaptured = "captured"
	PaymentRecorded = "recorded"
	PaymentFailed   = "failed"

	// PaymentAbandoned is terminal: reconciliation no longer picks the event up.
	PaymentAbandoned = "abandoned"
)

// Attempt is one identity verification submission. Submitted values are not stored.
type Attempt struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Method    string    `bson:"method" json:"method"`
	Result    string    `bson:"result" json:"result"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// PaymentEvent carries enough of a processor capture to replay it into Postgres.
type PaymentEvent struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TransactionID  string             `bson:"transaction_id" json:"transaction_id"`
	OrderID        string             `bson:"order_id" json:"order_id"`
	DebtorID       string             `bson:"debtor_id" json:"debtor_id"`
	DebtID         string             `bson:"debt_id" json:"debt_id"`
	UserEmail      string             `bson:"user_email" json:"user_email"`
	Amount         string             `bson:"amount" json:"amount"`
	Currency       string             `bson:"currency" json:"currency"`
	IdempotencyKey string             `bson:"idempotency_key" json:"idempotency_key"`
	Status         string             `bson:"status" json:"status"`
	Errors         string             `bson:"errors" json:"errors"`
	Attempts       int                `bson:"attempts" json:"attempts"`
	NextAttemptAt  time.Time          `bson:"next_attempt_at,omitempty" json:"next_attempt_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

type Store struct {
	m *mg.Mongo
}

func NewStore(m *mg.Mongo) *Store {
	return &Store{m: m}
}

func (s *Store) ready() error {
	if s == nil || s.m == nil || s.m.Database == nil {
		return mongo.ErrClientDisconnected
	}
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.m.EnsureIndexes(ctx, VerificationAttemptsCollection,
		bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	); err != nil {
		return fmt.Errorf("%s indexes: %w", VerificationAttemptsCollection, err)
	}
	if err := s.m.EnsureIndexes(ctx, PaymentEventsCollection,
		bson.D{{Key: "transaction_id", Value: 1}},
		bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}},
	); err != nil {
		return fmt.Errorf("%s indexes: %w", PaymentEventsCollection, err)
	}
	return nil
}

func (s *Store) InsertAttempt(ctx context.Context, a Attempt) error {
	if err := s.ready(); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	doc := bson.D{
		{Key: "user_id", Value: a.UserID},
		{Key: "method", Value: a.Method},
		{Key: "result", Value: a.Result},
		{Key: "created_at", Value: a.CreatedAt},
	}
	_, err := s.m.Database.Collection(VerificationAttemptsCollection).InsertOne(ctx, doc, options.InsertOne())
	return err
}

// CountRecentFailures counts failed attempts of userID since the given time.
func (s *Store) CountRecentFailures(ctx context.Context, userID string, since time.Time) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	filter := bson.M{
		"user_id":    userID,
		"result":     bson.M{"$in": bson.A{AttemptNotFound, AttemptEmailMismatch}},
		"created_at": bson.M{"$gte": since},
	}
	return s.m.Database.Collection(VerificationAttemptsCollection).CountDocuments(ctx, filter)
}

func (s *Store) InsertCaptured(ctx context.Context, e PaymentEvent) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Status = PaymentCaptured

	doc := bson.D{
		{Key: "transaction_id", Value: e.TransactionID},
		{Key: "order_id", Value: e.OrderID},
		{Key: "debtor_id", Value: e.DebtorID},
		{Key: "debt_id", Value: e.DebtID},
		{Key: "user_email", Value: e.UserEmail},
		{Key: "amount", Value: e.Amount},
		{Key: "currency", Value: e.Currency},
		{Key: "idempotency_key", Value: e.IdempotencyKey},
		{Key: "status", Value: e.Status},
		{Key: "errors", Value: ""},
		{Key: "attempts", Value: 0},
		{Key: "created_at", Value: e.CreatedAt},
		{Key: "updated_at", Value: e.UpdatedAt},
	}

	res, err := s.m.Database.Collection(PaymentEventsCollection).InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, eventID, status, errText string) error {
	return s.updatePayment(ctx, eventID, bson.M{
		"$set": bson.M{
			"status":     status,
			"errors":     errText,
			"updated_at": time.Now().UTC(),
		},
	})
}

func (s *Store) updatePayment(ctx context.Context, eventID string, update bson.M) error {
	if err := s.ready(); err != nil {
		return err
	}
	if eventID == "" {
		return fmt.Errorf("empty eventID")
	}
	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return fmt.Errorf("bad event id %q: %w", eventID, err)
	}

	res, err := s.m.Database.Collection(PaymentEventsCollection).UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no payment event found with id %s", eventID)
	}
	return nil
}

func causeText(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func (s *Store) MarkRecorded(ctx context.Context, eventID string) error {
	return s.UpdatePaymentStatus(ctx, eventID, PaymentRecorded, "")
}

// MarkFailed counts a failed record attempt and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, eventID string, cause error, retryAt time.Time) error {
	return s.updatePayment(ctx, eventID, bson.M{
		"$set": bson.M{
			"status":          PaymentFailed,
			"errors":          causeText(cause),
			"next_attempt_at": retryAt.UTC(),
			"updated_at":      time.Now().UTC(),
		},
		"$inc": bson.M{"attempts": 1},
	})
}

func (s *Store) MarkAbandoned(ctx context.Context, eventID string, cause error) error {
	return s.UpdatePaymentStatus(ctx, eventID, PaymentAbandoned, causeText(cause))
}

// ListUnrecorded returns captured events created before cutoff and failed
// events whose retry is due at now, oldest first. Abandoned events are skipped.
func (s *Store) ListUnrecorded(ctx context.Context, cutoff, now time.Time, limit int64) ([]PaymentEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.m.Database.Collection(PaymentEventsCollection).Find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"status": PaymentCaptured, "created_at": bson.M{"$lt": cutoff}},
			bson.M{"status": PaymentFailed, "next_attempt_at": bson.M{"$lte": now}},
		},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]PaymentEvent, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LogAttempt writes the attempt and only logs on failure.
func (s *Store) LogAttempt(ctx context.Context, a Attempt) {
	if s == nil || s.m == nil {
		return
	}
	if err := s.InsertAttempt(ctx, a); err != nil {
		log.Printf("[VERIFY][MONGO][ERR] user=%s result=%s err=%v", a.UserID, a.Result, err)
	}
}
