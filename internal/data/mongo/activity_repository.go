package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/activity"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

const (
	// ActivityCollectionName is the name of the activity collection in MongoDB
	ActivityCollectionName = "credit_activity"
)

// activityDocument is the stored form of an activity entry. Amounts are kept as
// Decimal128 so range queries and aggregations stay exact.
type activityDocument struct {
	TransactionID string                 `bson:"_id"`
	ProviderID    string                 `bson:"provider_id"`
	ProviderKind  shared.ProviderKind    `bson:"provider_kind"`
	Amount        primitive.Decimal128   `bson:"amount"`
	Type          shared.TransactionType `bson:"type"`
	ReferenceID   string                 `bson:"reference_id,omitempty"`
	BalanceBefore primitive.Decimal128   `bson:"balance_before"`
	BalanceAfter  primitive.Decimal128   `bson:"balance_after"`
	Metadata      map[string]string      `bson:"metadata,omitempty"`
	CreatedAt     time.Time              `bson:"created_at"`
	RecordedAt    time.Time              `bson:"recorded_at"`
}

// ActivityRepository implements activity.Repository for MongoDB
type ActivityRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewActivityRepository creates a new MongoDB activity repository
func NewActivityRepository(logger *slog.Logger, db *mongo.Database) activity.Repository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// ActivityIndexes returns the indexes GetByProvider relies on: the provider's
// entries ordered by creation time
func ActivityIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "provider_id", Value: 1},
				{Key: "provider_kind", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("provider_created_at"),
		},
	}
}

// Record upserts the entry under its transaction id
func (r *ActivityRepository) Record(ctx context.Context, entry *activity.Entry) error {
	doc, err := toDocument(entry)
	if err != nil {
		return fmt.Errorf("failed to encode activity entry: %w", err)
	}

	collection := r.db.Collection(ActivityCollectionName)
	filter := bson.M{"_id": doc.TransactionID}
	opts := options.Replace().SetUpsert(true)

	if _, err := collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		r.logger.Error("Failed to record activity entry",
			"transaction_id", doc.TransactionID,
			"provider_id", entry.ProviderID,
			"error", err)
		return fmt.Errorf("failed to record activity entry: %w", err)
	}

	return nil
}

// GetByProvider returns the provider's entries created within the window,
// newest first
func (r *ActivityRepository) GetByProvider(ctx context.Context, key account.Key, window activity.Range, limit int) ([]*activity.Entry, error) {
	collection := r.db.Collection(ActivityCollectionName)

	filter := bson.M{
		"provider_id":   key.ProviderID,
		"provider_kind": key.Kind,
		"created_at": bson.M{
			"$gte": window.From,
			"$lt":  window.To,
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get activity entries",
			"provider_id", key.ProviderID,
			"provider_kind", key.Kind,
			"error", err)
		return nil, fmt.Errorf("failed to get activity entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []activityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode activity entries",
			"provider_id", key.ProviderID,
			"error", err)
		return nil, fmt.Errorf("failed to decode activity entries: %w", err)
	}

	entries := make([]*activity.Entry, 0, len(docs))
	for i := range docs {
		entry, err := fromDocument(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode activity entry %s: %w", docs[i].TransactionID, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func toDocument(entry *activity.Entry) (*activityDocument, error) {
	amount, err := toDecimal128(entry.Amount)
	if err != nil {
		return nil, err
	}
	before, err := toDecimal128(entry.BalanceBefore)
	if err != nil {
		return nil, err
	}
	after, err := toDecimal128(entry.BalanceAfter)
	if err != nil {
		return nil, err
	}

	return &activityDocument{
		TransactionID: entry.TransactionID.String(),
		ProviderID:    entry.ProviderID,
		ProviderKind:  entry.ProviderKind,
		Amount:        amount,
		Type:          entry.Type,
		ReferenceID:   entry.ReferenceID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Metadata:      entry.Metadata,
		CreatedAt:     entry.CreatedAt,
		RecordedAt:    entry.RecordedAt,
	}, nil
}

func fromDocument(doc *activityDocument) (*activity.Entry, error) {
	id, err := uuid.Parse(doc.TransactionID)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(doc.Amount.String())
	if err != nil {
		return nil, err
	}
	before, err := decimal.NewFromString(doc.BalanceBefore.String())
	if err != nil {
		return nil, err
	}
	after, err := decimal.NewFromString(doc.BalanceAfter.String())
	if err != nil {
		return nil, err
	}

	return &activity.Entry{
		TransactionID: id,
		ProviderID:    doc.ProviderID,
		ProviderKind:  doc.ProviderKind,
		Amount:        amount,
		Type:          doc.Type,
		ReferenceID:   doc.ReferenceID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Metadata:      doc.Metadata,
		CreatedAt:     doc.CreatedAt,
		RecordedAt:    doc.RecordedAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}
