package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/orderkit/cost-engine/pkg/outbox"
)

// Repository is the MongoDB implementation of the outbox store
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates the repository and ensures its indexes
func NewRepository(db *mongo.Database) (*Repository, error) {
	collection := db.Collection("outbox_events")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "aggregateId", Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating outbox indexes: %w", err)
	}

	return &Repository{collection: collection}, nil
}

// Save persists a single outbox event
func (r *Repository) Save(ctx context.Context, event *outbox.Event) error {
	_, err := r.collection.InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("inserting outbox event: %w", err)
	}
	return nil
}

// SaveAll persists multiple outbox events
func (r *Repository) SaveAll(ctx context.Context, events []*outbox.Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, len(events))
	for i, e := range events {
		docs[i] = e
	}
	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("inserting outbox events: %w", err)
	}
	return nil
}

// FindPending returns pending events in creation order
func (r *Repository) FindPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"status": outbox.StatusPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("finding pending outbox events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decoding outbox events: %w", err)
	}
	return events, nil
}

// MarkPublished marks an event as published
func (r *Repository) MarkPublished(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{
			"status":      outbox.StatusPublished,
			"publishedAt": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("marking outbox event published: %w", err)
	}
	return nil
}

// MarkFailed increments the retry count, flipping to failed once retries
// are exhausted.
func (r *Repository) MarkFailed(ctx context.Context, eventID string, publishErr error) error {
	var event outbox.Event
	if err := r.collection.FindOne(ctx, bson.M{"_id": eventID}).Decode(&event); err != nil {
		return fmt.Errorf("loading outbox event: %w", err)
	}

	update := bson.M{"$inc": bson.M{"retryCount": 1}}
	set := bson.M{}
	if publishErr != nil {
		set["lastError"] = publishErr.Error()
	}
	if event.RetryCount+1 >= event.MaxRetries {
		set["status"] = outbox.StatusFailed
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("marking outbox event failed: %w", err)
	}
	return nil
}

// CountPending counts events awaiting publication
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"status": outbox.StatusPending})
	if err != nil {
		return 0, fmt.Errorf("counting pending outbox events: %w", err)
	}
	return count, nil
}

// DeletePublishedBefore removes published events older than the retention window
func (r *Repository) DeletePublishedBefore(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"status":      outbox.StatusPublished,
		"publishedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("pruning outbox events: %w", err)
	}
	return result.DeletedCount, nil
}
