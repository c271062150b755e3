package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/database"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository defines persistence operations for notifications.
type Repository interface {
	InsertMany(ctx context.Context, ns []*models.Notification) error
	ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, p models.Pagination) (models.Page[models.Notification], error)
	CountUnread(ctx context.Context, recipient string) (int64, error)
	MarkRead(ctx context.Context, id, recipient string, at time.Time) error
	MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error)
	Delete(ctx context.Context, id, recipient string) error
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) InsertMany(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(ns))
	for _, n := range ns {
		docs = append(docs, n)
	}
	_, err := r.col.InsertMany(ctx, docs)
	return database.WrapWriteErr("insert notifications", err)
}

func (r *MongoRepository) ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, p models.Pagination) (models.Page[models.Notification], error) {
	filter := bson.M{"recipient": recipient}
	if unreadOnly {
		filter["isRead"] = false
	}
	return database.FindPage[models.Notification](ctx, r.col, filter, bson.D{{Key: "createdAt", Value: -1}}, p)
}

func (r *MongoRepository) CountUnread(ctx context.Context, recipient string) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"recipient": recipient, "isRead": false})
}

func (r *MongoRepository) MarkRead(ctx context.Context, id, recipient string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "recipient": recipient},
		bson.M{"$set": bson.M{"isRead": true, "readAt": at}},
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *MongoRepository) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"recipient": recipient, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "readAt": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id, recipient string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "recipient": recipient})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}
