package announcements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/database"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Filter narrows announcement listings. Feed restricts the result to
// published, unexpired, active announcements as of Now.
type Filter struct {
	Category string
	Priority string
	Status   string
	Search   string
	Feed     bool
	Now      time.Time
}

type Repository interface {
	Create(ctx context.Context, a *models.Announcement) error
	Update(ctx context.Context, a *models.Announcement) error
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Announcement], error)
	IncrementViews(ctx context.Context, id string) (*models.Announcement, error)
	AddLike(ctx context.Context, id, userID string) (*models.Announcement, error)
	RemoveLike(ctx context.Context, id, userID string) (*models.Announcement, error)
	CountPublished(ctx context.Context, now time.Time) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, a *models.Announcement) error {
	_, err := r.col.InsertOne(ctx, a)
	return database.WrapWriteErr("insert announcement", err)
}

// Update writes the editable fields; likes and views are only changed by
// their own atomic updates.
func (r *MongoRepository) Update(ctx context.Context, a *models.Announcement) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{"$set": bson.M{
		"title":       a.Title,
		"content":     a.Content,
		"category":    a.Category,
		"priority":    a.Priority,
		"status":      a.Status,
		"isPinned":    a.IsPinned,
		"publishedAt": a.PublishedAt,
		"expiresAt":   a.ExpiresAt,
		"isActive":    a.IsActive,
		"updatedAt":   a.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("announcement %s: %w", a.ID, models.ErrNotFound)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	return database.FindByID[models.Announcement](ctx, r.col, id)
}

func feedFilter(now time.Time) bson.M {
	return bson.M{
		"isActive": true,
		"status":   models.AnnouncementPublished,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$exists": false}},
			bson.M{"expiresAt": nil},
			bson.M{"expiresAt": bson.M{"$gt": now}},
		},
	}
}

func (r *MongoRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Announcement], error) {
	filter := bson.M{}
	sort := bson.D{{Key: "createdAt", Value: -1}}
	if f.Feed {
		filter = feedFilter(f.Now)
		sort = bson.D{{Key: "isPinned", Value: -1}, {Key: "publishedAt", Value: -1}}
	} else if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Priority != "" {
		filter["priority"] = f.Priority
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		rx := database.ContainsFold(s)
		filter["$and"] = bson.A{bson.M{"$or": bson.A{bson.M{"title": rx}, bson.M{"content": rx}}}}
	}
	return database.FindPage[models.Announcement](ctx, r.col, filter, sort, p)
}

func (r *MongoRepository) findAndUpdate(ctx context.Context, filter, update bson.M) (*models.Announcement, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Announcement
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("update announcement: %w", err)
	}
	return &out, nil
}

func (r *MongoRepository) IncrementViews(ctx context.Context, id string) (*models.Announcement, error) {
	return r.findAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
}

func (r *MongoRepository) AddLike(ctx context.Context, id, userID string) (*models.Announcement, error) {
	return r.findAndUpdate(ctx, bson.M{"_id": id, "isActive": true}, bson.M{"$addToSet": bson.M{"likes": userID}})
}

func (r *MongoRepository) RemoveLike(ctx context.Context, id, userID string) (*models.Announcement, error) {
	return r.findAndUpdate(ctx, bson.M{"_id": id, "isActive": true}, bson.M{"$pull": bson.M{"likes": userID}})
}

func (r *MongoRepository) CountPublished(ctx context.Context, now time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, feedFilter(now))
}
