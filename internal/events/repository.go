package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/database"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Filter narrows event listings.
type Filter struct {
	Type            string
	Status          string
	Upcoming        *bool
	Search          string
	Tag             string
	IncludeInactive bool
	Now             time.Time
}

// Repository defines persistence operations for events. Register, Cancel and
// MarkAttended are single conditional updates; they return false when the
// event was not in a state that allowed the change.
type Repository interface {
	Create(ctx context.Context, e *models.Event) error
	Update(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Event], error)
	Register(ctx context.Context, id string, a models.Attendee, now time.Time) (bool, error)
	Cancel(ctx context.Context, id, userID string) (bool, error)
	MarkAttended(ctx context.Context, id, userID string) (bool, error)
	CountUpcoming(ctx context.Context, now time.Time) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, e *models.Event) error {
	_, err := r.col.InsertOne(ctx, e)
	return database.WrapWriteErr("insert event", err)
}

// Update replaces the editable fields. Attendees and registeredCount are
// owned by the registration updates and are not overwritten.
func (r *MongoRepository) Update(ctx context.Context, e *models.Event) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": e.ID}, bson.M{"$set": bson.M{
		"title":       e.Title,
		"description": e.Description,
		"type":        e.Type,
		"startDate":   e.StartDate,
		"endDate":     e.EndDate,
		"location":    e.Location,
		"capacity":    e.Capacity,
		"status":      e.Status,
		"tags":        e.Tags,
		"imageUrl":    e.ImageURL,
		"isActive":    e.IsActive,
		"updatedAt":   e.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("event %s: %w", e.ID, models.ErrNotFound)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	return database.FindByID[models.Event](ctx, r.col, id)
}

func (r *MongoRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Event], error) {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["isActive"] = true
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Tag != "" {
		filter["tags"] = f.Tag
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		rx := database.ContainsFold(s)
		filter["$or"] = bson.A{bson.M{"title": rx}, bson.M{"description": rx}, bson.M{"location.city": rx}}
	}
	sort := bson.D{{Key: "startDate", Value: 1}}
	if f.Upcoming != nil {
		if *f.Upcoming {
			filter["startDate"] = bson.M{"$gte": f.Now}
		} else {
			filter["startDate"] = bson.M{"$lt": f.Now}
			sort = bson.D{{Key: "startDate", Value: -1}}
		}
	}
	return database.FindPage[models.Event](ctx, r.col, filter, sort, p)
}

func seatAvailable() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"capacity": 0},
		bson.M{"$expr": bson.M{"$lt": bson.A{"$registeredCount", "$capacity"}}},
	}}
}

func (r *MongoRepository) Register(ctx context.Context, id string, a models.Attendee, now time.Time) (bool, error) {
	base := bson.M{
		"_id":       id,
		"isActive":  true,
		"status":    models.EventPublished,
		"startDate": bson.M{"$gt": now},
		"$and":      bson.A{seatAvailable()},
	}

	// first registration
	fresh := copyFilter(base)
	fresh["attendees.userId"] = bson.M{"$ne": a.UserID}
	res, err := r.col.UpdateOne(ctx, fresh, bson.M{
		"$push": bson.M{"attendees": a},
		"$inc":  bson.M{"registeredCount": 1},
		"$set":  bson.M{"updatedAt": now},
	})
	if err != nil {
		return false, fmt.Errorf("register attendee: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	// re-registration after a cancellation
	again := copyFilter(base)
	again["attendees"] = bson.M{"$elemMatch": bson.M{"userId": a.UserID, "status": models.AttendeeCancelled}}
	res, err = r.col.UpdateOne(ctx, again, bson.M{
		"$set": bson.M{
			"attendees.$.status":       models.AttendeeRegistered,
			"attendees.$.registeredAt": a.RegisteredAt,
			"updatedAt":                now,
		},
		"$inc": bson.M{"registeredCount": 1},
	})
	if err != nil {
		return false, fmt.Errorf("register attendee: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func copyFilter(m bson.M) bson.M {
	out := make(bson.M, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *MongoRepository) Cancel(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "attendees": bson.M{"$elemMatch": bson.M{"userId": userID, "status": models.AttendeeRegistered}}},
		bson.M{
			"$set": bson.M{"attendees.$.status": models.AttendeeCancelled, "updatedAt": models.Now()},
			"$inc": bson.M{"registeredCount": -1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("cancel registration: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoRepository) MarkAttended(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "attendees": bson.M{"$elemMatch": bson.M{"userId": userID, "status": models.AttendeeRegistered}}},
		bson.M{"$set": bson.M{"attendees.$.status": models.AttendeeAttended, "updatedAt": models.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("mark attended: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoRepository) CountUpcoming(ctx context.Context, now time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{
		"isActive":  true,
		"status":    models.EventPublished,
		"startDate": bson.M{"$gte": now},
	})
}
