package jobs

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

type Filter struct {
	Type            string
	ExperienceLevel string
	Location        string
	Company         string
	Search          string
	Status          string
	PostedBy        string
	IncludeInactive bool
}

type Repository interface {
	Create(ctx context.Context, j *models.Job) error
	Update(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Job], error)
	// AddApplication appends app when the job is open, active, before its
	// deadline and userID has not applied yet. It reports whether it applied.
	AddApplication(ctx context.Context, id string, app models.Application, now time.Time) (bool, error)
	SetApplicationStatus(ctx context.Context, id, userID, status string) (bool, error)
	CountOpen(ctx context.Context) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, j *models.Job) error {
	_, err := r.col.InsertOne(ctx, j)
	return database.WrapWriteErr("insert job", err)
}

func (r *MongoRepository) Update(ctx context.Context, j *models.Job) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": j.ID}, bson.M{"$set": bson.M{
		"title":           j.Title,
		"company":         j.Company,
		"description":     j.Description,
		"requirements":    j.Requirements,
		"location":        j.Location,
		"type":            j.Type,
		"experienceLevel": j.ExperienceLevel,
		"salary":          j.Salary,
		"applicationUrl":  j.ApplicationURL,
		"contactEmail":    j.ContactEmail,
		"status":          j.Status,
		"deadline":        j.Deadline,
		"isActive":        j.IsActive,
		"updatedAt":       j.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("job %s: %w", j.ID, models.ErrNotFound)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return database.FindByID[models.Job](ctx, r.col, id)
}

func (r *MongoRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Job], error) {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["isActive"] = true
	}
	for field, v := range map[string]string{
		"type":            f.Type,
		"experienceLevel": f.ExperienceLevel,
		"status":          f.Status,
		"postedBy":        f.PostedBy,
	} {
		if v != "" {
			filter[field] = v
		}
	}
	if f.Location != "" {
		filter["location"] = database.ContainsFold(f.Location)
	}
	if f.Company != "" {
		filter["company"] = database.ContainsFold(f.Company)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		rx := database.ContainsFold(s)
		filter["$or"] = bson.A{bson.M{"title": rx}, bson.M{"company": rx}, bson.M{"description": rx}}
	}
	return database.FindPage[models.Job](ctx, r.col, filter, bson.D{{Key: "createdAt", Value: -1}}, p)
}

func (r *MongoRepository) AddApplication(ctx context.Context, id string, app models.Application, now time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id":                 id,
			"isActive":            true,
			"status":              models.JobOpen,
			"applications.userId": bson.M{"$ne": app.UserID},
			"$or": bson.A{
				bson.M{"deadline": nil},
				bson.M{"deadline": bson.M{"$gt": now}},
			},
		},
		bson.M{
			"$push": bson.M{"applications": app},
			"$set":  bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return false, fmt.Errorf("apply to job: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoRepository) SetApplicationStatus(ctx context.Context, id, userID, status string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "applications.userId": userID},
		bson.M{"$set": bson.M{"applications.$.status": status, "updatedAt": models.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("update application: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoRepository) CountOpen(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"isActive": true, "status": models.JobOpen})
}
