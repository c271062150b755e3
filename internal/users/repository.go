package users

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

// Filter narrows the alumni directory.
type Filter struct {
	Search          string
	GraduationYear  int
	Major           string
	Industry        string
	City            string
	Country         string
	Skills          []string
	Role            string
	IncludeInactive bool
	SortBy          string // lastName, graduationYear or createdAt
	Order           string // asc or desc
}

// YearCount is the number of users sharing a graduation year.
type YearCount struct {
	Year  int   `bson:"_id" json:"year"`
	Count int64 `bson:"count" json:"count"`
}

// Stats summarises the user base.
type Stats struct {
	Total            int64            `json:"total"`
	Active           int64            `json:"active"`
	Verified         int64            `json:"verified"`
	ByRole           map[string]int64 `json:"byRole"`
	ByGraduationYear []YearCount      `json:"byGraduationYear"`
}

// UserRepository defines persistence operations for users
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	UpsertBySub(ctx context.Context, u *models.User) (*models.User, error)
	List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.User], error)
	ActiveIDs(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.col.InsertOne(ctx, u)
	return database.WrapWriteErr("insert user", err)
}

func (r *MongoUserRepository) Update(ctx context.Context, u *models.User) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return database.WrapWriteErr("update user", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", u.ID, models.ErrNotFound)
	}
	return nil
}

func (r *MongoUserRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLogin": at}})
	if err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return database.FindByID[models.User](ctx, r.col, id)
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"sub": sub})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// UpsertBySub creates a federated account on first sight and refreshes its
// email and name afterwards. Role and activation are never touched here.
func (r *MongoUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := models.Now()
	filter := bson.M{"sub": u.Sub}
	update := bson.M{
		"$set": bson.M{
			"email":     u.Email,
			"firstName": u.FirstName,
			"lastName":  u.LastName,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"_id":        models.NewID(),
			"role":       models.RoleAlumni,
			"isActive":   true,
			"isVerified": true,
			"profile":    models.Profile{},
			"location":   models.Location{},
			"createdAt":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.User
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return nil, database.WrapWriteErr("upsert user", err)
	}
	return &updated, nil
}

func (r *MongoUserRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.User], error) {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["isActive"] = true
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		rx := database.ContainsFold(s)
		filter["$or"] = bson.A{
			bson.M{"firstName": rx},
			bson.M{"lastName": rx},
			bson.M{"email": rx},
			bson.M{"profile.company": rx},
			bson.M{"profile.jobTitle": rx},
		}
	}
	if f.GraduationYear > 0 {
		filter["graduationYear"] = f.GraduationYear
	}
	for field, v := range map[string]string{
		"major":            f.Major,
		"profile.industry": f.Industry,
		"location.city":    f.City,
		"location.country": f.Country,
	} {
		if v != "" {
			filter[field] = database.ContainsFold(v)
		}
	}
	if len(f.Skills) > 0 {
		filter["profile.skills"] = bson.M{"$all": f.Skills}
	}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	return database.FindPage[models.User](ctx, r.col, filter, directorySort(f), p)
}

func directorySort(f Filter) bson.D {
	switch f.SortBy {
	case "graduationYear":
		order := database.SortOrder(f.Order, -1)
		return bson.D{{Key: "graduationYear", Value: order}, {Key: "lastName", Value: 1}}
	case "createdAt":
		return bson.D{{Key: "createdAt", Value: database.SortOrder(f.Order, -1)}}
	}
	order := database.SortOrder(f.Order, 1)
	return bson.D{{Key: "lastName", Value: order}, {Key: "firstName", Value: order}}
}

func (r *MongoUserRepository) ActiveIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	docs, err := database.FindAll[struct {
		ID string `bson:"_id"`
	}](ctx, r.col, bson.M{"isActive": true}, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *MongoUserRepository) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Total, err = r.col.CountDocuments(ctx, bson.M{}); err != nil {
		return st, fmt.Errorf("count users: %w", err)
	}
	if st.Active, err = r.col.CountDocuments(ctx, bson.M{"isActive": true}); err != nil {
		return st, fmt.Errorf("count active users: %w", err)
	}
	if st.Verified, err = r.col.CountDocuments(ctx, bson.M{"isVerified": true}); err != nil {
		return st, fmt.Errorf("count verified users: %w", err)
	}

	var roles []struct {
		Role  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := r.aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$role", "count": bson.M{"$sum": 1}}}},
	}, &roles); err != nil {
		return st, err
	}
	st.ByRole = make(map[string]int64, len(roles))
	for _, rc := range roles {
		st.ByRole[rc.Role] = rc.Count
	}

	st.ByGraduationYear = []YearCount{}
	err = r.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"graduationYear": bson.M{"$gt": 0}}}},
		{{Key: "$group", Value: bson.M{"_id": "$graduationYear", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}, &st.ByGraduationYear)
	return st, err
}

func (r *MongoUserRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out interface{}) error {
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate users: %w", err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode user aggregate: %w", err)
	}
	return nil
}
