package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindPage runs filter against col with sort and pagination and counts the
// total number of matches.
func FindPage[T any](ctx context.Context, col *mongo.Collection, filter bson.M, sort bson.D, p models.Pagination) (models.Page[T], error) {
	p = p.Normalize()
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return models.Page[T]{}, fmt.Errorf("count %s: %w", col.Name(), err)
	}
	opts := options.Find().SetSkip(p.Skip()).SetLimit(int64(p.Limit))
	if len(sort) > 0 {
		opts.SetSort(sort)
	}
	items, err := FindAll[T](ctx, col, filter, opts)
	if err != nil {
		return models.Page[T]{}, err
	}
	return models.NewPage(items, total, p), nil
}

// FindAll decodes every document matching filter.
func FindAll[T any](ctx context.Context, col *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", col.Name(), err)
	}
	defer cur.Close(ctx)
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", col.Name(), err)
	}
	return out, nil
}

// FindByID decodes the document with the given _id, returning models.ErrNotFound
// when it does not exist.
func FindByID[T any](ctx context.Context, col *mongo.Collection, id string) (*T, error) {
	var out T
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("find %s %s: %w", col.Name(), id, err)
	}
	return &out, nil
}

// ContainsFold returns a case-insensitive regex matching s literally.
func ContainsFold(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// SortOrder maps "asc"/"desc" to 1/-1, defaulting to def.
func SortOrder(order string, def int) int {
	switch order {
	case "asc":
		return 1
	case "desc":
		return -1
	}
	return def
}

// WrapWriteErr maps duplicate-key violations to models.ErrConflict.
func WrapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, models.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
