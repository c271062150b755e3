package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/database"
	"github.com/alumni-network/alumni-backend-system/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Filter narrows payment listings.
type Filter struct {
	UserID     string
	CampaignID string
	Status     string
	Method     string
	Type       string
	From       *time.Time
	To         *time.Time
}

// Transition moves a payment from one of From to To. Optional fields are only
// written when set.
type Transition struct {
	From          []string
	To            string
	ProviderRef   string
	FailureReason string
	At            time.Time
}

// CurrencyTotal is the completed volume in one currency.
type CurrencyTotal struct {
	Currency string `bson:"_id" json:"currency"`
	Amount   int64  `bson:"amount" json:"amount"`
	Count    int64  `bson:"count" json:"count"`
}

// Stats summarises payments.
type Stats struct {
	Completed []CurrencyTotal  `json:"completed"`
	ByStatus  map[string]int64 `json:"byStatus"`
	ByMethod  map[string]int64 `json:"byMethod"`
}

// CampaignTotal is the completed volume of one campaign.
type CampaignTotal struct {
	CampaignID string `bson:"_id"`
	Amount     int64  `bson:"amount"`
	Count      int64  `bson:"count"`
}

type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, method, ref string) (*models.Payment, error)
	// Transition applies t atomically. It returns false when the payment is
	// not in one of t.From.
	Transition(ctx context.Context, id string, t Transition) (*models.Payment, bool, error)
	SetReceipt(ctx context.Context, id, number, key string) error
	List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Payment], error)
	Stats(ctx context.Context) (Stats, error)
	CampaignTotals(ctx context.Context) ([]CampaignTotal, error)
}

type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign) error
	Update(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context, status string, includeInactive bool, p models.Pagination) (models.Page[models.Campaign], error)
	All(ctx context.Context) ([]models.Campaign, error)
	// Increment adds amount and donors to the running totals in one atomic update.
	Increment(ctx context.Context, id string, amount, donors int64) (*models.Campaign, error)
	SetTotals(ctx context.Context, id string, amount, donors int64) error
}

type MongoPaymentRepository struct {
	col *mongo.Collection
}

func NewMongoPaymentRepository(col *mongo.Collection) *MongoPaymentRepository {
	return &MongoPaymentRepository{col: col}
}

func (r *MongoPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	_, err := r.col.InsertOne(ctx, p)
	return database.WrapWriteErr("insert payment", err)
}

func (r *MongoPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return database.FindByID[models.Payment](ctx, r.col, id)
}

func (r *MongoPaymentRepository) GetByProviderRef(ctx context.Context, method, ref string) (*models.Payment, error) {
	var p models.Payment
	err := r.col.FindOne(ctx, bson.M{"method": method, "providerRef": ref}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("find payment by reference: %w", err)
	}
	return &p, nil
}

func (r *MongoPaymentRepository) Transition(ctx context.Context, id string, t Transition) (*models.Payment, bool, error) {
	set := bson.M{"status": t.To, "updatedAt": t.At}
	if t.ProviderRef != "" {
		set["providerRef"] = t.ProviderRef
	}
	if t.FailureReason != "" {
		set["failureReason"] = t.FailureReason
	}
	switch t.To {
	case models.PaymentCompleted:
		set["completedAt"] = t.At
	case models.PaymentRefunded:
		set["refundedAt"] = t.At
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Payment
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": t.From}},
		bson.M{"$set": set},
		opts,
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("transition payment %s to %s: %w", id, t.To, err)
	}
	return &out, true, nil
}

func (r *MongoPaymentRepository) SetReceipt(ctx context.Context, id, number, key string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"receiptNumber": number, "receiptKey": key}})
	if err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}
	return nil
}

func (r *MongoPaymentRepository) List(ctx context.Context, f Filter, p models.Pagination) (models.Page[models.Payment], error) {
	filter := bson.M{}
	for field, v := range map[string]string{
		"userId":     f.UserID,
		"campaignId": f.CampaignID,
		"status":     f.Status,
		"method":     f.Method,
		"type":       f.Type,
	} {
		if v != "" {
			filter[field] = v
		}
	}
	if f.From != nil || f.To != nil {
		rng := bson.M{}
		if f.From != nil {
			rng["$gte"] = *f.From
		}
		if f.To != nil {
			rng["$lte"] = *f.To
		}
		filter["createdAt"] = rng
	}
	return database.FindPage[models.Payment](ctx, r.col, filter, bson.D{{Key: "createdAt", Value: -1}}, p)
}

func (r *MongoPaymentRepository) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Completed: []CurrencyTotal{}, ByStatus: map[string]int64{}, ByMethod: map[string]int64{}}
	if err := r.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.PaymentCompleted}}},
		{{Key: "$group", Value: bson.M{"_id": "$currency", "amount": bson.M{"$sum": "$amount"}, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}, &st.Completed); err != nil {
		return st, err
	}
	for field, dst := range map[string]map[string]int64{"$status": st.ByStatus, "$method": st.ByMethod} {
		var groups []struct {
			Key   string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := r.aggregate(ctx, mongo.Pipeline{
			{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
		}, &groups); err != nil {
			return st, err
		}
		for _, g := range groups {
			dst[g.Key] = g.Count
		}
	}
	return st, nil
}

func (r *MongoPaymentRepository) CampaignTotals(ctx context.Context) ([]CampaignTotal, error) {
	out := []CampaignTotal{}
	err := r.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": models.PaymentCompleted, "campaignId": bson.M{"$exists": true, "$ne": ""}}}},
		{{Key: "$group", Value: bson.M{"_id": "$campaignId", "amount": bson.M{"$sum": "$amount"}, "count": bson.M{"$sum": 1}}}},
	}, &out)
	return out, err
}

func (r *MongoPaymentRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out interface{}) error {
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate payments: %w", err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode payment aggregate: %w", err)
	}
	return nil
}

type MongoCampaignRepository struct {
	col *mongo.Collection
}

func NewMongoCampaignRepository(col *mongo.Collection) *MongoCampaignRepository {
	return &MongoCampaignRepository{col: col}
}

func (r *MongoCampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	_, err := r.col.InsertOne(ctx, c)
	return database.WrapWriteErr("insert campaign", err)
}

// Update writes the editable fields. The running totals belong to Increment.
func (r *MongoCampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": c.ID}, bson.M{"$set": bson.M{
		"title":       c.Title,
		"description": c.Description,
		"goalAmount":  c.GoalAmount,
		"currency":    c.Currency,
		"startDate":   c.StartDate,
		"endDate":     c.EndDate,
		"status":      c.Status,
		"isActive":    c.IsActive,
		"updatedAt":   c.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("campaign %s: %w", c.ID, models.ErrNotFound)
	}
	return nil
}

func (r *MongoCampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	return database.FindByID[models.Campaign](ctx, r.col, id)
}

func (r *MongoCampaignRepository) List(ctx context.Context, status string, includeInactive bool, p models.Pagination) (models.Page[models.Campaign], error) {
	filter := bson.M{}
	if !includeInactive {
		filter["isActive"] = true
	}
	if status != "" {
		filter["status"] = status
	}
	return database.FindPage[models.Campaign](ctx, r.col, filter, bson.D{{Key: "endDate", Value: 1}}, p)
}

func (r *MongoCampaignRepository) All(ctx context.Context) ([]models.Campaign, error) {
	return database.FindAll[models.Campaign](ctx, r.col, bson.M{})
}

func (r *MongoCampaignRepository) Increment(ctx context.Context, id string, amount, donors int64) (*models.Campaign, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Campaign
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"currentAmount": amount, "donorCount": donors},
			"$set": bson.M{"updatedAt": models.Now()},
		},
		opts,
	).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("campaign %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("increment campaign: %w", err)
	}
	return &out, nil
}

func (r *MongoCampaignRepository) SetTotals(ctx context.Context, id string, amount, donors int64) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"currentAmount": amount,
		"donorCount":    donors,
		"updatedAt":     models.Now(),
	}})
	if err != nil {
		return fmt.Errorf("set campaign totals: %w", err)
	}
	return nil
}
