package events

import (
	"context"
	"testing"
	"time"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoRegister(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now().UTC()
	a := models.Attendee{UserID: "u1", Status: models.AttendeeRegistered, RegisteredAt: now}

	mt.Run("fresh registration", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		ok, err := repo.Register(context.Background(), "e1", a, now)
		require.NoError(mt, err)
		require.True(mt, ok)
	})

	mt.Run("re-registration after cancel", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		ok, err := repo.Register(context.Background(), "e1", a, now)
		require.NoError(mt, err)
		require.True(mt, ok)
	})

	mt.Run("refused", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		ok, err := repo.Register(context.Background(), "e1", a, now)
		require.NoError(mt, err)
		require.False(mt, ok)
	})

	mt.Run("cancel", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		ok, err := repo.Cancel(context.Background(), "e1", "u1")
		require.NoError(mt, err)
		require.True(mt, ok)
	})
}
