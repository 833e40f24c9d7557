package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// A token belongs to at most one identity; re-registering moves it.
type deviceTokenDocument struct {
	Token         string    `bson:"_id"`
	OwnerIdentity string    `bson:"owner_identity"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type MongoDeviceRepository struct {
	collection *mongo.Collection
}

func NewMongoDeviceRepository(db *mongo.Database) *MongoDeviceRepository {
	return &MongoDeviceRepository{collection: db.Collection("device_tokens")}
}

func (m *MongoDeviceRepository) SaveToken(ctx context.Context, token domain.DeviceToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now()
	}
	update := bson.M{"$set": bson.M{
		"owner_identity": token.OwnerIdentity,
		"updated_at":     token.UpdatedAt,
	}}

	_, err := m.collection.UpdateOne(ctx, bson.M{"_id": token.Token}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save device token: %w", err)
	}
	return nil
}

func (m *MongoDeviceRepository) TokensFor(ctx context.Context, ownerIdentity string) ([]string, error) {
	cursor, err := m.collection.Find(ctx, bson.M{"owner_identity": ownerIdentity})
	if err != nil {
		return nil, fmt.Errorf("failed to find device tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []deviceTokenDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode device tokens: %w", err)
	}

	tokens := make([]string, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.Token)
	}
	return tokens, nil
}

func (m *MongoDeviceRepository) RemoveToken(ctx context.Context, token string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": token}); err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}
	return nil
}

func (m *MongoDeviceRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_identity", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create device token indexes: %w", err)
	}
	return nil
}
