package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Prices are kept as decimal strings; shopspring decimals have no bson codec.
type cartDocument struct {
	OwnerID   string             `bson:"owner_id"`
	Items     []cartLineDocument `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type cartLineDocument struct {
	ItemID    string    `bson:"item_id"`
	Name      string    `bson:"name"`
	UnitPrice string    `bson:"unit_price"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

func (d *cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		OwnerID:   d.OwnerID,
		Items:     make([]domain.CartLine, 0, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, line := range d.Items {
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for item %s: %w", line.UnitPrice, line.ItemID, err)
		}
		cart.Items = append(cart.Items, domain.CartLine{
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: price,
			Quantity:  line.Quantity,
			AddedAt:   line.AddedAt,
		})
	}
	return cart, nil
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoCartRepository) IncrementItem(ctx context.Context, ownerID string, line domain.CartLine) error {
	// Two attempts cover the race where another request inserts the same line in between.
	for attempt := 0; attempt < 2; attempt++ {
		incremented, err := m.incrementExisting(ctx, ownerID, line.ItemID)
		if err != nil {
			return err
		}
		if incremented {
			return nil
		}

		err = m.pushLine(ctx, ownerID, line)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}
	return fmt.Errorf("failed to add item %s to cart of %s: concurrent modification", line.ItemID, ownerID)
}

func (m *MongoCartRepository) incrementExisting(ctx context.Context, ownerID, itemID string) (bool, error) {
	filter := bson.M{
		"owner_id":      ownerID,
		"items.item_id": itemID,
	}
	update := bson.M{
		"$inc": bson.M{"items.$.quantity": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to increment item quantity: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (m *MongoCartRepository) pushLine(ctx context.Context, ownerID string, line domain.CartLine) error {
	now := time.Now()
	filter := bson.M{
		"owner_id":      ownerID,
		"items.item_id": bson.M{"$ne": line.ItemID},
	}
	update := bson.M{
		"$push": bson.M{"items": cartLineDocument{
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice.String(),
			Quantity:  1,
			AddedAt:   now,
		}},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to add new item: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) SetItemQuantity(ctx context.Context, ownerID, itemID string, quantity int) error {
	filter := bson.M{
		"owner_id":      ownerID,
		"items.item_id": itemID,
	}
	update := bson.M{
		"$set": bson.M{
			"items.$.quantity": quantity,
			"updated_at":       time.Now(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// RemoveItem succeeds when the cart or line does not exist.
func (m *MongoCartRepository) RemoveItem(ctx context.Context, ownerID, itemID string) error {
	filter := bson.M{"owner_id": ownerID}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"item_id": itemID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	if _, err := m.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(30 * 24 * 60 * 60), // abandoned carts
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}
