package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// MongoStockRepository implements StockRepository on a MongoDB collection.
// The version check is part of the UpdateOne filter.
type MongoStockRepository struct {
	coll *mongo.Collection
}

func NewMongoStockRepository(db *mongo.Database, collection string) *MongoStockRepository {
	return &MongoStockRepository{coll: db.Collection(collection)}
}

type mongoStock struct {
	ID        string    `bson:"_id"`
	ProductID string    `bson:"product_id"`
	OptionID  string    `bson:"option_id"`
	Total     uint      `bson:"total"`
	Available uint      `bson:"available"`
	Reserved  uint      `bson:"reserved"`
	Sold      uint      `bson:"sold"`
	Version   uint64    `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m mongoStock) toModel() (*models.Stock, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse stock id %q: %w", m.ID, err)
	}
	return &models.Stock{
		ID: id, ProductID: m.ProductID, OptionID: m.OptionID,
		Total: m.Total, Available: m.Available, Reserved: m.Reserved, Sold: m.Sold,
		Version: m.Version, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}, nil
}

func (r *MongoStockRepository) Create(ctx context.Context, s *models.Stock) error {
	_, err := r.coll.InsertOne(ctx, mongoStock{
		ID: s.ID.String(), ProductID: s.ProductID, OptionID: s.OptionID,
		Total: s.Total, Available: s.Available, Reserved: s.Reserved, Sold: s.Sold,
		Version: s.Version, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", models.ErrStockExists, s.ID)
	}
	if err != nil {
		return fmt.Errorf("mongo insert stock: %w", err)
	}
	return nil
}

func (r *MongoStockRepository) Load(ctx context.Context, id uuid.UUID) (*models.Stock, error) {
	var doc mongoStock
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find stock %s: %w", id, err)
	}
	stock, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	if err := stock.Validate(); err != nil {
		return nil, err
	}
	return stock, nil
}

func (r *MongoStockRepository) CASWrite(ctx context.Context, next *models.Stock, expectedVersion uint64) (int64, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": next.ID.String(), "version": expectedVersion},
		bson.M{"$set": bson.M{
			"available":  next.Available,
			"reserved":   next.Reserved,
			"sold":       next.Sold,
			"version":    next.Version,
			"updated_at": next.UpdatedAt,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("mongo stock cas write %s: %w", next.ID, err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoStockRepository) List(ctx context.Context, limit int) ([]*models.Stock, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list stock: %w", err)
	}
	var docs []mongoStock
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode stock list: %w", err)
	}
	stocks := make([]*models.Stock, 0, len(docs))
	for _, d := range docs {
		s, err := d.toModel()
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, nil
}

// Each streams every stored counter to fn in batches of batchSize. A
// document that fails to decode or validate is passed to onBad and skipped.
func (r *MongoStockRepository) Each(ctx context.Context, batchSize int32, fn func(*models.Stock) error, onBad func(id string, err error)) error {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetBatchSize(batchSize))
	if err != nil {
		return fmt.Errorf("mongo scan stock: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc mongoStock
		if err := cur.Decode(&doc); err != nil {
			onBad("", err)
			continue
		}
		stock, err := doc.toModel()
		if err == nil {
			err = stock.Validate()
		}
		if err != nil {
			onBad(doc.ID, err)
			continue
		}
		if err := fn(stock); err != nil {
			return err
		}
	}
	return cur.Err()
}
