package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portfolio-tracker/config"
	"portfolio-tracker/internal/models"
)

type QuoteRepository struct {
	col *mongo.Collection
}

func NewQuoteRepository() *QuoteRepository {
	return &QuoteRepository{col: config.GetCollection("quote_cache")}
}

func (r *QuoteRepository) Find(ctx context.Context, ticker string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := r.col.FindOne(ctx, bson.M{"ticker": ticker}).Decode(&entry)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &entry, nil
}

// Upsert replaces the cached snapshot for the entry's ticker. The write is
// acknowledged by Mongo before this returns, so a snapshot is never treated
// as authoritative until it is durable.
func (r *QuoteRepository) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"ticker": entry.Ticker},
		bson.M{"$set": bson.M{
			"snapshot":  entry.Snapshot,
			"cached_at": entry.CachedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *QuoteRepository) FindAll(ctx context.Context) ([]models.CacheEntry, error) {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []models.CacheEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
