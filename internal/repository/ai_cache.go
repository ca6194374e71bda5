package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portfolio-tracker/config"
	"portfolio-tracker/internal/models"
)

type AICacheRepository struct {
	col *mongo.Collection
}

func NewAICacheRepository() *AICacheRepository {
	return &AICacheRepository{col: config.GetCollection("ai_cache")}
}

func (r *AICacheRepository) Find(ctx context.Context, queryHash string) (*models.AIResponse, error) {
	var resp models.AIResponse
	err := r.col.FindOne(ctx, bson.M{"query_hash": queryHash}).Decode(&resp)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &resp, nil
}

func (r *AICacheRepository) Upsert(ctx context.Context, queryHash, response string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"query_hash": queryHash},
		bson.M{"$set": bson.M{
			"response":  response,
			"cached_at": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}
