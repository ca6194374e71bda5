package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"portfolio-tracker/config"
	"portfolio-tracker/internal/models"
)

// TransactionRepository is append-only: there is deliberately no update or
// delete method on it.
type TransactionRepository struct {
	col *mongo.Collection
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{col: config.GetCollection("transactions")}
}

func (r *TransactionRepository) Append(ctx context.Context, tx *models.Transaction) error {
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, tx)
	return err
}

// FindByUser returns the user's transactions in timestamp order, oldest
// first, which is the order the ledger folds them in.
func (r *TransactionRepository) FindByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var txs []models.Transaction
	if err := cur.All(ctx, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
