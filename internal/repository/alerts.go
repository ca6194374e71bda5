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

type AlertRepository struct {
	col *mongo.Collection
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{col: config.GetCollection("alerts")}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *models.Alert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, alert)
	return err
}

func (r *AlertRepository) FindByUser(ctx context.Context, userID string) ([]models.Alert, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var alerts []models.Alert
	if err := cur.All(ctx, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// FindActive returns every active alert across all users, for the checker.
func (r *AlertRepository) FindActive(ctx context.Context) ([]models.Alert, error) {
	cur, err := r.col.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var alerts []models.Alert
	if err := cur.All(ctx, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// SetLastTriggered advances or clears the cooldown timestamp. A nil value
// re-arms the alert.
func (r *AlertRepository) SetLastTriggered(ctx context.Context, id primitive.ObjectID, at *time.Time) error {
	update := bson.M{"$set": bson.M{"last_triggered_at": at}}
	if at == nil {
		update = bson.M{"$unset": bson.M{"last_triggered_at": ""}}
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// Delete removes an alert owned by userID. Alerts are only ever deleted by
// user action.
func (r *AlertRepository) Delete(ctx context.Context, id primitive.ObjectID, userID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
